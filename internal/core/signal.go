package core

import "github.com/avdeyev/gamecast/internal/domain"

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Peer binds a connection handle to its transport endpoint.
// This is what the registry stores and relays fan out to.
type Peer struct {
	ID   domain.ConnID
	Conn SignalConnection
}

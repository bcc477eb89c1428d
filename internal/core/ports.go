package core

import (
	"context"

	"github.com/avdeyev/gamecast/internal/domain"
)

// Injector drives an OS-level virtual game controller. One active handle
// per session; Create for a session that already has one is a no-op.
type Injector interface {
	// Create allocates a virtual controller for the session.
	// Returns ErrInjectionUnavailable when no backend exists on this host.
	Create(sid domain.SessionID) error
	PressButton(sid domain.SessionID, name domain.Button, down bool) error
	// SetAxis writes a signed axis value. D-pad and triggers use -1/0/+1.
	SetAxis(sid domain.SessionID, name domain.Axis, value float64) error
	// Destroy releases the controller. Idempotent.
	Destroy(sid domain.SessionID) error
}

// Launcher manages the external emulator process bound to a session.
type Launcher interface {
	Launch(ctx context.Context, sid domain.SessionID, subject domain.Subject) error
	// Stop kills the process if running. Reports whether anything was stopped.
	Stop(sid domain.SessionID) bool
	IsRunning(sid domain.SessionID) bool
}

// Advertiser publishes the relay address on the local network.
// Purely informational, never consulted by the core logic.
type Advertiser interface {
	Advertise(port int) error
	StopAdvertising()
}

// Notifier delivers lifecycle events back over the signaling transport.
// Implemented by the signal adapter so the app layer never touches wire
// encoding.
type Notifier interface {
	// ViewerJoined tells the producer a viewer exists and wants an offer.
	ViewerJoined(producer *Peer, sid domain.SessionID, viewer domain.ConnID)
	// SessionEnded tells every listed peer the stream is gone.
	SessionEnded(sid domain.SessionID, peers []*Peer)
}

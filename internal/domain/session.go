// Package domain contains entity without logic, just meta-data
package domain

import (
	"time"

	"github.com/google/uuid"
)

type (
	SessionID string
	ConnID    string
	GameID    string
)

// SessionState follows the producer lifecycle: a session starts Waiting,
// becomes Active when the producer registers and Ended when it disconnects.
// Ended sessions linger for a grace window before deletion.
type SessionState int

const (
	StateWaiting SessionState = iota
	StateActive
	StateEnded
)

func (s SessionState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Subject identifies what a session streams. ExternalProducer marks
// subjects that need a spawned emulator process plus virtual-input
// injection instead of an in-process producer.
type Subject struct {
	Game             GameID `json:"game"`
	ExternalProducer bool   `json:"external_producer"`
}

// Session is the pairing context between one producer and its viewers.
type Session struct {
	ID        SessionID `json:"id"`
	Subject   Subject   `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

func NewSession(subject Subject) *Session {
	return &Session{
		ID:        SessionID(uuid.NewString()),
		Subject:   subject,
		CreatedAt: time.Now(),
	}
}

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

package signal

import (
	"encoding/json"

	"github.com/avdeyev/gamecast/internal/domain"
)

// Kind is the closed set of message types on the signaling socket.
// Dispatch switches over it exhaustively; anything else is logged and
// dropped at the boundary.
type Kind string

const (
	// inbound
	KindRegisterProducer Kind = "register_producer"
	KindJoinSession      Kind = "join_session"
	KindSignal           Kind = "signal"
	KindInput            Kind = "input"
	KindInputAnalog      Kind = "input_analog"
	KindPing             Kind = "ping"

	// outbound
	KindRegistered          Kind = "registered"
	KindJoined              Kind = "joined"
	KindViewerJoined        Kind = "viewer_joined"
	KindProducerUnavailable Kind = "producer_unavailable"
	KindSessionEnded        Kind = "session_ended"
	KindError               Kind = "error"
	KindPong                Kind = "pong"
)

// SignalKind discriminates handshake payloads. The relay never looks
// inside the payload itself.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func (k SignalKind) valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// Envelope is decoded first to pick the concrete message type.
type Envelope struct {
	Type Kind `json:"type"`
}

type RegisterProducer struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
}

type JoinSession struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
}

// Signal carries an opaque handshake blob. Target addresses a specific
// viewer when sent by the producer; From is stamped by the relay on
// forward so the receiving side can route per peer.
type Signal struct {
	Type    Kind            `json:"type"`
	Kind    SignalKind      `json:"kind"`
	Target  domain.ConnID   `json:"target,omitempty"`
	From    domain.ConnID   `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type Input struct {
	Type    Kind          `json:"type"`
	Button  domain.Button `json:"button"`
	Pressed bool          `json:"pressed"`
}

type InputAnalog struct {
	Type  Kind            `json:"type"`
	Stick domain.AxisPair `json:"stick"`
	X     float64         `json:"x"`
	Y     float64         `json:"y"`
}

type Registered struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
}

type Joined struct {
	Type        Kind             `json:"type"`
	Session     domain.SessionID `json:"session"`
	Subject     domain.Subject   `json:"subject"`
	HasProducer bool             `json:"has_producer"`
}

type ViewerJoined struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
	Viewer  domain.ConnID    `json:"viewer"`
}

type ProducerUnavailable struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
}

type SessionEnded struct {
	Type    Kind             `json:"type"`
	Session domain.SessionID `json:"session"`
}

type ErrorMessage struct {
	Type  Kind   `json:"type"`
	Error string `json:"error"`
}

type Pong struct {
	Type Kind `json:"type"`
}

// SDPPayload is the offer/answer blob the endpoints exchange inside a
// Signal message. The relay never parses it; the endpoints do.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ErrTransportFailed is surfaced when the underlying peer connection
// reports failed or disconnected. The negotiator never retries; the
// caller may run a fresh instance.
var ErrTransportFailed = errors.New("transport failed")

const pliInterval = 3 * time.Second

// State is the receiver-side handshake state.
type State int

const (
	StateNew State = iota
	StateAwaitingOffer
	StateAwaitingLocalAnswer
	StateConnected
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateAwaitingOffer:
		return "awaiting_offer"
	case StateAwaitingLocalAnswer:
		return "awaiting_local_answer"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AnswerSender pushes the negotiator's outbound handshake messages
// through the relay.
type AnswerSender interface {
	SendAnswer(sdp string) error
	SendCandidate(ci webrtc.ICECandidateInit) error
}

// peerConn is the slice of *webrtc.PeerConnection the negotiator needs.
// An indirection so the transition logic is testable without a network.
type peerConn interface {
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	AddTransceiverFromKind(webrtc.RTPCodecType, ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	WriteRTCP([]rtcp.Packet) error
	Close() error
}

// Negotiator owns one receiving peer connection. It buffers ICE
// candidates that arrive before the remote description and flushes them
// in arrival order right after the offer is applied.
type Negotiator struct {
	mu    sync.Mutex
	state State

	pc   peerConn
	send AnswerSender

	remoteSet bool
	pending   []webrtc.ICECandidateInit

	stream      *MediaStream
	streamReady bool

	onStream    func(*MediaStream)
	onConnected func()
	onError     func(error)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewNegotiator(send AnswerSender) *Negotiator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Negotiator{
		state:  StateNew,
		send:   send,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnStream registers the stream-ready callback. Fired once, only when at
// least one video track is present.
func (n *Negotiator) OnStream(fn func(*MediaStream)) { n.onStream = fn }

func (n *Negotiator) OnConnected(fn func()) { n.onConnected = fn }

func (n *Negotiator) OnError(fn func(error)) { n.onError = fn }

// Initialize constructs the peer connection, attaches handlers and moves
// to AwaitingOffer.
func (n *Negotiator) Initialize(cfg webrtc.Configuration) error {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	return n.initialize(pc)
}

func (n *Negotiator) initialize(pc peerConn) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateNew {
		return fmt.Errorf("initialize in state %s", n.state)
	}
	n.pc = pc

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add transceiver: %w", err)
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := n.send.SendCandidate(cand.ToJSON()); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("send candidate")
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.onRemoteTrack(track)
	})
	pc.OnConnectionStateChange(n.onConnState)

	n.state = StateAwaitingOffer
	return nil
}

// HandleOffer applies the producer's offer, flushes buffered candidates
// in order, then answers through the relay.
func (n *Negotiator) HandleOffer(sdp string) error {
	n.mu.Lock()
	if n.state != StateAwaitingOffer && n.state != StateConnected {
		state := n.state
		n.mu.Unlock()
		return fmt.Errorf("offer in state %s", state)
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("set remote description: %w", err)
	}
	n.remoteSet = true

	for _, ci := range n.pending {
		if err := n.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("flush buffered candidate")
		}
	}
	n.pending = nil

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		n.mu.Unlock()
		return fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		n.mu.Unlock()
		return fmt.Errorf("set local description: %w", err)
	}
	// A renegotiation offer on an established transport keeps Connected:
	// pion fires no fresh state event for it.
	if n.state == StateAwaitingOffer {
		n.state = StateAwaitingLocalAnswer
	}
	n.mu.Unlock()

	return n.send.SendAnswer(answer.SDP)
}

// HandleCandidate applies a remote candidate, buffering it while no
// remote description exists yet.
func (n *Negotiator) HandleCandidate(ci webrtc.ICECandidateInit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed || n.state == StateErrored {
		return nil
	}
	if !n.remoteSet {
		n.pending = append(n.pending, ci)
		return nil
	}
	return n.pc.AddICECandidate(ci)
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Destroy tears the negotiator down from any state: closes the peer
// connection, releases the stream and stops the drain loops. Idempotent.
func (n *Negotiator) Destroy() {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return
	}
	n.state = StateClosed
	pc := n.pc
	n.stream = nil
	n.pending = nil
	n.mu.Unlock()

	n.cancel()
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close peer connection")
		}
	}
}

func (n *Negotiator) onConnState(s webrtc.PeerConnectionState) {
	log.Info().Str("module", "rtc").Str("state", s.String()).Msg("peer state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		n.mu.Lock()
		if n.state == StateAwaitingLocalAnswer {
			n.state = StateConnected
		}
		fn := n.onConnected
		n.mu.Unlock()
		if fn != nil {
			fn()
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		n.mu.Lock()
		if n.state == StateClosed || n.state == StateErrored {
			n.mu.Unlock()
			return
		}
		n.state = StateErrored
		fn := n.onError
		n.mu.Unlock()
		if fn != nil {
			fn(ErrTransportFailed)
		}
	}
}

// onRemoteTrack attaches the track to the owned stream and starts its
// drain loop. The ready callback fires only once a video track exists.
func (n *Negotiator) onRemoteTrack(track *webrtc.TrackRemote) {
	log.Info().Str("module", "rtc").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")

	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return
	}
	if n.stream == nil {
		n.stream = newMediaStream(track.StreamID())
	}
	n.stream.addTrack(track)

	var ready func(*MediaStream)
	if track.Kind() == webrtc.RTPCodecTypeVideo && !n.streamReady {
		n.streamReady = true
		ready = n.onStream
	}
	stream := n.stream
	n.mu.Unlock()

	if ready != nil {
		ready(stream)
	}

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go n.keyframeLoop(track)
	}
	go n.drain(track)
}

// drain keeps the receive buffer moving; the presentation layer consumes
// decoded frames elsewhere.
func (n *Negotiator) drain(track *webrtc.TrackRemote) {
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

// keyframeLoop periodically asks the producer for a keyframe so a viewer
// joining mid-stream gets a decodable picture quickly.
func (n *Negotiator) keyframeLoop(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			err := n.pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
			})
			if err != nil {
				return
			}
		}
	}
}

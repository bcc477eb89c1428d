package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/domain"
)

// OfferSender pushes producer-side handshake messages to one viewer
// through the relay.
type OfferSender interface {
	SendOffer(viewer domain.ConnID, sdp string) error
	SendCandidate(viewer domain.ConnID, ci webrtc.ICECandidateInit) error
}

// offerConn is the slice of *webrtc.PeerConnection the producer side
// needs, an indirection mirroring the negotiator's peerConn.
type offerConn interface {
	OnICECandidate(func(*webrtc.ICECandidate))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// ProducerConnection is the offer-side mirror of the Negotiator: one per
// viewer, owning the peer connection the video track is sent on. Remote
// candidates that outrun the viewer's answer are buffered and flushed in
// arrival order once the answer lands.
type ProducerConnection struct {
	pc     offerConn
	viewer domain.ConnID
	send   OfferSender
	cancel context.CancelFunc

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	closeOnce sync.Once
	onClosed  func()
}

func NewProducerConnection(cfg webrtc.Configuration, viewer domain.ConnID, send OfferSender) (*ProducerConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &ProducerConnection{pc: pc, viewer: viewer, send: send}, nil
}

// Start binds the connection lifetime to ctx and attaches callbacks.
func (c *ProducerConnection) Start(ctx context.Context) error {
	_, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := c.send.SendCandidate(c.viewer, cand.ToJSON()); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("viewer", string(c.viewer)).Msg("send candidate")
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("viewer", string(c.viewer)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			cancel()
			if c.onClosed != nil {
				c.closeOnce.Do(c.onClosed)
			}
		}
	})

	return nil
}

// OnClosed sets an application-level callback, invoked at most once.
func (c *ProducerConnection) OnClosed(fn func()) { c.onClosed = fn }

// AddLocalTrack attaches the engine's RTP track and drains the sender's
// RTCP so interceptors keep running.
func (c *ProducerConnection) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

// CreateAndSetOffer produces the local offer and sends it to the viewer.
// Candidates trickle afterwards via OnICECandidate.
func (c *ProducerConnection) CreateAndSetOffer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return c.send.SendOffer(c.viewer, offer.SDP)
}

// ApplyAnswer installs the viewer's answer as the remote description and
// flushes any candidates that arrived ahead of it, in order.
func (c *ProducerConnection) ApplyAnswer(sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
	if err != nil {
		return err
	}
	c.remoteSet = true

	for _, ci := range c.pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("viewer", string(c.viewer)).Msg("flush buffered candidate")
		}
	}
	c.pending = nil
	return nil
}

// AddICECandidate applies a remote ICE candidate, buffering it while the
// answer has not arrived yet.
func (c *ProducerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		return nil
	}
	return c.pc.AddICECandidate(ci)
}

// Close is idempotent.
func (c *ProducerConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("viewer", string(c.viewer)).Msg("close error")
	}
	if c.onClosed != nil {
		c.closeOnce.Do(c.onClosed)
	}
}

// Package producer is the host-side agent: it registers with the relay
// as the stream producer, opens one peer connection per viewer and feeds
// them the engine's video track.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/avdeyev/gamecast/internal/adapters/rtc"
	"github.com/avdeyev/gamecast/internal/adapters/signal"
	"github.com/avdeyev/gamecast/internal/domain"
)

const pingPeriod = 30 * time.Second

// Engine is the opaque emulation side: it produces the video track and
// consumes input events addressed to an in-process producer.
type Engine interface {
	VideoTrack() *webrtc.TrackLocalStaticRTP
	HandleButton(domain.ButtonEvent)
	HandleAnalog(domain.AnalogEvent)
}

type Agent struct {
	relayURL string
	session  domain.SessionID
	rtcCfg   webrtc.Configuration
	engine   Engine

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu    sync.Mutex
	peers map[domain.ConnID]*rtc.ProducerConnection
}

func NewAgent(relayURL string, session domain.SessionID, engine Engine, stunServers []string) *Agent {
	return &Agent{
		relayURL: relayURL,
		session:  session,
		rtcCfg:   rtc.Configuration(stunServers),
		engine:   engine,
		peers:    make(map[domain.ConnID]*rtc.ProducerConnection),
	}
}

// Run connects, registers and serves viewers until ctx is done or the
// relay reports the session over.
func (a *Agent) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.relayURL+"/ws/producer", nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	a.conn = conn
	defer a.closeAll()

	if err := a.writeJSON(signal.RegisterProducer{Type: signal.KindRegisterProducer, Session: a.session}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.readLoop(ctx) })
	g.Go(func() error { return a.pingLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})
	return g.Wait()
}

func (a *Agent) readLoop(ctx context.Context) error {
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read relay: %w", err)
		}

		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "producer").Msg("bad relay json")
			continue
		}
		switch env.Type {
		case signal.KindRegistered:
			log.Info().Str("module", "producer").Str("session", string(a.session)).Msg("registered")
		case signal.KindViewerJoined:
			var msg signal.ViewerJoined
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			a.addViewer(ctx, msg.Viewer)
		case signal.KindSignal:
			var msg signal.Signal
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			a.handleSignal(msg)
		case signal.KindInput:
			var msg signal.Input
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			a.engine.HandleButton(domain.ButtonEvent{Button: msg.Button, Pressed: msg.Pressed})
		case signal.KindInputAnalog:
			var msg signal.InputAnalog
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			a.engine.HandleAnalog(domain.AnalogEvent{Stick: msg.Stick, X: msg.X, Y: msg.Y})
		case signal.KindSessionEnded:
			log.Info().Str("module", "producer").Str("session", string(a.session)).Msg("session ended by relay")
			return nil
		case signal.KindError:
			var msg signal.ErrorMessage
			_ = json.Unmarshal(data, &msg)
			return fmt.Errorf("relay error: %s", msg.Error)
		case signal.KindPong:
		default:
			log.Warn().Str("module", "producer").Str("type", string(env.Type)).Msg("unexpected relay message")
		}
	}
}

func (a *Agent) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.writeJSON(signal.Envelope{Type: signal.KindPing}); err != nil {
				return err
			}
		}
	}
}

// addViewer opens a dedicated peer connection and sends the first offer.
func (a *Agent) addViewer(ctx context.Context, viewer domain.ConnID) {
	pc, err := rtc.NewProducerConnection(a.rtcCfg, viewer, a)
	if err != nil {
		log.Error().Err(err).Str("module", "producer").Str("viewer", string(viewer)).Msg("new peer connection")
		return
	}
	if err := pc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "producer").Str("viewer", string(viewer)).Msg("start peer connection")
		pc.Close()
		return
	}
	if _, err := pc.AddLocalTrack(a.engine.VideoTrack()); err != nil {
		log.Error().Err(err).Str("module", "producer").Str("viewer", string(viewer)).Msg("add track")
		pc.Close()
		return
	}

	a.mu.Lock()
	if old, ok := a.peers[viewer]; ok {
		old.Close()
	}
	a.peers[viewer] = pc
	a.mu.Unlock()

	pc.OnClosed(func() {
		a.mu.Lock()
		if a.peers[viewer] == pc {
			delete(a.peers, viewer)
		}
		a.mu.Unlock()
	})

	if err := pc.CreateAndSetOffer(); err != nil {
		log.Error().Err(err).Str("module", "producer").Str("viewer", string(viewer)).Msg("create offer")
		pc.Close()
	}
}

func (a *Agent) handleSignal(msg signal.Signal) {
	a.mu.Lock()
	pc, ok := a.peers[msg.From]
	a.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "producer").Str("viewer", string(msg.From)).Msg("signal for unknown viewer")
		return
	}

	switch msg.Kind {
	case signal.SignalAnswer:
		var p signal.SDPPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "producer").Msg("bad answer payload")
			return
		}
		if err := pc.ApplyAnswer(p.SDP); err != nil {
			log.Error().Err(err).Str("module", "producer").Str("viewer", string(msg.From)).Msg("apply answer")
		}
	case signal.SignalCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &ci); err != nil {
			log.Error().Err(err).Str("module", "producer").Msg("bad candidate payload")
			return
		}
		if err := pc.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "producer").Str("viewer", string(msg.From)).Msg("add candidate")
		}
	case signal.SignalOffer:
		log.Warn().Str("module", "producer").Msg("unexpected offer from viewer")
	}
}

// SendOffer implements rtc.OfferSender.
func (a *Agent) SendOffer(viewer domain.ConnID, sdp string) error {
	payload, err := json.Marshal(signal.SDPPayload{SDP: sdp})
	if err != nil {
		return err
	}
	return a.writeJSON(signal.Signal{
		Type: signal.KindSignal, Kind: signal.SignalOffer,
		Target: viewer, Payload: payload,
	})
}

// SendCandidate implements rtc.OfferSender.
func (a *Agent) SendCandidate(viewer domain.ConnID, ci webrtc.ICECandidateInit) error {
	payload, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	return a.writeJSON(signal.Signal{
		Type: signal.KindSignal, Kind: signal.SignalCandidate,
		Target: viewer, Payload: payload,
	})
}

func (a *Agent) writeJSON(v any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteJSON(v)
}

func (a *Agent) closeAll() {
	a.mu.Lock()
	peers := make([]*rtc.ProducerConnection, 0, len(a.peers))
	for _, pc := range a.peers {
		peers = append(peers, pc)
	}
	a.peers = make(map[domain.ConnID]*rtc.ProducerConnection)
	a.mu.Unlock()
	for _, pc := range peers {
		pc.Close()
	}
	_ = a.conn.Close()
}

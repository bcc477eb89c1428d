// Package viewer is a headless stream consumer: it joins a session over
// the relay, answers the producer's offer and reports on the media it
// receives. The browser client speaks the same protocol.
package viewer

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

type Client struct {
	relayURL string
	session  domain.SessionID
	rtcCfg   webrtc.Configuration

	conn    *websocket.Conn
	writeMu sync.Mutex
	neg     *rtc.Negotiator

	onStream func(*rtc.MediaStream)
}

func NewClient(relayURL string, session domain.SessionID, stunServers []string) *Client {
	return &Client{
		relayURL: relayURL,
		session:  session,
		rtcCfg:   rtc.Configuration(stunServers),
	}
}

// OnStream registers the callback fired once the remote video arrives.
// Must be set before Run.
func (c *Client) OnStream(fn func(*rtc.MediaStream)) { c.onStream = fn }

// Run joins the session and pumps signaling until ctx is done or the
// session ends.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.relayURL+"/ws/viewer", nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.conn = conn
	defer conn.Close()

	c.neg = rtc.NewNegotiator(c)
	defer c.neg.Destroy()
	if c.onStream != nil {
		c.neg.OnStream(c.onStream)
	}
	c.neg.OnConnected(func() {
		log.Info().Str("module", "viewer").Msg("media connected")
	})
	c.neg.OnError(func(err error) {
		log.Error().Err(err).Str("module", "viewer").Msg("transport error")
	})
	if err := c.neg.Initialize(c.rtcCfg); err != nil {
		return fmt.Errorf("init negotiator: %w", err)
	}

	if err := c.writeJSON(signal.JoinSession{Type: signal.KindJoinSession, Session: c.session}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.pingLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		_ = conn.Close()
		return nil
	})
	return g.Wait()
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read relay: %w", err)
		}

		var env signal.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "viewer").Msg("bad relay json")
			continue
		}
		switch env.Type {
		case signal.KindJoined:
			var msg signal.Joined
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			log.Info().Str("module", "viewer").
				Str("session", string(msg.Session)).
				Str("game", string(msg.Subject.Game)).
				Bool("has_producer", msg.HasProducer).
				Msg("joined")
		case signal.KindProducerUnavailable:
			log.Info().Str("module", "viewer").Msg("waiting for producer")
		case signal.KindSignal:
			var msg signal.Signal
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			c.handleSignal(msg)
		case signal.KindSessionEnded:
			log.Info().Str("module", "viewer").Str("session", string(c.session)).Msg("session ended")
			return nil
		case signal.KindError:
			var msg signal.ErrorMessage
			_ = json.Unmarshal(data, &msg)
			return fmt.Errorf("relay error: %s", msg.Error)
		case signal.KindPong:
		default:
			log.Warn().Str("module", "viewer").Str("type", string(env.Type)).Msg("unexpected relay message")
		}
	}
}

func (c *Client) handleSignal(msg signal.Signal) {
	switch msg.Kind {
	case signal.SignalOffer:
		var p signal.SDPPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Error().Err(err).Str("module", "viewer").Msg("bad offer payload")
			return
		}
		if err := c.neg.HandleOffer(p.SDP); err != nil {
			log.Error().Err(err).Str("module", "viewer").Msg("handle offer")
		}
	case signal.SignalCandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &ci); err != nil {
			log.Error().Err(err).Str("module", "viewer").Msg("bad candidate payload")
			return
		}
		if err := c.neg.HandleCandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "viewer").Msg("handle candidate")
		}
	case signal.SignalAnswer:
		log.Warn().Str("module", "viewer").Msg("unexpected answer from producer")
	}
}

func (c *Client) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.writeJSON(signal.Envelope{Type: signal.KindPing}); err != nil {
				return err
			}
		}
	}
}

// SendAnswer implements rtc.AnswerSender.
func (c *Client) SendAnswer(sdp string) error {
	payload, err := json.Marshal(signal.SDPPayload{SDP: sdp})
	if err != nil {
		return err
	}
	return c.writeJSON(signal.Signal{
		Type: signal.KindSignal, Kind: signal.SignalAnswer, Payload: payload,
	})
}

// SendCandidate implements rtc.AnswerSender.
func (c *Client) SendCandidate(ci webrtc.ICECandidateInit) error {
	payload, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	return c.writeJSON(signal.Signal{
		Type: signal.KindSignal, Kind: signal.SignalCandidate, Payload: payload,
	})
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, id domain.ConnID, c *wsConn, dispatch dispatchFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			dispatch(id, c, data)
		}
	}
}

// dispatchProducer is the closed message set a producer connection may
// send. Everything else is dropped at the boundary.
func (ctl *Controller) dispatchProducer(id domain.ConnID, c *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	switch env.Type {
	case KindRegisterProducer:
		ctl.handleRegisterProducer(id, c, data)
	case KindSignal:
		ctl.handleProducerSignal(id, c, data)
	case KindPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unexpected producer message")
	}
}

// dispatchViewer is the closed message set a viewer connection may send.
func (ctl *Controller) dispatchViewer(id domain.ConnID, c *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	switch env.Type {
	case KindJoinSession:
		ctl.handleJoin(id, c, data)
	case KindSignal:
		ctl.handleViewerSignal(id, c, data)
	case KindInput:
		ctl.handleInput(id, data)
	case KindInputAnalog:
		ctl.handleInputAnalog(id, data)
	case KindPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unexpected viewer message")
	}
}

func (ctl *Controller) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c core.SignalConnection, text string) {
	ctl.sendJSON(c, ErrorMessage{Type: KindError, Error: text})
}

package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

func (ctl *Controller) handleRegisterProducer(id domain.ConnID, c *wsConn, data []byte) {
	var p RegisterProducer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	err := ctl.Orch.RegisterProducer(p.Session, &core.Peer{ID: id, Conn: c})
	switch {
	case errors.Is(err, core.ErrAlreadyRegistered):
		// someone else is already streaming this session
		ctl.sendError(c, "already_registered")
		return
	case errors.Is(err, core.ErrNotFound):
		ctl.sendError(c, "session_not_found")
		return
	case err != nil:
		ctl.sendError(c, "register_failed")
		return
	}
	ctl.sendJSON(c, Registered{Type: KindRegistered, Session: p.Session})
}

// handleProducerSignal forwards an offer/answer/candidate to the
// addressed viewer. A viewer that disconnected in the meantime is skipped
// and logged, never fatal.
func (ctl *Controller) handleProducerSignal(id domain.ConnID, c *wsConn, data []byte) {
	var msg Signal
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		return
	}
	if !msg.Kind.valid() {
		log.Warn().Str("module", "signal").Str("kind", string(msg.Kind)).Msg("unknown signal kind")
		return
	}

	sid, ok := ctl.Orch.Registry.SessionOf(id)
	if !ok {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("signal from unregistered producer")
		return
	}
	viewer, ok := ctl.Orch.Registry.Viewer(sid, msg.Target)
	if !ok {
		log.Info().Str("module", "signal").Str("session", string(sid)).Str("target", string(msg.Target)).Msg("signal target gone, skipped")
		return
	}

	out := Signal{Type: KindSignal, Kind: msg.Kind, From: id, Payload: msg.Payload}
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := viewer.Conn.TrySend(b); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("target", string(msg.Target)).Msg("signal to viewer dropped")
	}
}

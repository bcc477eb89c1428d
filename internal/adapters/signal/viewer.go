package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

func (ctl *Controller) handleJoin(id domain.ConnID, c *wsConn, data []byte) {
	var p JoinSession
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if !ctl.joins.Allow(id) {
		ctl.sendError(c, "rate_limited")
		return
	}

	peer := &core.Peer{ID: id, Conn: c}
	meta, err := ctl.Orch.Registry.RegisterViewer(p.Session, peer)
	switch {
	case errors.Is(err, core.ErrNotFound):
		ctl.sendError(c, "session_not_found")
		return
	case errors.Is(err, core.ErrAlreadyRegistered):
		ctl.sendError(c, "already_joined")
		return
	case err != nil:
		ctl.sendError(c, "join_failed")
		return
	}

	producer, hasProducer := ctl.Orch.Registry.Producer(p.Session)
	ctl.sendJSON(c, Joined{
		Type:        KindJoined,
		Session:     p.Session,
		Subject:     meta.Subject,
		HasProducer: hasProducer,
	})

	if hasProducer {
		ctl.ViewerJoined(producer, p.Session, id)
		return
	}
	// No producer yet; when one registers the orchestrator replays
	// viewer_joined for everyone already here.
	ctl.sendJSON(c, ProducerUnavailable{Type: KindProducerUnavailable, Session: p.Session})
}

// handleViewerSignal forwards an answer/candidate to the session's
// producer. With no producer registered the message is dropped, not
// queued: the viewer joined on a race and the transport will renegotiate.
func (ctl *Controller) handleViewerSignal(id domain.ConnID, c *wsConn, data []byte) {
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
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("signal from unjoined viewer")
		return
	}
	producer, ok := ctl.Orch.Registry.Producer(sid)
	if !ok {
		log.Debug().Str("module", "signal").Str("session", string(sid)).Msg("viewer signal without producer, dropped")
		return
	}

	out := Signal{Type: KindSignal, Kind: msg.Kind, From: id, Payload: msg.Payload}
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := producer.Conn.TrySend(b); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("session", string(sid)).Msg("signal to producer dropped")
	}
}

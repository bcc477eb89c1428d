package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

type sessionEntry struct {
	meta     *domain.Session
	state    domain.SessionState
	producer *core.Peer
	viewers  map[domain.ConnID]*core.Peer
	expire   *time.Timer
}

// SessionInfo is a read-only view for APIs (no transport fields).
type SessionInfo struct {
	ID          domain.SessionID    `json:"id"`
	Subject     domain.Subject      `json:"subject"`
	State       domain.SessionState `json:"-"`
	StateName   string              `json:"state"`
	ViewerCount int                 `json:"viewer_count"`
	HasProducer bool                `json:"has_producer"`
}

// Registry is the in-memory table of streaming sessions plus the reverse
// index from connection handle to session. It never touches the network;
// callers notify affected parties themselves.
type Registry struct {
	mu       sync.RWMutex
	grace    time.Duration
	sessions map[domain.SessionID]*sessionEntry
	conns    map[domain.ConnID]domain.SessionID

	onExpire func(domain.SessionID)
}

func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		grace:    grace,
		sessions: make(map[domain.SessionID]*sessionEntry),
		conns:    make(map[domain.ConnID]domain.SessionID),
	}
}

// SetExpireFunc installs the grace-window sweep callback. Must be set
// before any producer can disconnect.
func (r *Registry) SetExpireFunc(fn func(domain.SessionID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

func (r *Registry) Create(subject domain.Subject) *domain.Session {
	s := domain.NewSession(subject)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = &sessionEntry{
		meta:    s,
		state:   domain.StateWaiting,
		viewers: make(map[domain.ConnID]*core.Peer),
	}
	log.Info().Str("module", "app.registry").Str("session", string(s.ID)).Str("game", string(subject.Game)).Bool("external", subject.ExternalProducer).Msg("session created")
	return s
}

// RegisterProducer binds the producer connection and activates the session.
// A second registration is rejected with ErrAlreadyRegistered, never
// overwritten.
func (r *Registry) RegisterProducer(sid domain.SessionID, peer *core.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.state == domain.StateEnded {
		return core.ErrNotFound
	}
	if e.producer != nil {
		return core.ErrAlreadyRegistered
	}
	if bound, ok := r.conns[peer.ID]; ok && bound != sid {
		// the reverse index is a function, one session per handle
		return core.ErrAlreadyRegistered
	}
	e.producer = peer
	e.state = domain.StateActive
	r.conns[peer.ID] = sid
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Str("conn", string(peer.ID)).Msg("producer registered")
	return nil
}

// RegisterViewer adds the viewer to the session. Idempotent for the same
// connection handle.
func (r *Registry) RegisterViewer(sid domain.SessionID, peer *core.Peer) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.state == domain.StateEnded {
		return nil, core.ErrNotFound
	}
	if bound, ok := r.conns[peer.ID]; ok && bound != sid {
		return nil, core.ErrAlreadyRegistered
	}
	e.viewers[peer.ID] = peer
	r.conns[peer.ID] = sid
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Str("conn", string(peer.ID)).Msg("viewer registered")
	return e.meta, nil
}

func (r *Registry) Snapshot(sid domain.SessionID) (SessionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return SessionInfo{}, core.ErrNotFound
	}
	return r.snapshotLocked(sid, e), nil
}

func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, r.snapshotLocked(sid, e))
	}
	return out
}

func (r *Registry) snapshotLocked(sid domain.SessionID, e *sessionEntry) SessionInfo {
	return SessionInfo{
		ID:          sid,
		Subject:     e.meta.Subject,
		State:       e.state,
		StateName:   e.state.String(),
		ViewerCount: len(e.viewers),
		HasProducer: e.producer != nil,
	}
}

func (r *Registry) Subject(sid domain.SessionID) (domain.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.Subject{}, core.ErrNotFound
	}
	return e.meta.Subject, nil
}

func (r *Registry) State(sid domain.SessionID) (domain.SessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return 0, false
	}
	return e.state, true
}

func (r *Registry) Producer(sid domain.SessionID) (*core.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.producer == nil {
		return nil, false
	}
	return e.producer, true
}

func (r *Registry) Viewer(sid domain.SessionID, id domain.ConnID) (*core.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	v, ok := e.viewers[id]
	return v, ok
}

func (r *Registry) Viewers(sid domain.SessionID) []*core.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]*core.Peer, 0, len(e.viewers))
	for _, v := range e.viewers {
		out = append(out, v)
	}
	return out
}

// SessionOf resolves a connection handle through the reverse index.
func (r *Registry) SessionOf(conn domain.ConnID) (domain.SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.conns[conn]
	return sid, ok
}

// DisconnectResult tells the caller what a connection-close changed.
type DisconnectResult struct {
	SessionID   domain.SessionID
	WasProducer bool
	// Viewers still attached when the producer went away. They stay
	// recorded on the session for audit but leave the reverse index.
	Viewers []*core.Peer
}

// OnDisconnect removes the handle from the registry. A producer close
// marks the session Ended and schedules deletion after the grace window;
// deletion is never synchronous so reconnect races stay harmless.
// Calling it twice with the same handle is a no-op.
func (r *Registry) OnDisconnect(conn domain.ConnID) (DisconnectResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.conns[conn]
	if !ok {
		return DisconnectResult{}, false
	}
	delete(r.conns, conn)
	e, ok := r.sessions[sid]
	if !ok {
		return DisconnectResult{}, false
	}

	if e.producer != nil && e.producer.ID == conn {
		e.producer = nil
		e.state = domain.StateEnded
		res := DisconnectResult{SessionID: sid, WasProducer: true}
		for id, v := range e.viewers {
			delete(r.conns, id)
			res.Viewers = append(res.Viewers, v)
		}
		fn := r.onExpire
		e.expire = time.AfterFunc(r.grace, func() {
			if fn != nil {
				fn(sid)
			}
		})
		log.Info().Str("module", "app.registry").Str("session", string(sid)).Dur("grace", r.grace).Msg("producer disconnected, sweep scheduled")
		return res, true
	}

	delete(e.viewers, conn)
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Str("conn", string(conn)).Msg("viewer disconnected")
	return DisconnectResult{SessionID: sid}, true
}

// Remove deletes the session and its reverse-index entries, cancelling a
// pending sweep. Returns every peer that was still attached so the caller
// can notify them. Idempotent.
func (r *Registry) Remove(sid domain.SessionID) []*core.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	if e.expire != nil {
		e.expire.Stop()
	}
	var peers []*core.Peer
	if e.producer != nil {
		delete(r.conns, e.producer.ID)
		peers = append(peers, e.producer)
	}
	for id, v := range e.viewers {
		delete(r.conns, id)
		peers = append(peers, v)
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("session", string(sid)).Msg("session removed")
	return peers
}

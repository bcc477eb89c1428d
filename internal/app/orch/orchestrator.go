// Package orch owns session lifecycle: creation, producer registration
// and the single teardown path every session end funnels through.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/app"
	"github.com/avdeyev/gamecast/internal/app/input"
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

type cleanupEntry struct {
	external bool
	once     sync.Once
}

type Orchestrator struct {
	Registry *app.Registry
	Launcher core.Launcher
	Injector core.Injector
	Inputs   *input.Router

	// Notifier is installed by the signal adapter after construction.
	Notifier core.Notifier

	mu       sync.Mutex
	cleanups map[domain.SessionID]*cleanupEntry
}

func New(registry *app.Registry, launcher core.Launcher, injector core.Injector, inputs *input.Router) *Orchestrator {
	o := &Orchestrator{
		Registry: registry,
		Launcher: launcher,
		Injector: injector,
		Inputs:   inputs,
		cleanups: make(map[domain.SessionID]*cleanupEntry),
	}
	registry.SetExpireFunc(o.onSweep)
	return o
}

// CreateSession allocates a Waiting session. External subjects spawn the
// emulator process first; a launch failure means no session exists at all.
func (o *Orchestrator) CreateSession(ctx context.Context, subject domain.Subject) (*domain.Session, error) {
	s := o.Registry.Create(subject)

	if subject.ExternalProducer {
		if err := o.Launcher.Launch(ctx, s.ID, subject); err != nil {
			o.Registry.Remove(s.ID)
			log.Error().Err(err).Str("module", "app.orch").Str("game", string(subject.Game)).Msg("emulator launch failed")
			return nil, fmt.Errorf("%w: %v", core.ErrLaunchFailed, err)
		}
		if err := o.Injector.Create(s.ID); err != nil {
			// Video still works without a controller; input will be
			// reported once by the router.
			log.Warn().Err(err).Str("module", "app.orch").Str("session", string(s.ID)).Msg("virtual controller not created")
		}
	}

	o.mu.Lock()
	o.cleanups[s.ID] = &cleanupEntry{external: subject.ExternalProducer}
	o.mu.Unlock()
	return s, nil
}

// RegisterProducer attaches the producer connection. Viewers that joined
// while the session was still Waiting get their viewer_joined replayed so
// the producer opens a peer connection to each of them.
func (o *Orchestrator) RegisterProducer(sid domain.SessionID, peer *core.Peer) error {
	if err := o.Registry.RegisterProducer(sid, peer); err != nil {
		return err
	}
	for _, v := range o.Registry.Viewers(sid) {
		o.Notifier.ViewerJoined(peer, sid, v.ID)
	}
	return nil
}

// OnDisconnect reacts to a closed signaling connection. A producer close
// releases the external collaborators immediately; the session itself
// survives until the grace-window sweep.
func (o *Orchestrator) OnDisconnect(conn domain.ConnID) {
	res, ok := o.Registry.OnDisconnect(conn)
	if !ok {
		return
	}
	if res.WasProducer {
		o.releaseCollaborators(res.SessionID)
	}
}

// StopSession ends a session explicitly, skipping the grace window.
// Safe to call for unknown or already-ended sessions.
func (o *Orchestrator) StopSession(sid domain.SessionID) bool {
	if _, ok := o.Registry.State(sid); !ok {
		return false
	}
	o.releaseCollaborators(sid)
	o.finalize(sid)
	return true
}

// Shutdown tears down every remaining session. Part of server exit.
func (o *Orchestrator) Shutdown() {
	for _, info := range o.Registry.List() {
		o.StopSession(info.ID)
	}
}

func (o *Orchestrator) onSweep(sid domain.SessionID) {
	log.Info().Str("module", "app.orch").Str("session", string(sid)).Msg("grace window elapsed")
	o.releaseCollaborators(sid)
	o.finalize(sid)
}

// releaseCollaborators stops the spawned process and detaches the virtual
// controller exactly once per session, no matter how many end paths fire.
func (o *Orchestrator) releaseCollaborators(sid domain.SessionID) {
	o.mu.Lock()
	entry, ok := o.cleanups[sid]
	o.mu.Unlock()
	if !ok || !entry.external {
		return
	}
	entry.once.Do(func() {
		stopped := o.Launcher.Stop(sid)
		if err := o.Injector.Destroy(sid); err != nil && !errors.Is(err, core.ErrInjectionUnavailable) {
			log.Error().Err(err).Str("module", "app.orch").Str("session", string(sid)).Msg("destroy virtual controller")
		}
		log.Info().Str("module", "app.orch").Str("session", string(sid)).Bool("process_stopped", stopped).Msg("external collaborators released")
	})
}

// finalize removes the session and tells everyone still attached.
func (o *Orchestrator) finalize(sid domain.SessionID) {
	peers := o.Registry.Remove(sid)
	if len(peers) > 0 && o.Notifier != nil {
		o.Notifier.SessionEnded(sid, peers)
	}
	o.Inputs.Forget(sid)
	o.mu.Lock()
	delete(o.cleanups, sid)
	o.mu.Unlock()
}

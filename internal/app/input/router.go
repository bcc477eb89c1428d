// Package input routes viewer controller events to their destination:
// the producer connection for in-process producers, or the virtual
// controller injector for external ones.
package input

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/app"
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

// Router dispatches input events. Events on unknown or ended sessions are
// dropped, never buffered: a held button keeps generating fresh events, so
// losing one frame of input is expected degradation.
type Router struct {
	registry *app.Registry
	injector core.Injector

	mu     sync.Mutex
	warned map[domain.SessionID]bool
}

func NewRouter(registry *app.Registry, injector core.Injector) *Router {
	return &Router{
		registry: registry,
		injector: injector,
		warned:   make(map[domain.SessionID]bool),
	}
}

// RouteButton handles a discrete press/release. raw is the original wire
// frame, forwarded verbatim when the producer interprets input itself.
func (r *Router) RouteButton(from domain.ConnID, ev domain.ButtonEvent, raw core.Frame) {
	sid, subject, ok := r.resolve(from)
	if !ok {
		return
	}
	if !subject.ExternalProducer {
		r.forward(sid, raw)
		return
	}

	var err error
	switch ev.Button {
	case domain.ButtonUp:
		err = r.injector.SetAxis(sid, domain.AxisDpadY, axisValue(ev.Pressed, -1))
	case domain.ButtonDown:
		err = r.injector.SetAxis(sid, domain.AxisDpadY, axisValue(ev.Pressed, 1))
	case domain.ButtonLeft:
		err = r.injector.SetAxis(sid, domain.AxisDpadX, axisValue(ev.Pressed, -1))
	case domain.ButtonRight:
		err = r.injector.SetAxis(sid, domain.AxisDpadX, axisValue(ev.Pressed, 1))
	case domain.ButtonLT:
		err = r.injector.SetAxis(sid, domain.AxisLT, axisValue(ev.Pressed, 1))
	case domain.ButtonRT:
		err = r.injector.SetAxis(sid, domain.AxisRT, axisValue(ev.Pressed, 1))
	default:
		err = r.injector.PressButton(sid, ev.Button, ev.Pressed)
	}
	r.observe(sid, err)
}

// RouteAnalog handles a stick position update.
func (r *Router) RouteAnalog(from domain.ConnID, ev domain.AnalogEvent, raw core.Frame) {
	sid, subject, ok := r.resolve(from)
	if !ok {
		return
	}
	if !subject.ExternalProducer {
		r.forward(sid, raw)
		return
	}

	ax, ay := domain.AxisLeftX, domain.AxisLeftY
	if ev.Stick == domain.StickRight {
		ax, ay = domain.AxisRightX, domain.AxisRightY
	}
	if err := r.injector.SetAxis(sid, ax, ev.X); err != nil {
		r.observe(sid, err)
		return
	}
	r.observe(sid, r.injector.SetAxis(sid, ay, ev.Y))
}

// Forget clears the once-per-session warning state on session end.
func (r *Router) Forget(sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.warned, sid)
}

func (r *Router) resolve(from domain.ConnID) (domain.SessionID, domain.Subject, bool) {
	sid, ok := r.registry.SessionOf(from)
	if !ok {
		log.Debug().Str("module", "app.input").Str("conn", string(from)).Msg("input for unknown connection, dropped")
		return "", domain.Subject{}, false
	}
	state, ok := r.registry.State(sid)
	if !ok || state != domain.StateActive {
		log.Debug().Str("module", "app.input").Str("session", string(sid)).Msg("input for inactive session, dropped")
		return "", domain.Subject{}, false
	}
	subject, err := r.registry.Subject(sid)
	if err != nil {
		return "", domain.Subject{}, false
	}
	return sid, subject, true
}

func (r *Router) forward(sid domain.SessionID, raw core.Frame) {
	producer, ok := r.registry.Producer(sid)
	if !ok {
		log.Debug().Str("module", "app.input").Str("session", string(sid)).Msg("input without producer, dropped")
		return
	}
	if err := producer.Conn.TrySend(raw); err != nil {
		log.Warn().Err(err).Str("module", "app.input").Str("session", string(sid)).Msg("input forward failed")
	}
}

// observe logs injection unavailability once per session instead of per
// event.
func (r *Router) observe(sid domain.SessionID, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, core.ErrInjectionUnavailable) {
		r.mu.Lock()
		seen := r.warned[sid]
		r.warned[sid] = true
		r.mu.Unlock()
		if !seen {
			log.Warn().Str("module", "app.input").Str("session", string(sid)).Msg("virtual controller unavailable, input has no effect")
		}
		return
	}
	log.Error().Err(err).Str("module", "app.input").Str("session", string(sid)).Msg("inject input")
}

func axisValue(pressed bool, dir float64) float64 {
	if pressed {
		return dir
	}
	return 0
}

//go:build !linux

package gamepad

import (
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

// stubInjector reports injection as unavailable on hosts without uinput.
// Sessions still stream video; input just has no effect.
type stubInjector struct{}

func New() core.Injector { return stubInjector{} }

func (stubInjector) Create(domain.SessionID) error { return core.ErrInjectionUnavailable }

func (stubInjector) PressButton(domain.SessionID, domain.Button, bool) error {
	return core.ErrInjectionUnavailable
}

func (stubInjector) SetAxis(domain.SessionID, domain.Axis, float64) error {
	return core.ErrInjectionUnavailable
}

func (stubInjector) Destroy(domain.SessionID) error { return nil }

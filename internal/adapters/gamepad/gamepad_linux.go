//go:build linux

// Package gamepad injects viewer input into the OS as a virtual game
// controller, one device per session.
package gamepad

import (
	"fmt"
	"sync"

	"github.com/bendahl/uinput"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

const uinputPath = "/dev/uinput"

var buttonCodes = map[domain.Button]int{
	domain.ButtonA:      uinput.ButtonSouth,
	domain.ButtonB:      uinput.ButtonEast,
	domain.ButtonX:      uinput.ButtonWest,
	domain.ButtonY:      uinput.ButtonNorth,
	domain.ButtonStart:  uinput.ButtonStart,
	domain.ButtonSelect: uinput.ButtonSelect,
	domain.ButtonL:      uinput.ButtonBumperLeft,
	domain.ButtonR:      uinput.ButtonBumperRight,
	domain.ButtonL3:     uinput.ButtonThumbLeft,
	domain.ButtonR3:     uinput.ButtonThumbRight,
}

// UinputInjector implements core.Injector over /dev/uinput. At most one
// virtual pad exists per session.
type UinputInjector struct {
	mu   sync.Mutex
	pads map[domain.SessionID]uinput.Gamepad
}

func New() core.Injector {
	return &UinputInjector{pads: make(map[domain.SessionID]uinput.Gamepad)}
}

func (i *UinputInjector) Create(sid domain.SessionID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.pads[sid]; ok {
		return nil
	}
	pad, err := uinput.CreateGamepad(uinputPath, []byte("gamecast-pad"), 0x045e, 0x028e)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInjectionUnavailable, err)
	}
	i.pads[sid] = pad
	log.Info().Str("module", "gamepad").Str("session", string(sid)).Msg("virtual pad created")
	return nil
}

func (i *UinputInjector) PressButton(sid domain.SessionID, name domain.Button, down bool) error {
	pad, err := i.pad(sid)
	if err != nil {
		return err
	}
	code, ok := buttonCodes[name]
	if !ok {
		return fmt.Errorf("unmapped button %q", name)
	}
	if down {
		return pad.ButtonDown(code)
	}
	return pad.ButtonUp(code)
}

func (i *UinputInjector) SetAxis(sid domain.SessionID, name domain.Axis, value float64) error {
	pad, err := i.pad(sid)
	if err != nil {
		return err
	}
	v := float32(value)
	switch name {
	case domain.AxisLeftX:
		return pad.LeftStickMoveX(v)
	case domain.AxisLeftY:
		return pad.LeftStickMoveY(v)
	case domain.AxisRightX:
		return pad.RightStickMoveX(v)
	case domain.AxisRightY:
		return pad.RightStickMoveY(v)
	case domain.AxisDpadX:
		return hat(pad, value, uinput.HatLeft, uinput.HatRight)
	case domain.AxisDpadY:
		return hat(pad, value, uinput.HatUp, uinput.HatDown)
	case domain.AxisLT:
		return trigger(pad, value, uinput.ButtonTriggerLeft)
	case domain.AxisRT:
		return trigger(pad, value, uinput.ButtonTriggerRight)
	default:
		return fmt.Errorf("unmapped axis %q", name)
	}
}

func (i *UinputInjector) Destroy(sid domain.SessionID) error {
	i.mu.Lock()
	pad, ok := i.pads[sid]
	delete(i.pads, sid)
	i.mu.Unlock()
	if !ok {
		return nil
	}
	log.Info().Str("module", "gamepad").Str("session", string(sid)).Msg("virtual pad destroyed")
	return pad.Close()
}

func (i *UinputInjector) pad(sid domain.SessionID) (uinput.Gamepad, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	pad, ok := i.pads[sid]
	if !ok {
		return nil, core.ErrInjectionUnavailable
	}
	return pad, nil
}

// hat maps a signed d-pad axis onto hat press/release events.
func hat(pad uinput.Gamepad, value float64, neg, pos uinput.HatDirection) error {
	switch {
	case value < 0:
		return pad.HatPress(neg)
	case value > 0:
		return pad.HatPress(pos)
	default:
		if err := pad.HatRelease(neg); err != nil {
			return err
		}
		return pad.HatRelease(pos)
	}
}

// trigger treats an analog trigger as a digital press on the device.
func trigger(pad uinput.Gamepad, value float64, code int) error {
	if value > 0 {
		return pad.ButtonDown(code)
	}
	return pad.ButtonUp(code)
}

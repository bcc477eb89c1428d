package input

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdeyev/gamecast/internal/app"
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

type axisWrite struct {
	axis  domain.Axis
	value float64
}

type fakeInjector struct {
	mu      sync.Mutex
	fail    error
	buttons []domain.Button
	axes    []axisWrite
}

func (f *fakeInjector) Create(domain.SessionID) error { return f.fail }

func (f *fakeInjector) PressButton(_ domain.SessionID, name domain.Button, down bool) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = append(f.buttons, name)
	return nil
}

func (f *fakeInjector) SetAxis(_ domain.SessionID, name domain.Axis, value float64) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.axes = append(f.axes, axisWrite{name, value})
	return nil
}

func (f *fakeInjector) Destroy(domain.SessionID) error { return nil }

type captureConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *captureConn) TrySend(fr core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, fr)
	return nil
}

func (c *captureConn) Close() {}

func activeSession(t *testing.T, r *app.Registry, external bool) (domain.SessionID, *captureConn) {
	t.Helper()
	s := r.Create(domain.Subject{Game: "zelda", ExternalProducer: external})
	conn := &captureConn{}
	require.NoError(t, r.RegisterProducer(s.ID, &core.Peer{ID: "prod", Conn: conn}))
	_, err := r.RegisterViewer(s.ID, &core.Peer{ID: "view", Conn: &captureConn{}})
	require.NoError(t, err)
	return s.ID, conn
}

func TestDpadMapsToHatAxis(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	activeSession(t, reg, true)

	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonUp, Pressed: true}, nil)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonUp, Pressed: false}, nil)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonRight, Pressed: true}, nil)

	require.Equal(t, []axisWrite{
		{domain.AxisDpadY, -1},
		{domain.AxisDpadY, 0},
		{domain.AxisDpadX, 1},
	}, inj.axes)
	require.Empty(t, inj.buttons)
}

func TestTriggersMapToAxis(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	activeSession(t, reg, true)

	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonLT, Pressed: true}, nil)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonRT, Pressed: false}, nil)

	require.Equal(t, []axisWrite{
		{domain.AxisLT, 1},
		{domain.AxisRT, 0},
	}, inj.axes)
}

func TestFaceButtonsPressed(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	activeSession(t, reg, true)

	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonStart, Pressed: true}, nil)

	require.Equal(t, []domain.Button{domain.ButtonA, domain.ButtonStart}, inj.buttons)
	require.Empty(t, inj.axes)
}

func TestAnalogWritesBothAxes(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	activeSession(t, reg, true)

	router.RouteAnalog("view", domain.AnalogEvent{Stick: domain.StickLeft, X: 0.5, Y: -0.25}, nil)
	router.RouteAnalog("view", domain.AnalogEvent{Stick: domain.StickRight, X: -1, Y: 1}, nil)

	require.Equal(t, []axisWrite{
		{domain.AxisLeftX, 0.5},
		{domain.AxisLeftY, -0.25},
		{domain.AxisRightX, -1},
		{domain.AxisRightY, 1},
	}, inj.axes)
}

func TestInProcessForwardsRawFrame(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	_, prodConn := activeSession(t, reg, false)

	raw := core.Frame(`{"type":"input","button":"a","pressed":true}`)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, raw)

	require.Equal(t, []core.Frame{raw}, prodConn.frames)
	require.Empty(t, inj.buttons, "in-process sessions never touch the injector")
	require.Empty(t, inj.axes)
}

func TestInputDroppedWhenNotActive(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)

	// unknown connection
	router.RouteButton("ghost", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)

	// waiting session: viewer joined but producer has not
	s := reg.Create(domain.Subject{Game: "zelda", ExternalProducer: true})
	_, err := reg.RegisterViewer(s.ID, &core.Peer{ID: "view", Conn: &captureConn{}})
	require.NoError(t, err)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)

	require.Empty(t, inj.buttons)
	require.Empty(t, inj.axes)
}

func TestInputDroppedAfterProducerGone(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{}
	router := NewRouter(reg, inj)
	activeSession(t, reg, true)

	_, ok := reg.OnDisconnect("prod")
	require.True(t, ok)

	// ended session must not resurrect through input
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)
	router.RouteAnalog("view", domain.AnalogEvent{Stick: domain.StickLeft, X: 1, Y: 1}, nil)

	require.Empty(t, inj.buttons)
	require.Empty(t, inj.axes)
}

func TestUnavailableInjectorDoesNotPanic(t *testing.T) {
	reg := app.NewRegistry(time.Minute)
	inj := &fakeInjector{fail: core.ErrInjectionUnavailable}
	router := NewRouter(reg, inj)
	sid, _ := activeSession(t, reg, true)

	// repeated events stay quiet failures
	for i := 0; i < 3; i++ {
		router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)
	}
	router.Forget(sid)
	router.RouteButton("view", domain.ButtonEvent{Button: domain.ButtonA, Pressed: true}, nil)
}

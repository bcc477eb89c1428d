package domain

// Button is a logical gamepad button name as sent by viewers.
type Button string

const (
	ButtonA      Button = "a"
	ButtonB      Button = "b"
	ButtonX      Button = "x"
	ButtonY      Button = "y"
	ButtonStart  Button = "start"
	ButtonSelect Button = "select"
	ButtonL      Button = "l"
	ButtonR      Button = "r"
	ButtonL3     Button = "l3"
	ButtonR3     Button = "r3"
	ButtonUp     Button = "up"
	ButtonDown   Button = "down"
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonLT     Button = "lt"
	ButtonRT     Button = "rt"
)

// Axis is a single device-level axis on the virtual controller.
// D-pad directions and triggers are signed axes, not discrete buttons.
type Axis string

const (
	AxisLeftX  Axis = "left_x"
	AxisLeftY  Axis = "left_y"
	AxisRightX Axis = "right_x"
	AxisRightY Axis = "right_y"
	AxisDpadX  Axis = "dpad_x"
	AxisDpadY  Axis = "dpad_y"
	AxisLT     Axis = "trigger_left"
	AxisRT     Axis = "trigger_right"
)

// AxisPair names an analog stick as reported by the viewer controller UI.
type AxisPair string

const (
	StickLeft  AxisPair = "left"
	StickRight AxisPair = "right"
)

type ButtonEvent struct {
	Button  Button
	Pressed bool
}

type AnalogEvent struct {
	Stick AxisPair
	X     float64
	Y     float64
}

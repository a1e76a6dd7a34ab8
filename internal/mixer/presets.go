package mixer

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Mode is an airframe preset. The numbering is the one used by the
// configurator.
type Mode uint8

const (
	ModeTri Mode = iota + 1
	ModeQuadP
	ModeQuadX
	ModeBicopter
	ModeGimbal
	ModeY6
	ModeHex6P
	ModeFlyingWing
	ModeY4
	ModeHex6X
	ModeOctoX8
	ModeOctoFlatP
	ModeOctoFlatX
	ModeAirplane
	ModeHeli120
	ModeHeli90
	ModeVTail4
	ModeHex6H
	ModePPMToServo
	ModeDualcopter
	ModeSinglecopter
	ModeATail4
	ModeCustom
	ModeCustomAirplane
	ModeCustomTri
	modeEnd
)

var modeNames = [modeEnd]string{
	"", "tri", "quadp", "quadx", "bicopter", "gimbal", "y6", "hex6p", "flying_wing", "y4", "hex6x",
	"octox8", "octoflatp", "octoflatx", "airplane", "heli120", "heli90", "vtail4", "hex6h",
	"ppm_to_servo", "dualcopter", "singlecopter", "atail4", "custom", "custom_airplane", "custom_tri",
}

func (m Mode) String() string {
	if m > 0 && m < modeEnd {
		return modeNames[m]
	}
	return "unknown"
}

// Custom reports whether the mode takes its rules from the configuration.
func (m Mode) Custom() bool {
	return m == ModeCustom || m == ModeCustomAirplane || m == ModeCustomTri
}

// ParseMode maps a preset name to its value.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := Mode(1); i < modeEnd; i++ {
		if modeNames[i] == s {
			return i, nil
		}
	}
	return 0, errors.Errorf("unknown mixer mode %q", s)
}

func (m *Mode) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// motorMix is one motor's share of throttle, roll, pitch and yaw.
type motorMix struct {
	throttle, roll, pitch, yaw float64
}

/* QuadX
4CW   2CCW
   \ /
    X
   / \
3CCW  1CW
*/
var mixQuadX = []motorMix{
	{1, -1, 1, -1}, // rear right
	{1, -1, -1, 1}, // front right
	{1, 1, 1, 1},   // rear left
	{1, 1, -1, -1}, // front left
}

var mixQuadP = []motorMix{
	{1, 0, 1, -1},  // rear
	{1, -1, 0, 1},  // right
	{1, 1, 0, 1},   // left
	{1, 0, -1, -1}, // front
}

var mixVTail4 = []motorMix{
	{1, -0.58, 0.58, 1},
	{1, -0.46, -0.39, -0.5},
	{1, 0.58, 0.58, -1},
	{1, 0.46, -0.39, 0.5},
}

var mixATail4 = []motorMix{
	{1, -0.58, 0.58, -1},
	{1, -0.46, -0.39, 0.5},
	{1, 0.58, 0.58, 1},
	{1, 0.46, -0.39, -0.5},
}

var mixY4 = []motorMix{
	{1, 0, 1, -1},  // rear top, CW
	{1, -1, -1, 0}, // front right, CCW
	{1, 0, 1, 1},   // rear bottom, CCW
	{1, 1, -1, 0},  // front left, CW
}

var mixY6 = []motorMix{
	{1, 0, 1.333333, 1},
	{1, -1, -0.666667, -1},
	{1, 1, -0.666667, -1},
	{1, 0, 1.333333, -1},
	{1, -1, -0.666667, 1},
	{1, 1, -0.666667, 1},
}

var mixHex6H = []motorMix{
	{1, -1, 1, -1},
	{1, -1, -1, 1},
	{1, 1, 1, 1},
	{1, 1, -1, -1},
	{1, 0, 0, 0},
	{1, 0, 0, 0},
}

var mixHex6P = []motorMix{
	{1, -0.866025, 0.5, 1},
	{1, -0.866025, -0.5, -1},
	{1, 0.866025, 0.5, 1},
	{1, 0.866025, -0.5, -1},
	{1, 0, -1, 1},
	{1, 0, 1, -1},
}

var mixHex6X = []motorMix{
	{1, -0.5, 0.866025, 1},
	{1, -0.5, -0.866025, 1},
	{1, 0.5, 0.866025, -1},
	{1, 0.5, -0.866025, -1},
	{1, -1, 0, -1},
	{1, 1, 0, 1},
}

var mixOctoX8 = []motorMix{
	{1, -1, 1, -1},
	{1, -1, -1, 1},
	{1, 1, 1, 1},
	{1, 1, -1, -1},
	{1, -1, 1, 1},
	{1, -1, -1, -1},
	{1, 1, 1, -1},
	{1, 1, -1, 1},
}

var mixOctoFlatP = []motorMix{
	{1, 0.707107, -0.707107, 1},
	{1, -0.707107, -0.707107, 1},
	{1, -0.707107, 0.707107, 1},
	{1, 0.707107, 0.707107, 1},
	{1, 0, -1, -1},
	{1, -1, 0, -1},
	{1, 0, 1, -1},
	{1, 1, 0, -1},
}

var mixOctoFlatX = []motorMix{
	{1, 1, -0.414178, 1},
	{1, -0.414178, -1, 1},
	{1, -1, 0.414178, 1},
	{1, 0.414178, 1, 1},
	{1, 0.414178, -1, -1},
	{1, -1, -0.414178, -1},
	{1, -0.414178, 1, -1},
	{1, 1, 0.414178, -1},
}

var mixTri = []motorMix{
	{1, 0, 1.333333, 0},
	{1, -1, -0.666667, 0},
	{1, 1, -0.666667, 0},
}

var mixBicopter = []motorMix{
	{1, 1, 0, 0},
	{1, -1, 0, 0},
}

var mixDualcopter = []motorMix{
	{1, 0, 0, -1},
	{1, 0, 0, 1},
}

var mixSingleProp = []motorMix{
	{1, 0, 0, 0},
}

func rule(out Output, in Input, scale int16) Rule {
	return Rule{Output: out, Input: in, Scale: scale}
}

var servoTri = []Rule{
	rule(Servo(0), InputYaw, ScaleUnity),
}

var servoBicopter = []Rule{
	rule(Servo(0), InputYaw, ScaleUnity),
	rule(Servo(0), InputPitch, ScaleUnity),
	rule(Servo(1), InputYaw, ScaleUnity),
	rule(Servo(1), InputPitch, ScaleUnity),
}

var servoGimbal = []Rule{
	rule(Servo(0), InputGimbalPitch, 1250),
	rule(Servo(1), InputGimbalRoll, 1250),
}

var servoFlyingWing = []Rule{
	rule(Servo(0), InputRoll, ScaleUnity),
	rule(Servo(0), InputPitch, ScaleUnity),
	rule(Servo(1), InputRoll, -ScaleUnity),
	rule(Servo(1), InputPitch, ScaleUnity),
	rule(Servo(2), InputThrottle, ScaleUnity),
}

var servoAirplane = []Rule{
	rule(Servo(0), InputRoll, ScaleUnity), // flaperons
	rule(Servo(1), InputRoll, ScaleUnity),
	rule(Servo(2), InputYaw, ScaleUnity),   // rudder
	rule(Servo(3), InputPitch, ScaleUnity), // elevator
	rule(Servo(4), InputThrottle, ScaleUnity),
}

// 120 degree swashplate: front, left and right servos share the collective.
var servoHeli120 = []Rule{
	rule(Servo(0), InputThrottle, ScaleUnity),
	rule(Servo(0), InputPitch, ScaleUnity),
	rule(Servo(1), InputThrottle, ScaleUnity),
	rule(Servo(1), InputPitch, -500),
	rule(Servo(1), InputRoll, 866),
	rule(Servo(2), InputThrottle, ScaleUnity),
	rule(Servo(2), InputPitch, -500),
	rule(Servo(2), InputRoll, -866),
	rule(Servo(3), InputYaw, ScaleUnity),
}

var servoHeli90 = []Rule{
	rule(Servo(0), InputRoll, ScaleUnity),
	rule(Servo(1), InputPitch, ScaleUnity),
	rule(Servo(2), InputThrottle, ScaleUnity),
	rule(Servo(3), InputYaw, ScaleUnity),
}

var servoPPMToServo = []Rule{
	rule(Servo(0), InputRCRoll, ScaleUnity),
	rule(Servo(1), InputRCPitch, ScaleUnity),
	rule(Servo(2), InputRCYaw, ScaleUnity),
	rule(Servo(3), InputRCThrottle, ScaleUnity),
	rule(Servo(4), InputRCAux1, ScaleUnity),
	rule(Servo(5), InputRCAux2, ScaleUnity),
	rule(Servo(6), InputRCAux3, ScaleUnity),
	rule(Servo(7), InputRCAux4, ScaleUnity),
}

var servoDualcopter = []Rule{
	rule(Servo(0), InputPitch, ScaleUnity),
	rule(Servo(1), InputRoll, ScaleUnity),
}

var servoSinglecopter = []Rule{
	rule(Servo(0), InputYaw, ScaleUnity),
	rule(Servo(0), InputPitch, ScaleUnity),
	rule(Servo(1), InputYaw, ScaleUnity),
	rule(Servo(1), InputPitch, ScaleUnity),
	rule(Servo(2), InputYaw, ScaleUnity),
	rule(Servo(2), InputRoll, ScaleUnity),
	rule(Servo(3), InputYaw, ScaleUnity),
	rule(Servo(3), InputRoll, ScaleUnity),
}

type preset struct {
	motors []motorMix
	servos []Rule
}

var presets = map[Mode]preset{
	ModeTri:          {mixTri, servoTri},
	ModeQuadP:        {mixQuadP, nil},
	ModeQuadX:        {mixQuadX, nil},
	ModeBicopter:     {mixBicopter, servoBicopter},
	ModeGimbal:       {nil, servoGimbal},
	ModeY6:           {mixY6, nil},
	ModeHex6P:        {mixHex6P, nil},
	ModeFlyingWing:   {mixSingleProp, servoFlyingWing},
	ModeY4:           {mixY4, nil},
	ModeHex6X:        {mixHex6X, nil},
	ModeOctoX8:       {mixOctoX8, nil},
	ModeOctoFlatP:    {mixOctoFlatP, nil},
	ModeOctoFlatX:    {mixOctoFlatX, nil},
	ModeAirplane:     {mixSingleProp, servoAirplane},
	ModeHeli120:      {mixSingleProp, servoHeli120},
	ModeHeli90:       {mixSingleProp, servoHeli90},
	ModeVTail4:       {mixVTail4, nil},
	ModeHex6H:        {mixHex6H, nil},
	ModePPMToServo:   {nil, servoPPMToServo},
	ModeDualcopter:   {mixDualcopter, servoDualcopter},
	ModeSinglecopter: {mixSingleProp, servoSinglecopter},
	ModeATail4:       {mixATail4, nil},
}

// presetRules expands a preset into rules. Zero factors produce no rule.
func presetRules(m Mode, dst *RuleSet) bool {
	p, ok := presets[m]
	if !ok {
		return false
	}
	for i, mix := range p.motors {
		out := Motor(i)
		for _, term := range []struct {
			in     Input
			factor float64
		}{
			{InputThrottle, mix.throttle},
			{InputRoll, mix.roll},
			{InputPitch, mix.pitch},
			{InputYaw, mix.yaw},
		} {
			if term.factor == 0 {
				continue
			}
			dst.Add(rule(out, term.in, int16(mathx.Lrint(term.factor*ScaleUnity))))
		}
	}
	for _, r := range p.servos {
		dst.Add(r)
	}
	return true
}

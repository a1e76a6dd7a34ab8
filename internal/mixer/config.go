package mixer

import (
	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Pulse widths in µs accepted from the configuration.
const (
	PulseMin = 750
	PulseMax = 2250

	DefaultMinCommand = 1000
	DefaultServoMin   = 1000
	DefaultServoMax   = 2000
	DefaultServoMid   = 1500
)

// ServoConfig is the travel of one servo. Rate is a percentage and may be
// negative to reverse the servo.
type ServoConfig struct {
	Min    int16 `yaml:"min"`
	Max    int16 `yaml:"max"`
	Middle int16 `yaml:"middle"`
	Rate   int8  `yaml:"rate"`
}

// Config selects the airframe and the output ranges.
type Config struct {
	Mode        Mode   `yaml:"mode"`
	CustomRules []Rule `yaml:"custom_rules,omitempty"`

	MinCommand  int16 `yaml:"mincommand"`  // motors when stopped
	MinThrottle int16 `yaml:"minthrottle"` // motors when armed at idle
	MaxThrottle int16 `yaml:"maxthrottle"`
	MidRC       int16 `yaml:"midrc"`

	Servos [MaxServos]ServoConfig `yaml:"servos"`
}

// DefaultConfig returns a QuadX with stock output ranges.
func DefaultConfig() Config {
	c := Config{
		Mode:        ModeQuadX,
		MinCommand:  DefaultMinCommand,
		MinThrottle: 1150,
		MaxThrottle: 1850,
		MidRC:       1500,
	}
	for i := range c.Servos {
		c.Servos[i] = ServoConfig{Min: DefaultServoMin, Max: DefaultServoMax, Middle: DefaultServoMid, Rate: 100}
	}
	return c
}

// Validate reports the first setting that would be replaced when the mixer
// is built. The mixer itself runs with any configuration.
func (c Config) Validate() error {
	pulse := func(name string, v int16) error {
		if v < PulseMin || v > PulseMax {
			return errors.Errorf("%s %d out of range %d..%d", name, v, PulseMin, PulseMax)
		}
		return nil
	}
	if c.Mode == 0 || c.Mode >= modeEnd {
		return errors.Errorf("unknown mixer mode %d", c.Mode)
	}
	if len(c.CustomRules) > MaxRules {
		return errors.Errorf("%d custom rules, at most %d", len(c.CustomRules), MaxRules)
	}
	for i, r := range c.CustomRules {
		if !r.valid() {
			return errors.Errorf("custom rule %d references output %d input %d", i, r.Output, r.Input)
		}
	}
	for _, p := range []struct {
		name string
		v    int16
	}{
		{"mincommand", c.MinCommand},
		{"minthrottle", c.MinThrottle},
		{"maxthrottle", c.MaxThrottle},
		{"midrc", c.MidRC},
	} {
		if err := pulse(p.name, p.v); err != nil {
			return err
		}
	}
	if c.MaxThrottle < c.MinThrottle {
		return errors.Errorf("maxthrottle %d below minthrottle %d", c.MaxThrottle, c.MinThrottle)
	}
	for i, s := range c.Servos {
		if s.Min > s.Max || s.Middle < s.Min || s.Middle > s.Max {
			return errors.Errorf("servo %d: middle %d not within %d..%d", i+1, s.Middle, s.Min, s.Max)
		}
	}
	return nil
}

// sanitize replaces unusable values so that the outputs stay in range:
// pulses outside [PulseMin, PulseMax] fall back, max is raised to at least
// min and the centre is moved into [min, max].
func (c Config) sanitize() Config {
	inRange := func(v int16) bool { return v >= PulseMin && v <= PulseMax }
	if !inRange(c.MinCommand) {
		c.MinCommand = DefaultMinCommand
	}
	for _, v := range []*int16{&c.MinThrottle, &c.MaxThrottle, &c.MidRC} {
		if !inRange(*v) {
			*v = c.MinCommand
		}
	}
	c.MaxThrottle = max(c.MaxThrottle, c.MinThrottle)

	for i := range c.Servos {
		s := &c.Servos[i]
		if !inRange(s.Min) {
			s.Min = DefaultServoMin
		}
		if !inRange(s.Max) {
			s.Max = DefaultServoMax
		}
		if !inRange(s.Middle) {
			s.Middle = DefaultServoMid
		}
		s.Max = max(s.Max, s.Min)
		s.Middle = mathx.Constrain(s.Middle, s.Min, s.Max)
		s.Rate = mathx.Constrain(s.Rate, -125, 125)
	}
	return c
}

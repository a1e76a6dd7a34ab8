package pid

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Item indexes the gain tables.
type Item uint8

const (
	Roll Item = iota
	Pitch
	Yaw
	Alt
	Pos
	PosR
	NavR
	Level
	Mag
	Vel
	ItemCount
)

// Limits shared by the strategies.
const (
	MaxI              = 256
	MaxD              = 512
	GyroIMax          = 256
	YawPLimitMin      = 100
	YawPLimitMax      = 500
	DtermAverageCount = 4

	MinLoopTime = 125    // µs
	MaxLoopTime = 0xFFFF // µs

	MaxTPARate = 100 // percent
)

// Algorithm selects the controller strategy.
type Algorithm uint8

const (
	MW23 Algorithm = iota
	MWRewrite
	LuxFloat
	algorithmCount
)

var algorithmNames = [algorithmCount]string{"mw23", "mwrewrite", "luxfloat"}

func (a Algorithm) String() string {
	if a < algorithmCount {
		return algorithmNames[a]
	}
	return "unknown"
}

// ParseAlgorithm maps a strategy name to its value.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range algorithmNames {
		if name == s {
			return Algorithm(i), nil
		}
	}
	return MWRewrite, errors.Errorf("unknown pid algorithm %q", s)
}

func (a *Algorithm) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseAlgorithm(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Algorithm) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// Config is the controller tuning. It is copied into the controller and not
// changed during flight.
type Config struct {
	P [ItemCount]uint8 `yaml:"p"`
	I [ItemCount]uint8 `yaml:"i"`
	D [ItemCount]uint8 `yaml:"d"`

	Algorithm  Algorithm `yaml:"algorithm"`
	YawPLimit  uint16    `yaml:"yaw_p_limit"`
	DtermCutHz uint16    `yaml:"dterm_cut_hz"`
	LoopTime   uint32    `yaml:"looptime"` // µs

	Rates               [3]uint8 `yaml:"rates"`
	MaxAngleInclination int16    `yaml:"max_angle_inclination"` // decidegrees
	AngleTrim           [2]int16 `yaml:"angle_trim"`            // roll, pitch decidegrees

	// Throttle PID attenuation: above TPABreakpoint the roll and pitch P and
	// D fall linearly to 100-TPARate percent at full throttle.
	TPABreakpoint uint16 `yaml:"tpa_breakpoint"` // µs
	TPARate       uint8  `yaml:"tpa_rate"`       // percent

	// GyroScale is °/s per gyro count. Set from the sensor driver.
	GyroScale float64 `yaml:"-"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		//   Roll Pitch Yaw Alt Pos PosR NavR Level Mag Vel
		P: [ItemCount]uint8{40, 40, 85, 50, 15, 34, 25, 20, 40, 120},
		I: [ItemCount]uint8{30, 30, 45, 0, 0, 14, 33, 10, 0, 45},
		D: [ItemCount]uint8{23, 23, 0, 0, 0, 53, 83, 100, 0, 1},

		Algorithm:           MWRewrite,
		YawPLimit:           YawPLimitMax,
		LoopTime:            2000,
		MaxAngleInclination: 500,
		TPABreakpoint:       1500,
		GyroScale:           1 / 16.4,
	}
}

// Validate reports the first setting the controller cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Algorithm >= algorithmCount:
		return errors.Errorf("unknown pid algorithm %d", c.Algorithm)
	case c.LoopTime < MinLoopTime || c.LoopTime > MaxLoopTime:
		return errors.Errorf("looptime %dµs out of range %d..%d", c.LoopTime, MinLoopTime, MaxLoopTime)
	case c.YawPLimit != 0 && (c.YawPLimit < YawPLimitMin || c.YawPLimit > YawPLimitMax):
		return errors.Errorf("yaw_p_limit %d out of range %d..%d", c.YawPLimit, YawPLimitMin, YawPLimitMax)
	case c.MaxAngleInclination <= 0 || c.MaxAngleInclination > 900:
		return errors.Errorf("max_angle_inclination %d out of range 1..900", c.MaxAngleInclination)
	case c.TPABreakpoint < 1000 || c.TPABreakpoint > 2000:
		return errors.Errorf("tpa_breakpoint %d out of range 1000..2000", c.TPABreakpoint)
	case c.TPARate > MaxTPARate:
		return errors.Errorf("tpa_rate %d above %d", c.TPARate, MaxTPARate)
	case c.GyroScale <= 0:
		return errors.New("gyro scale must be positive")
	}
	return nil
}

// TPA is the roll and pitch P and D weight in percent for a raw throttle
// pulse.
func (c Config) TPA(throttle uint16) int32 {
	thr, bp, rate := int32(throttle), int32(c.TPABreakpoint), int32(c.TPARate)
	switch {
	case thr < bp:
		return 100
	case thr < 2000:
		return 100 - rate*(thr-bp)/(2000-bp)
	}
	return 100 - rate
}

// AxisScale is the legacy strategy gain scale in percent for an axis whose
// stick is deflected by deflection (0..500). The rate setting lowers the
// gains towards full stick; tpa applies to roll and pitch only.
func (c Config) AxisScale(axis Axis, deflection, tpa int32) int32 {
	deflection = min(max(deflection, 0), 500)
	scale := max(100-int32(c.Rates[axis])*deflection/500, 0)
	if axis != Yaw {
		scale = scale * tpa / 100
	}
	return scale
}

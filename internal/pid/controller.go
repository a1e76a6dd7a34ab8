// Package pid implements the angle-rate controller. Three strategies are
// available and selected by configuration; all of them turn the difference
// between the commanded and the measured rotation rate into a torque command
// per axis.
package pid

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Axis indexes the three controlled axes.
type Axis = Item

// Mode is the flight mode that decides how stick input becomes a rate.
type Mode uint8

const (
	// ModeAcro maps sticks to rotation rates.
	ModeAcro Mode = iota
	// ModeAngle maps sticks to attitude angles.
	ModeAngle
	// ModeHorizon blends self levelling in near centre stick.
	ModeHorizon

	modeCount
)

var modeNames = [modeCount]string{"acro", "angle", "horizon"}

func (m Mode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return "unknown"
}

// ParseMode maps a flight mode name to its value.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return ModeAcro, errors.Errorf("unknown flight mode %q", s)
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

// CycleInput carries the mixer feedback from the previous cycle.
type CycleInput struct {
	MotorLimitReached bool
	MotorCount        int
}

// Output is the result of the last update. P, I and D are the components
// that were summed into Axis.
type Output struct {
	Axis    [3]int16
	P, I, D [3]float64
}

// state is one of *mwRewriteState, *luxFloatState or *mw23State.
type state interface {
	algorithm() Algorithm
	resetRate()
	resetAngle()
}

// Controller is the angle-rate controller. It is owned by one control loop
// and not safe for concurrent use.
type Controller struct {
	cfg    Config
	logger *log.Logger

	mode       Mode
	airMode    bool
	antiWindup bool

	user   [3]int32 // stick commands, ±500
	gyro   [3]int32 // calibrated gyro counts
	angles [3]int32 // attitude, decidegrees

	weight           [3]int32 // throttle PID attenuation, percent
	dynP, dynI, dynD [3]int32 // gains scaled by SetPIDAxisScale

	state state
	out   Output
}

// New creates a controller running cfg.Algorithm.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:    cfg,
		logger: log.New("pid"),
	}
	for axis := Roll; axis <= Yaw; axis++ {
		c.weight[axis] = 100
		c.SetPIDAxisScale(axis, 100)
	}
	c.state = c.newState(cfg.Algorithm)
	return c
}

// Config returns the tuning the controller runs with.
func (c *Controller) Config() Config { return c.cfg }

// SetLogger replaces the logger used for strategy changes.
func (c *Controller) SetLogger(l *log.Logger) { c.logger = l }

func (c *Controller) newState(a Algorithm) state {
	switch a {
	case MW23:
		return newMW23State(c.cfg)
	case LuxFloat:
		return newLuxFloatState(c.cfg)
	default:
		return newMWRewriteState(c.cfg)
	}
}

// Algorithm reports the running strategy.
func (c *Controller) Algorithm() Algorithm { return c.state.algorithm() }

// SetAlgorithm switches strategy. The new strategy starts from a clean state.
func (c *Controller) SetAlgorithm(a Algorithm) {
	if a >= algorithmCount {
		a = MWRewrite
	}
	prev := c.state.algorithm()
	c.state = c.newState(a)
	c.out = Output{}
	if prev != a {
		c.logger.WithFields(log.Fields{"from": prev, "to": a}).Info("pid algorithm changed")
	}
}

// --- Inputs ---

// InputUser sets the stick commands, clamped to ±500.
func (c *Controller) InputUser(roll, pitch, yaw int16) {
	c.user = [3]int32{
		mathx.Constrain(int32(roll), -500, 500),
		mathx.Constrain(int32(pitch), -500, 500),
		mathx.Constrain(int32(yaw), -500, 500),
	}
}

// InputBodyRates sets the measured rotation rates in gyro counts.
func (c *Controller) InputBodyRates(x, y, z int32) {
	c.gyro = [3]int32{x, y, z}
}

// InputBodyAngles sets the measured attitude in decidegrees.
func (c *Controller) InputBodyAngles(roll, pitch, yaw int16) {
	c.angles = [3]int32{int32(roll), int32(pitch), int32(yaw)}
}

func (c *Controller) SetMode(m Mode)        { c.mode = m }
func (c *Controller) Mode() Mode            { return c.mode }
func (c *Controller) SetAirMode(on bool)    { c.airMode = on }
func (c *Controller) AirMode() bool         { return c.airMode }
func (c *Controller) SetAntiWindup(on bool) { c.antiWindup = on }
func (c *Controller) AntiWindup() bool      { return c.antiWindup }

// SetPIDAxisWeight attenuates the P and D terms of an axis, in percent.
func (c *Controller) SetPIDAxisWeight(axis Axis, percent int32) {
	if axis > Yaw {
		return
	}
	c.weight[axis] = mathx.Constrain(percent, 0, 100)
}

// SetPIDAxisScale scales the gains used by the legacy strategy, in percent.
func (c *Controller) SetPIDAxisScale(axis Axis, percent int32) {
	if axis > Yaw {
		return
	}
	scale := func(gain uint8) int32 {
		return mathx.Constrain(int32(gain)*percent/100, 0, 255)
	}
	c.dynP[axis] = scale(c.cfg.P[axis])
	c.dynI[axis] = scale(c.cfg.I[axis])
	c.dynD[axis] = scale(c.cfg.D[axis])
}

// --- Update ---

// Update runs one controller step dt seconds after the previous one.
func (c *Controller) Update(dt float64, in CycleInput) {
	switch s := c.state.(type) {
	case *mwRewriteState:
		s.update(c, in)
	case *luxFloatState:
		s.update(c, dt, in)
	case *mw23State:
		s.update(c, in)
	}
}

// antiWindupHold applies the air mode integral hold: while saturated the
// integral may not grow past the last unsaturated magnitude.
func antiWindupHold[T mathx.Signed](c *Controller, iTerm T, limit *T, in CycleInput) T {
	if !c.airMode {
		return iTerm
	}
	if c.antiWindup || in.MotorLimitReached {
		return mathx.Constrain(iTerm, -*limit, *limit)
	}
	*limit = mathx.Abs(iTerm)
	return iTerm
}

// yawPLimited reports whether the yaw P term must be clamped.
func (c *Controller) yawPLimited(in CycleInput) bool {
	return c.cfg.YawPLimit != 0 && in.MotorCount >= 4
}

// levelling reports whether the attitude feeds the desired rate.
func (c *Controller) levelling() bool {
	return c.mode == ModeAngle || c.mode == ModeHorizon
}

// errorAngle is the difference between the stick commanded angle and the
// attitude, in decidegrees.
func (c *Controller) errorAngle(axis Axis) int32 {
	limit := int32(c.cfg.MaxAngleInclination)
	return mathx.Constrain(2*c.user[axis], -limit, limit) - c.angles[axis] + int32(c.cfg.AngleTrim[axis])
}

// mostDeflected is the larger roll or pitch stick deflection, 0..500.
func (c *Controller) mostDeflected() int32 {
	return min(max(mathx.Abs(c.user[Roll]), mathx.Abs(c.user[Pitch])), 500)
}

// --- Outputs ---

func (c *Controller) Output() Output { return c.out }
func (c *Controller) Roll() int16    { return c.out.Axis[Roll] }
func (c *Controller) Pitch() int16   { return c.out.Axis[Pitch] }
func (c *Controller) Yaw() int16     { return c.out.Axis[Yaw] }

// ResetRateIntegral zeroes the rate integrals.
func (c *Controller) ResetRateIntegral() { c.state.resetRate() }

// ResetAngleIntegral zeroes the self levelling integrals.
func (c *Controller) ResetAngleIntegral() { c.state.resetAngle() }

// saturate16 narrows a sum to int16 without wrapping.
func saturate16(v int32) int16 {
	return int16(mathx.Constrain(v, math.MinInt16, math.MaxInt16))
}

// deltaFilters builds the D term low pass filters, or nil when no cutoff is
// configured.
func deltaFilters(cfg Config) (f [3]*filter.Biquad) {
	if !filter.BiquadCutoffValid(float64(cfg.DtermCutHz), cfg.LoopTime) {
		return f
	}
	for axis := range f {
		f[axis] = filter.NewBiquad(float64(cfg.DtermCutHz), cfg.LoopTime)
	}
	return f
}

// Package mixer turns torque and throttle commands into motor and servo
// pulse widths through a table of additive rules.
package mixer

import (
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// auxForwardCount is how many AUX channels are relayed to spare servos.
const auxForwardCount = 4

// Mixer owns the rule table, the input vector and the last outputs. It is
// not safe for concurrent use.
type Mixer struct {
	cfg    Config
	logger *log.Logger

	mode  Mode
	rules RuleSet

	motorCount int
	servoCount int

	input [InputCount]int16

	midThrottle int32
	minThrottle int32
	maxThrottle int32

	motors     [MaxMotors]int16
	servos     [MaxServos]int16
	motorLimit bool
}

// New builds a mixer running cfg.Mode. Out of range settings are replaced
// rather than rejected; Config.Validate reports them up front.
func New(cfg Config) *Mixer {
	m := &Mixer{
		cfg:    cfg.sanitize(),
		logger: log.New("mixer"),
	}
	for in := Input(0); in < InputCount; in++ {
		if in.restsLow() {
			m.input[in] = InputMin
		}
	}
	m.SetThrottleRange(m.cfg.MidRC, m.cfg.MinThrottle, m.cfg.MaxThrottle)
	m.LoadPreset(m.cfg.Mode)
	for i := range m.motors {
		m.motors[i] = m.cfg.MinCommand
	}
	for i := range m.servos {
		m.servos[i] = m.cfg.Servos[i].Middle
	}
	return m
}

// SetLogger replaces the logger used for preset changes.
func (m *Mixer) SetLogger(l *log.Logger) { m.logger = l }

// LoadPreset replaces the rules with those of an airframe. Custom modes load
// Config.CustomRules. An unknown mode leaves an empty rule set.
func (m *Mixer) LoadPreset(mode Mode) {
	m.rules.Reset()
	m.mode = mode
	switch {
	case mode.Custom():
		m.addRules(m.cfg.CustomRules)
	case !presetRules(mode, &m.rules):
		m.logger.WithField("mode", int(mode)).Warn("unknown mixer preset, no outputs driven")
	}
	m.recount()
}

// LoadCustomRules replaces the rules. Rules past MaxRules are dropped.
func (m *Mixer) LoadCustomRules(rules []Rule) {
	m.rules.Reset()
	m.mode = ModeCustom
	m.addRules(rules)
	m.recount()
}

func (m *Mixer) addRules(rules []Rule) {
	for _, r := range rules {
		if !m.rules.Add(r) {
			m.logger.WithField("dropped", len(rules)-MaxRules).Warn("mixer rule table full")
			return
		}
	}
}

func (m *Mixer) recount() {
	m.motorCount, m.servoCount = m.rules.counts()
	m.logger.WithFields(log.Fields{
		"mode":   m.mode,
		"rules":  m.rules.Len(),
		"motors": m.motorCount,
		"servos": m.servoCount,
	}).Info("mixer rules loaded")
}

// SetThrottleRange sets the pulse width at zero throttle input and the
// bounds of every motor output. max is raised to at least min and mid is
// kept within the bounds.
func (m *Mixer) SetThrottleRange(mid, min, max int16) {
	if max < min {
		max = min
	}
	m.minThrottle = int32(min)
	m.maxThrottle = int32(max)
	m.midThrottle = mathx.Constrain(int32(mid), m.minThrottle, m.maxThrottle)
}

// Input stores a command clamped to ±500. Unknown channels are ignored.
func (m *Mixer) Input(ch Input, v int16) {
	if ch >= InputCount {
		return
	}
	m.input[ch] = mathx.Constrain(v, InputMin, InputMax)
}

// Update recomputes every output from the current inputs.
func (m *Mixer) Update(armed bool) {
	if !armed {
		m.updateDisarmed()
		return
	}

	var acc [OutputCount]int32
	for _, r := range m.rules.Rules() {
		if !r.valid() {
			continue
		}
		acc[r.Output] += int32(m.input[r.Input]) * int32(r.Scale) / ScaleUnity
	}

	m.mixMotors(acc[:MaxMotors])
	m.mixServos(acc[MaxMotors:])
}

// updateDisarmed drives each motor from its passthrough input so motors can
// be spun individually on the bench. Servos rest at their centre.
func (m *Mixer) updateDisarmed() {
	for i := range m.motors {
		v := m.midThrottle + int32(m.input[InputMotor1+Input(i)])
		m.motors[i] = int16(mathx.Constrain(v, int32(m.cfg.MinCommand), m.maxThrottle))
	}
	for i := range m.servos {
		m.servos[i] = m.cfg.Servos[i].Middle
	}
	m.motorLimit = false
}

// mixMotors keeps the differential thrust intact where possible. A spread
// wider than the throttle range is scaled down to fit; otherwise the whole
// set is shifted back into range.
func (m *Mixer) mixMotors(acc []int32) {
	m.motorLimit = false
	if m.motorCount == 0 {
		m.idleMotors(0)
		return
	}

	lo, hi := acc[0], acc[0]
	for _, v := range acc[1:m.motorCount] {
		lo, hi = min(lo, v), max(hi, v)
	}

	span := m.maxThrottle - m.minThrottle
	if spread := hi - lo; spread > span {
		m.motorLimit = true
		for i := range acc[:m.motorCount] {
			acc[i] = acc[i] * span / spread
		}
		lo, hi = lo*span/spread, hi*span/spread
	}

	var offset int32
	switch {
	case m.midThrottle+hi > m.maxThrottle:
		offset = m.maxThrottle - (m.midThrottle + hi)
	case m.midThrottle+lo < m.minThrottle:
		offset = m.minThrottle - (m.midThrottle + lo)
	}

	for i := range m.motorCount {
		v := m.midThrottle + acc[i] + offset
		m.motors[i] = int16(mathx.Constrain(v, m.minThrottle, m.maxThrottle))
	}
	m.idleMotors(m.motorCount)
}

// idleMotors holds the motors the rules do not drive at mincommand.
func (m *Mixer) idleMotors(from int) {
	for i := from; i < MaxMotors; i++ {
		m.motors[i] = m.cfg.MinCommand
	}
}

func (m *Mixer) mixServos(acc []int32) {
	for i := range m.servoCount {
		s := m.cfg.Servos[i]
		mid := int32(s.Middle)
		v := acc[i] * int32(s.Rate) / 100
		v = mathx.Constrain(v, int32(s.Min)-mid, int32(s.Max)-mid)
		m.servos[i] = int16(mid + v)
	}

	// Spare servos relay the AUX channels in order.
	for i := m.servoCount; i < MaxServos; i++ {
		s := m.cfg.Servos[i]
		aux := i - m.servoCount
		if aux >= auxForwardCount {
			m.servos[i] = s.Middle
			continue
		}
		v := int32(s.Middle) + int32(m.input[InputRCAux1+Input(aux)])
		m.servos[i] = int16(mathx.Constrain(v, int32(s.Min), int32(s.Max)))
	}
}

// --- Accessors ---

// MotorValue returns the pulse width of motor i, or 0 for an unknown slot.
func (m *Mixer) MotorValue(i int) int16 {
	if i < 0 || i >= MaxMotors {
		return 0
	}
	return m.motors[i]
}

// ServoValue returns the pulse width of servo i, or 0 for an unknown slot.
func (m *Mixer) ServoValue(i int) int16 {
	if i < 0 || i >= MaxServos {
		return 0
	}
	return m.servos[i]
}

// MotorLimitReached reports whether the last update had to scale the
// differential thrust down.
func (m *Mixer) MotorLimitReached() bool { return m.motorLimit }

func (m *Mixer) MotorCount() int          { return m.motorCount }
func (m *Mixer) ServoCount() int          { return m.servoCount }
func (m *Mixer) Mode() Mode               { return m.mode }
func (m *Mixer) Rules() []Rule            { return m.rules.Rules() }
func (m *Mixer) Motors() [MaxMotors]int16 { return m.motors }
func (m *Mixer) Servos() [MaxServos]int16 { return m.servos }

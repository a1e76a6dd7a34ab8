package sim

import (
	"time"

	"github.com/BryanSouza91/WingFC/internal/mixer"
	"github.com/BryanSouza91/WingFC/internal/rc"
)

// Rig ties the body, its sensor bus and the transmitter to one clock. It
// receives the mixer outputs like the output stage of a board would, and
// every write advances the world by one period.
type Rig struct {
	Body  *Body
	Bus   *Bus
	Radio *Transmitter

	Red, Green *LED

	plant  *Plant
	period time.Duration
	steps  uint64
}

// NewRig builds a level body at rest and a transmitter playing script.
func NewRig(cfg BodyConfig, rcCfg rc.Config, script []Event, period time.Duration) *Rig {
	body := NewBody(cfg)
	return &Rig{
		Body:   body,
		Bus:    NewBus(body),
		Radio:  NewTransmitter(rcCfg.Protocol, rcCfg.MidRC, script),
		Red:    &LED{},
		Green:  &LED{},
		period: period,
	}
}

// SetRules tells the rig how the mixer maps axes to outputs. Until it is
// called the outputs apply no torque.
func (r *Rig) SetRules(rules []mixer.Rule, servoMiddle int16) {
	r.plant = NewPlant(rules, servoMiddle)
}

// Write applies the outputs for one period.
func (r *Rig) Write(motors, servos []int16) {
	var t [3]float64
	if r.plant != nil {
		t = r.plant.Torques(motors, servos)
	}
	r.Body.SetTorque(t)
	r.Body.Step(r.period.Seconds())
	r.Radio.Advance(r.period)
	r.steps++
}

func (r *Rig) Steps() uint64 { return r.steps }

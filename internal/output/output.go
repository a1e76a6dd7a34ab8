// Package output turns mixer pulse widths into PWM duty cycles.
package output

import (
	"github.com/pkg/errors"

	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// PWM is a hardware timer with several channels sharing one period. The
// machine.PWM peripherals of TinyGo satisfy it.
type PWM interface {
	SetPeriod(period uint64) error
	Top() uint32
	Set(channel uint8, value uint32)
}

// Channel is one output pin on a PWM timer.
type Channel struct {
	PWM     PWM
	Channel uint8
}

// Config sets the refresh rate of each output kind.
type Config struct {
	ServoRateHz uint32 `yaml:"servo_rate_hz"`
	MotorRateHz uint32 `yaml:"motor_rate_hz"`
}

// DefaultConfig drives servos at 200Hz and ESCs at 500Hz.
func DefaultConfig() Config {
	return Config{
		ServoRateHz: 200,
		MotorRateHz: 500,
	}
}

// Validate checks that the longest pulse fits in each period.
func (c Config) Validate() error {
	switch {
	case c.ServoRateHz < 50 || c.ServoRateHz > 400:
		return errors.Errorf("servo_rate_hz %d out of range 50..400", c.ServoRateHz)
	case c.MotorRateHz < 50 || c.MotorRateHz > 500:
		return errors.Errorf("motor_rate_hz %d out of range 50..500", c.MotorRateHz)
	}
	return nil
}

// periodNs returns the PWM period for a refresh rate.
func periodNs(hz uint32) uint64 {
	return 1e9 / uint64(hz)
}

// Duty converts a pulse width in µs to a compare value for a timer counting
// to top once every periodNs.
func Duty(pulse uint16, top uint32, periodNs uint64) uint32 {
	if periodNs == 0 {
		return 0
	}
	d := uint64(pulse) * 1000 * uint64(top) / periodNs
	return uint32(min(d, uint64(top)))
}

// Writer owns the motor and servo outputs.
type Writer struct {
	logger *log.Logger

	motors []Channel
	servos []Channel

	motorPeriod uint64
	servoPeriod uint64

	motorPulses []uint16
	servoPulses []uint16
}

// NewWriter programs the period of every timer used by motors and servos.
// A timer shared by a motor and a servo is an error since the two run at
// different rates.
func NewWriter(cfg Config, motors, servos []Channel) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		logger:      log.New("output"),
		motors:      motors,
		servos:      servos,
		motorPeriod: periodNs(cfg.MotorRateHz),
		servoPeriod: periodNs(cfg.ServoRateHz),
		motorPulses: make([]uint16, len(motors)),
		servoPulses: make([]uint16, len(servos)),
	}

	periods := make(map[PWM]uint64)
	assign := func(chs []Channel, period uint64, kind string) error {
		for i, ch := range chs {
			if ch.PWM == nil {
				return errors.Errorf("%s %d has no timer", kind, i+1)
			}
			if p, ok := periods[ch.PWM]; ok {
				if p != period {
					return errors.Errorf("%s %d shares a timer running at a different rate", kind, i+1)
				}
				continue
			}
			if err := ch.PWM.SetPeriod(period); err != nil {
				return errors.Wrapf(err, "set %s %d period", kind, i+1)
			}
			periods[ch.PWM] = period
		}
		return nil
	}
	if err := assign(motors, w.motorPeriod, "motor"); err != nil {
		return nil, err
	}
	if err := assign(servos, w.servoPeriod, "servo"); err != nil {
		return nil, err
	}
	w.logger.WithFields(log.Fields{"motors": len(motors), "servos": len(servos)}).Info("outputs configured")
	return w, nil
}

// SetLogger replaces the logger.
func (w *Writer) SetLogger(l *log.Logger) { w.logger = l }

// Write sets every configured output. Extra values are ignored and missing
// ones leave their outputs unchanged.
func (w *Writer) Write(motors, servos []int16) {
	for i := 0; i < len(w.motors) && i < len(motors); i++ {
		w.motorPulses[i] = pulse(motors[i])
		set(w.motors[i], w.motorPulses[i], w.motorPeriod)
	}
	for i := 0; i < len(w.servos) && i < len(servos); i++ {
		w.servoPulses[i] = pulse(servos[i])
		set(w.servos[i], w.servoPulses[i], w.servoPeriod)
	}
}

// Stop drives motors to stopCommand and centres the servos.
func (w *Writer) Stop(stopCommand, servoMiddle int16) {
	motors := make([]int16, len(w.motors))
	servos := make([]int16, len(w.servos))
	for i := range motors {
		motors[i] = stopCommand
	}
	for i := range servos {
		servos[i] = servoMiddle
	}
	w.Write(motors, servos)
}

// MotorPulses returns the last pulse written to each motor.
func (w *Writer) MotorPulses() []uint16 { return append([]uint16(nil), w.motorPulses...) }

// ServoPulses returns the last pulse written to each servo.
func (w *Writer) ServoPulses() []uint16 { return append([]uint16(nil), w.servoPulses...) }

func pulse(v int16) uint16 {
	return uint16(mathx.Constrain(v, 0, 2500))
}

func set(ch Channel, pulse uint16, period uint64) {
	ch.PWM.Set(ch.Channel, Duty(pulse, ch.PWM.Top(), period))
}

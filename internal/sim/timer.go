package sim

import "github.com/pkg/errors"

// Timer is a PWM peripheral with a 16 bit counter. It satisfies output.PWM.
type Timer struct {
	period uint64 // ns
	duty   map[uint8]uint32
}

const timerTop = 0xFFFF

func NewTimer() *Timer {
	return &Timer{duty: make(map[uint8]uint32)}
}

func (t *Timer) SetPeriod(period uint64) error {
	if period == 0 {
		return errors.New("zero pwm period")
	}
	t.period = period
	return nil
}

func (t *Timer) Top() uint32                     { return timerTop }
func (t *Timer) Set(channel uint8, value uint32) { t.duty[channel] = value }
func (t *Timer) Period() uint64                  { return t.period }

// Pulse returns the high time of channel in µs, as a scope would measure it.
func (t *Timer) Pulse(channel uint8) uint16 {
	if t.period == 0 {
		return 0
	}
	ns := uint64(t.duty[channel]) * t.period / timerTop
	return uint16((ns + 500) / 1000)
}

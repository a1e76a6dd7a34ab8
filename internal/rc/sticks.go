package rc

import "github.com/BryanSouza91/WingFC/internal/mathx"

// AuxCount is the number of AUX channels following the four sticks.
const AuxCount = 4

// AirModeDeadband is the distance from MidRC within which roll and pitch
// count as centred for the air mode integral hold, in µs.
const AirModeDeadband = 12

// Sticks are the pilot commands derived from one receiver frame.
type Sticks struct {
	Roll, Pitch, Yaw int16 // ±500
	Throttle         int16 // 0..1000
	Aux              [AuxCount]int16

	Arm       bool
	Calibrate bool
}

// Command maps a stick pulse to ±500 around MidRC with the deadband removed.
func (c Config) Command(raw uint16, deadband uint16) int16 {
	raw = mathx.Constrain(raw, c.MinRX, c.MaxRX)
	v := min(mathx.Abs(int32(raw)-int32(c.MidRC)), 500)
	if v > int32(deadband) {
		v -= int32(deadband)
	} else {
		v = 0
	}
	if raw < c.MidRC {
		v = -v
	}
	return int16(v)
}

// ThrottleCommand maps the throttle pulse to 0..1000 starting at MinCheck.
func (c Config) ThrottleCommand(raw uint16) int16 {
	v := mathx.Constrain(int32(raw), int32(c.MinCheck), 2000)
	return int16((v - int32(c.MinCheck)) * 1000 / (2000 - int32(c.MinCheck)))
}

// Switch reads a two position switch.
func (c Config) Switch(raw uint16) bool {
	return raw > c.HighRXValue
}

// Sticks decodes a receiver frame.
func (c Config) Sticks(ch [NumChannels]uint16) Sticks {
	s := Sticks{
		Roll:      c.Command(ch[c.Map[Roll]], c.Deadband),
		Pitch:     c.Command(ch[c.Map[Pitch]], c.Deadband),
		Yaw:       c.Command(ch[c.Map[Yaw]], c.YawDeadband),
		Throttle:  c.ThrottleCommand(ch[c.Map[Throttle]]),
		Arm:       c.Switch(ch[c.ArmChannel]),
		Calibrate: c.Switch(ch[c.CalibrateChannel]),
	}
	for i := range s.Aux {
		raw := mathx.Constrain(int32(ch[4+i]), int32(c.MinRX), int32(c.MaxRX))
		s.Aux[i] = int16(mathx.Constrain(raw-int32(c.MidRC), -500, 500))
	}
	return s
}

// LowThrottle reports whether the throttle pulse is below MinCheck.
func (c Config) LowThrottle(ch [NumChannels]uint16) bool {
	return ch[c.Map[Throttle]] < c.MinCheck
}

// RollPitchCentred reports whether roll and pitch are both within
// AirModeDeadband of MidRC.
func (c Config) RollPitchCentred(ch [NumChannels]uint16) bool {
	for _, stick := range []int{Roll, Pitch} {
		if mathx.Abs(int32(ch[c.Map[stick]])-int32(c.MidRC)) >= AirModeDeadband {
			return false
		}
	}
	return true
}

package sim

import (
	"github.com/BryanSouza91/WingFC/internal/mixer"
)

// Plant recovers the axis commands from the mixer outputs using the rule
// table that produced them. Rules of different axes are assumed orthogonal,
// which holds for every preset.
type Plant struct {
	rules       []mixer.Rule
	servoMiddle int16
}

// NewPlant copies rules; servos are measured from servoMiddle.
func NewPlant(rules []mixer.Rule, servoMiddle int16) *Plant {
	return &Plant{
		rules:       append([]mixer.Rule(nil), rules...),
		servoMiddle: servoMiddle,
	}
}

// Torques projects the outputs back onto roll, pitch and yaw. Motors are
// measured from the mean of the motors the rules drive, so collective
// throttle produces no torque.
func (p *Plant) Torques(motors, servos []int16) [3]float64 {
	var (
		used  [mixer.MaxMotors]bool
		count int
		sum   float64
	)
	for _, r := range p.rules {
		if r.Output.IsMotor() && int(r.Output) < len(motors) && !used[r.Output] {
			used[r.Output] = true
			count++
			sum += float64(motors[r.Output])
		}
	}
	mean := 0.0
	if count > 0 {
		mean = sum / float64(count)
	}

	var num, den [3]float64
	for _, r := range p.rules {
		axis, ok := axisOf(r.Input)
		if !ok {
			continue
		}
		var dev float64
		switch {
		case r.Output.IsMotor() && int(r.Output) < len(motors):
			dev = float64(motors[r.Output]) - mean
		case r.Output.IsServo() && int(r.Output)-mixer.MaxMotors < len(servos):
			dev = float64(servos[int(r.Output)-mixer.MaxMotors] - p.servoMiddle)
		default:
			continue
		}
		s := float64(r.Scale) / mixer.ScaleUnity
		num[axis] += s * dev
		den[axis] += s * s
	}

	var t [3]float64
	for i := range t {
		if den[i] > 0 {
			t[i] = num[i] / den[i]
		}
	}
	// the loop feeds the mixer a negated yaw command
	t[2] = -t[2]
	return t
}

func axisOf(in mixer.Input) (int, bool) {
	switch in {
	case mixer.InputRoll:
		return 0, true
	case mixer.InputPitch:
		return 1, true
	case mixer.InputYaw:
		return 2, true
	}
	return 0, false
}

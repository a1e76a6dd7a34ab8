package pid

import (
	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

const (
	mw23IMax       = 16000
	mw23AngleIMax  = 10000
	mw23SpinReset  = 640 * 4 // gyro counts above which the roll/pitch integral is dropped
	mw23YawIMax    = 1<<28 - 2
	mw23YawIResetR = 50
)

// mw23State is the legacy strategy. Roll and pitch blend a rate loop with an
// angle loop by stick deflection; yaw is a PI loop on a Q13 accumulator.
type mw23State struct {
	lastI       [3]int32
	iLimit      [3]int32
	angleI      [2]int32
	lastError   [2]int32
	delta1      [2]int32
	delta2      [2]int32
	deltaFilter [3]*filter.Biquad
}

func newMW23State(cfg Config) *mw23State {
	return &mw23State{deltaFilter: deltaFilters(cfg)}
}

func (s *mw23State) algorithm() Algorithm { return MW23 }

func (s *mw23State) resetRate() {
	s.lastI = [3]int32{}
}

func (s *mw23State) resetAngle() {
	s.angleI = [2]int32{}
}

func (s *mw23State) update(c *Controller, in CycleInput) {
	var prop int32
	if c.mode == ModeHorizon {
		prop = min(max(mathx.Abs(c.user[Pitch]), mathx.Abs(c.user[Roll])), 512)
	}

	for axis := Roll; axis <= Pitch; axis++ {
		rc := c.user[axis] << 1
		gyroError := c.gyro[axis] / 4

		err := rc - gyroError
		s.lastI[axis] = mathx.Constrain(s.lastI[axis]+err, -mw23IMax, mw23IMax)
		if mathx.Abs(c.gyro[axis]) > mw23SpinReset {
			s.lastI[axis] = 0
		}
		s.lastI[axis] = antiWindupHold(c, s.lastI[axis], &s.iLimit[axis], in)

		iTerm := (s.lastI[axis] >> 7) * c.dynI[axis] >> 6
		pTerm := rc * int32(c.cfg.P[axis]) >> 6

		if c.levelling() {
			errorAngle := c.errorAngle(axis)
			s.angleI[axis] = mathx.Constrain(s.angleI[axis]+errorAngle, -mw23AngleIMax, mw23AngleIMax)

			pTermAcc := errorAngle * int32(c.cfg.P[Level]) >> 7
			limit := int32(c.cfg.D[Level]) * 5
			pTermAcc = mathx.Constrain(pTermAcc, -limit, limit)

			iTermAcc := s.angleI[axis] * int32(c.cfg.I[Level]) >> 12

			iTerm = iTermAcc + ((iTerm - iTermAcc) * prop >> 9)
			pTerm = pTermAcc + ((pTerm - pTermAcc) * prop >> 9)
		}

		pTerm -= gyroError * c.dynP[axis] >> 6

		delta := -(gyroError - s.lastError[axis])
		s.lastError[axis] = gyroError
		var dTerm int32
		if f := s.deltaFilter[axis]; f != nil {
			// times 3 keeps the scale of the unfiltered three sample sum
			dTerm = mathx.Lrint(f.Apply(float64(delta))) * 3
		} else {
			dTerm = s.delta1[axis] + s.delta2[axis] + delta
			s.delta2[axis] = s.delta1[axis]
			s.delta1[axis] = delta
		}
		dTerm = dTerm * c.dynD[axis] >> 5

		c.out.P[axis] = float64(pTerm)
		c.out.I[axis] = float64(iTerm)
		c.out.D[axis] = float64(dTerm)
		c.out.Axis[axis] = saturate16(pTerm + iTerm + dTerm)
	}

	rc := c.user[Yaw] * (2*int32(c.cfg.Rates[Yaw]) + 30) >> 5
	err := rc - c.gyro[Yaw]/4
	s.lastI[Yaw] += err * int32(c.cfg.I[Yaw])
	s.lastI[Yaw] = mathx.Constrain(s.lastI[Yaw], -mw23YawIMax, mw23YawIMax)
	if mathx.Abs(rc) > mw23YawIResetR {
		s.lastI[Yaw] = 0
	}

	pTerm := err * int32(c.cfg.P[Yaw]) >> 6
	if in.MotorCount >= 4 && c.cfg.YawPLimit != 0 && c.cfg.YawPLimit < YawPLimitMax {
		limit := int32(c.cfg.YawPLimit)
		pTerm = mathx.Constrain(pTerm, -limit, limit)
	}
	iTerm := mathx.Constrain(int32(int16(s.lastI[Yaw]>>13)), -GyroIMax, GyroIMax)

	c.out.P[Yaw] = float64(pTerm)
	c.out.I[Yaw] = float64(iTerm)
	c.out.D[Yaw] = 0
	c.out.Axis[Yaw] = saturate16(pTerm + iTerm)
}

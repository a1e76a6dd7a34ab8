package pid

import (
	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// mwRewriteState is the fixed-point strategy. The integral is kept in Q19.13
// and normalised to a 2048µs cycle so that the gain does not depend on the
// loop time.
type mwRewriteState struct {
	looptime    int32 // µs, MinLoopTime..MaxLoopTime
	lastI       [3]int32
	iLimit      [3]int32
	lastRate    [3]int32
	deltaFilter [3]*filter.Biquad
	deltaAvg    [3]*filter.Average[int32]
}

func newMWRewriteState(cfg Config) *mwRewriteState {
	s := &mwRewriteState{
		looptime:    int32(mathx.Constrain(cfg.LoopTime, MinLoopTime, MaxLoopTime)),
		deltaFilter: deltaFilters(cfg),
	}
	for axis := range s.deltaAvg {
		s.deltaAvg[axis] = filter.NewAverage[int32](DtermAverageCount)
	}
	return s
}

func (s *mwRewriteState) algorithm() Algorithm { return MWRewrite }

func (s *mwRewriteState) resetRate() {
	s.lastI = [3]int32{}
}

func (s *mwRewriteState) resetAngle() {}

func (s *mwRewriteState) update(c *Controller, in CycleInput) {
	var horizonStrength int32
	if c.mode == ModeHorizon {
		// 100 at centre stick, 0 at full deflection
		horizonStrength = (500 - c.mostDeflected()) / 5
		// D of the level gains is the horizon sensitivity
		horizonStrength = mathx.Constrain(10*(horizonStrength-100)*(10*int32(c.cfg.D[Level])/80)/100+100, 0, 100)
	}

	for axis := Roll; axis <= Yaw; axis++ {
		rate := int32(c.cfg.Rates[axis])

		var angleRate int32
		if axis == Yaw {
			angleRate = ((rate + 27) * c.user[Yaw]) >> 5
		} else {
			angleRate = ((rate + 27) * c.user[axis]) >> 4
			if c.levelling() {
				errorAngle := c.errorAngle(axis)
				if c.mode == ModeAngle {
					angleRate = (errorAngle * int32(c.cfg.P[Level])) >> 4
				} else {
					angleRate += (errorAngle * int32(c.cfg.I[Level]) * horizonStrength / 100) >> 4
				}
			}
		}

		gyroRate := c.gyro[axis] / 4
		s.calcAxis(c, axis, gyroRate, angleRate, in)
	}
}

func (s *mwRewriteState) calcAxis(c *Controller, axis Axis, gyroRate, angleRate int32, in CycleInput) {
	rateError := angleRate - gyroRate
	weight := c.weight[axis]

	pTerm := (rateError * int32(c.cfg.P[axis]) * weight / 100) >> 7
	if axis == Yaw && c.yawPLimited(in) {
		limit := int32(c.cfg.YawPLimit)
		pTerm = mathx.Constrain(pTerm, -limit, limit)
	}

	// The gain is applied after the time normalisation so that the clamp
	// does not depend on it.
	iTerm := s.lastI[axis] + ((rateError*s.looptime)>>11)*int32(c.cfg.I[axis])
	iTerm = mathx.Constrain(iTerm, -MaxI<<13, MaxI<<13)
	iTerm = antiWindupHold(c, iTerm, &s.iLimit[axis], in)
	s.lastI[axis] = iTerm
	iTerm >>= 13

	var dTerm int32
	if c.cfg.D[axis] != 0 {
		delta := -(gyroRate - s.lastRate[axis])
		s.lastRate[axis] = gyroRate
		// scale by 1/looptime
		delta = (delta * (0xFFFF / (s.looptime >> 4))) >> 5
		if f := s.deltaFilter[axis]; f != nil {
			delta = mathx.Lrint(f.Apply(float64(delta)))
		} else {
			delta = s.deltaAvg[axis].Apply(delta)
		}
		dTerm = (delta * int32(c.cfg.D[axis]) * weight / 100) >> 8
		dTerm = mathx.Constrain(dTerm, -MaxD, MaxD)
	}

	c.out.P[axis] = float64(pTerm)
	c.out.I[axis] = float64(iTerm)
	c.out.D[axis] = float64(dTerm)
	c.out.Axis[axis] = saturate16(pTerm + iTerm + dTerm)
}

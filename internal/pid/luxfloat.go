package pid

import (
	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Scale factors that make the floating point strategy produce the same
// output as the fixed-point one for the same gains.
const (
	luxPTermScale = 1.0 / 128
	luxITermScale = 1000000.0 / 0x1000000
	luxDTermScale = (0.000001 * 0xFFFF) / 512
	luxGyroScale  = 16.4 / 4
)

type luxFloatState struct {
	lastI       [3]float64
	iLimit      [3]float64
	lastRate    [3]float64
	deltaFilter [3]*filter.Biquad
	deltaAvg    [3]*filter.Average[float64]
}

func newLuxFloatState(cfg Config) *luxFloatState {
	s := &luxFloatState{deltaFilter: deltaFilters(cfg)}
	for axis := range s.deltaAvg {
		s.deltaAvg[axis] = filter.NewAverage[float64](DtermAverageCount)
	}
	return s
}

func (s *luxFloatState) algorithm() Algorithm { return LuxFloat }

func (s *luxFloatState) resetRate() {
	s.lastI = [3]float64{}
}

func (s *luxFloatState) resetAngle() {}

func (s *luxFloatState) update(c *Controller, dt float64, in CycleInput) {
	var horizonStrength float64
	if c.mode == ModeHorizon && c.cfg.D[Level] != 0 {
		// 1 at centre stick, 0 at full deflection
		horizonStrength = float64(500-c.mostDeflected()) / 500
		sensitivity := float64(100 / int32(c.cfg.D[Level]))
		horizonStrength = mathx.Constrain((horizonStrength-1)*sensitivity+1, 0, 1)
	}

	for axis := Roll; axis <= Yaw; axis++ {
		rate := float64(c.cfg.Rates[axis])

		var angleRate float64
		if axis == Yaw {
			angleRate = (rate + 27) * float64(c.user[Yaw]) / 32
		} else {
			angleRate = (rate + 27) * float64(c.user[axis]) / 16
			if c.levelling() {
				errorAngle := float64(c.errorAngle(axis))
				if c.mode == ModeAngle {
					angleRate = errorAngle * float64(c.cfg.P[Level]) / 16
				} else {
					angleRate += errorAngle * float64(c.cfg.I[Level]) * horizonStrength / 16
				}
			}
		}

		gyroRate := luxGyroScale * float64(c.gyro[axis]) * c.cfg.GyroScale
		s.calcAxis(c, axis, gyroRate, angleRate, dt, in)
	}
}

func (s *luxFloatState) calcAxis(c *Controller, axis Axis, gyroRate, angleRate, dt float64, in CycleInput) {
	rateError := angleRate - gyroRate
	weight := float64(c.weight[axis])

	pTerm := luxPTermScale * rateError * float64(c.cfg.P[axis]) * weight / 100
	if axis == Yaw && c.yawPLimited(in) {
		limit := float64(c.cfg.YawPLimit)
		pTerm = mathx.Constrain(pTerm, -limit, limit)
	}

	iTerm := s.lastI[axis] + luxITermScale*rateError*dt*float64(c.cfg.I[axis])
	iTerm = mathx.Constrain(iTerm, -MaxI, MaxI)
	iTerm = antiWindupHold(c, iTerm, &s.iLimit[axis], in)
	s.lastI[axis] = iTerm

	var dTerm float64
	if c.cfg.D[axis] != 0 && dt > 0 {
		delta := -(gyroRate - s.lastRate[axis])
		s.lastRate[axis] = gyroRate
		delta /= dt
		if f := s.deltaFilter[axis]; f != nil {
			delta = f.Apply(delta)
		} else {
			delta = s.deltaAvg[axis].Apply(delta)
		}
		dTerm = luxDTermScale * delta * float64(c.cfg.D[axis]) * weight / 100
		dTerm = mathx.Constrain(dTerm, -MaxD, MaxD)
	}

	c.out.P[axis] = pTerm
	c.out.I[axis] = iTerm
	c.out.D[axis] = dTerm
	c.out.Axis[axis] = saturate16(mathx.Lrint(pTerm + iTerm + dTerm))
}

package imu

import (
	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/mathx"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

// Trims are the calibration results, persisted outside the estimator.
type Trims struct {
	GyroZero sensors.Vector `yaml:"gyro_zero"`
	AccZero  sensors.Vector `yaml:"acc_zero"`
	MagZero  sensors.Vector `yaml:"mag_zero"`
	MagScale [3]float64     `yaml:"mag_scale"`
}

// gyroCalibration averages a window of still samples. Any axis whose
// standard deviation exceeds the move threshold restarts the window.
type gyroCalibration struct {
	cycles    int
	remaining int
	threshold float64
	sum       [3]int64
	dev       [3]filter.StdDev
}

func (c *gyroCalibration) start() {
	c.remaining = c.cycles
	c.sum = [3]int64{}
	for axis := range c.dev {
		c.dev[axis].Clear()
	}
}

func (c *gyroCalibration) active() bool { return c.remaining > 0 }

// push adds one sample. It reports done with the zero offset once the window
// completes, or restarted if the unit moved.
func (c *gyroCalibration) push(raw sensors.Vector) (zero sensors.Vector, done, restarted bool) {
	for axis := range raw {
		c.sum[axis] += int64(raw[axis])
		c.dev[axis].Push(float64(raw[axis]))
	}
	c.remaining--
	if c.remaining > 0 {
		return zero, false, false
	}
	for axis := range raw {
		if c.threshold > 0 && c.dev[axis].StandardDeviation() > c.threshold {
			c.start()
			return zero, false, true
		}
	}
	for axis := range zero {
		zero[axis] = mathx.Lrint(float64(c.sum[axis]) / float64(c.cycles))
	}
	return zero, true, false
}

// deviation reports the largest per-axis standard deviation seen so far.
func (c *gyroCalibration) deviation() float64 {
	var worst float64
	for axis := range c.dev {
		worst = max(worst, c.dev[axis].StandardDeviation())
	}
	return worst
}

// accelCalibration averages a window of level samples. The result is the
// offset from the ideal (0, 0, 1 g) reading.
type accelCalibration struct {
	cycles    int
	remaining int
	sum       [3]int64
}

func (c *accelCalibration) start() {
	c.remaining = c.cycles
	c.sum = [3]int64{}
}

func (c *accelCalibration) active() bool { return c.remaining > 0 }

func (c *accelCalibration) push(raw sensors.Vector, acc1G int32) (zero sensors.Vector, done bool) {
	for axis := range raw {
		c.sum[axis] += int64(raw[axis])
	}
	c.remaining--
	if c.remaining > 0 {
		return zero, false
	}
	for axis := range zero {
		zero[axis] = mathx.Lrint(float64(c.sum[axis]) / float64(c.cycles))
	}
	zero[sensors.Z] -= acc1G
	return zero, true
}

// magCalibration tracks the extremes of each axis while the craft is turned
// through every orientation.
type magCalibration struct {
	cycles    int
	remaining int
	min, max  sensors.Vector
}

func (c *magCalibration) start() {
	c.remaining = c.cycles
}

func (c *magCalibration) active() bool { return c.remaining > 0 }

func (c *magCalibration) push(raw sensors.Vector) (zero sensors.Vector, scale [3]float64, done bool) {
	if c.remaining == c.cycles {
		c.min, c.max = raw, raw
	}
	for axis := range raw {
		c.min[axis] = min(c.min[axis], raw[axis])
		c.max[axis] = max(c.max[axis], raw[axis])
	}
	c.remaining--
	if c.remaining > 0 {
		return zero, scale, false
	}

	var half [3]float64
	var avg float64
	for axis := range raw {
		zero[axis] = (c.min[axis] + c.max[axis]) / 2
		half[axis] = float64(c.max[axis]-c.min[axis]) / 2
		avg += half[axis] / 3
	}
	for axis := range scale {
		if half[axis] == 0 || avg == 0 {
			scale[axis] = 1
			continue
		}
		scale[axis] = half[axis] / avg
	}
	return zero, scale, true
}

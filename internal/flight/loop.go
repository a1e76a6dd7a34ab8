package flight

import (
	"math"
	"time"

	"github.com/BryanSouza91/WingFC/internal/imu"
	"github.com/BryanSouza91/WingFC/internal/mathx"
	"github.com/BryanSouza91/WingFC/internal/mixer"
	"github.com/BryanSouza91/WingFC/internal/pid"
	"github.com/BryanSouza91/WingFC/internal/rc"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

// Sample is everything read from the hardware for one cycle.
type Sample struct {
	Gyro, Accel sensors.Vector
	Mag         sensors.Vector
	MagFresh    bool

	Channels [rc.NumChannels]uint16
	// RCAge is the time since the last receiver frame.
	RCAge time.Duration
}

// Loop is one control cycle: estimator, then controller, then mixer. It owns
// its three stages and is not safe for concurrent use.
type Loop struct {
	est  *imu.Estimator
	ctrl *pid.Controller
	mix  *mixer.Mixer

	rc          rc.Config
	minThrottle int16
	maxThrottle int16

	sticks rc.Sticks
}

// NewLoop wires the stages together. The throttle limits are the armed idle
// and full throttle pulse widths.
func NewLoop(est *imu.Estimator, ctrl *pid.Controller, mix *mixer.Mixer, rcCfg rc.Config, minThrottle, maxThrottle int16) *Loop {
	return &Loop{
		est:         est,
		ctrl:        ctrl,
		mix:         mix,
		rc:          rcCfg,
		minThrottle: minThrottle,
		maxThrottle: maxThrottle,
	}
}

func (l *Loop) Estimator() *imu.Estimator   { return l.est }
func (l *Loop) Controller() *pid.Controller { return l.ctrl }
func (l *Loop) Mixer() *mixer.Mixer         { return l.mix }
func (l *Loop) Sticks() rc.Sticks           { return l.sticks }

// Cycle runs the stages dt seconds after the previous cycle. The controller
// sees the motor limit flag the mixer raised on the previous cycle.
func (l *Loop) Cycle(dt float64, s Sample, armed bool) {
	l.est.FeedGyro(s.Gyro)
	l.est.FeedAccel(s.Accel)
	if s.MagFresh {
		l.est.FeedMag(s.Mag)
	}
	l.est.Update(dt, armed)

	sticks := l.rc.Sticks(s.Channels)
	l.sticks = sticks

	low := l.rc.LowThrottle(s.Channels)
	tuning := l.ctrl.Config()
	tpa := tuning.TPA(s.Channels[l.rc.Map[rc.Throttle]])
	weight := tpa
	if low {
		// soften roll and pitch while the throttle is closed
		weight = 50
	}
	l.ctrl.SetPIDAxisWeight(pid.Roll, weight)
	l.ctrl.SetPIDAxisWeight(pid.Pitch, weight)
	for axis, v := range [3]int16{sticks.Roll, sticks.Pitch, sticks.Yaw} {
		l.ctrl.SetPIDAxisScale(pid.Axis(axis), tuning.AxisScale(pid.Axis(axis), mathx.Abs(int32(v)), tpa))
	}

	// The integral must not build up while the motors idle on the ground.
	// In air mode it is held instead while the sticks are centred.
	switch {
	case low && l.ctrl.AirMode() && armed:
		l.ctrl.SetAntiWindup(l.rc.RollPitchCentred(s.Channels))
	case low:
		l.ResetIntegrals()
	default:
		l.ctrl.SetAntiWindup(l.mix.MotorLimitReached())
	}

	att := l.est.Attitude()
	gyro := l.est.GyroRates()
	l.ctrl.InputUser(sticks.Roll, sticks.Pitch, sticks.Yaw)
	l.ctrl.InputBodyRates(gyro[sensors.X], gyro[sensors.Y], gyro[sensors.Z])
	l.ctrl.InputBodyAngles(att.Roll, att.Pitch, att.Yaw)
	l.ctrl.Update(dt, pid.CycleInput{
		MotorLimitReached: l.mix.MotorLimitReached(),
		MotorCount:        l.mix.MotorCount(),
	})

	l.mix.SetThrottleRange(1500, l.minThrottle, l.maxThrottle)

	l.mix.Input(mixer.InputRoll, l.ctrl.Roll())
	l.mix.Input(mixer.InputPitch, l.ctrl.Pitch())
	l.mix.Input(mixer.InputYaw, negate(l.ctrl.Yaw()))

	throttle := sticks.Throttle - 500
	l.mix.Input(mixer.InputThrottle, throttle)

	l.mix.Input(mixer.InputRCRoll, sticks.Roll)
	l.mix.Input(mixer.InputRCPitch, sticks.Pitch)
	l.mix.Input(mixer.InputRCYaw, sticks.Yaw)
	l.mix.Input(mixer.InputRCThrottle, throttle)
	for i, v := range sticks.Aux {
		l.mix.Input(mixer.InputRCAux1+mixer.Input(i), v)
	}

	l.mix.Input(mixer.InputGimbalPitch, gimbal(att.Pitch))
	l.mix.Input(mixer.InputGimbalRoll, gimbal(att.Roll))
	yaw := int32(att.Yaw)
	if yaw > 1800 {
		yaw -= 3600
	}
	l.mix.Input(mixer.InputGimbalYaw, int16(mathx.ScaleRange(yaw, -1800, 1800, -500, 500)))

	l.mix.Update(armed)
}

// ResetIntegrals clears the controller integrators.
func (l *Loop) ResetIntegrals() {
	l.ctrl.ResetRateIntegral()
	l.ctrl.ResetAngleIntegral()
}

func gimbal(decidegrees int16) int16 {
	return int16(mathx.ScaleRange(int32(decidegrees), -1800, 1800, -500, 500))
}

func negate(v int16) int16 {
	if v == math.MinInt16 {
		return math.MaxInt16
	}
	return -v
}

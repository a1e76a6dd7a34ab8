// Package imu implements the attitude estimator: a Mahony complementary
// filter over gyro, accelerometer and magnetometer samples, together with
// the per-sensor calibration state machines.
package imu

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/BryanSouza91/WingFC/internal/filter"
	"github.com/BryanSouza91/WingFC/internal/log"
	"github.com/BryanSouza91/WingFC/internal/mathx"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

const (
	// Integral feedback stops accumulating above this spin rate, °/s.
	spinRateLimitDeg = 20

	// Squared norms this close to 1 are renormalized with 2/(1+n).
	normTolerance = 2.107342e-08

	gravity = 9.80665
)

// Attitude is roll, pitch and yaw in tenths of a degree.
type Attitude struct {
	Roll  int16
	Pitch int16
	Yaw   int16
}

// Estimator fuses sensor samples into an orientation. It is not safe for
// concurrent use; one control loop owns it.
type Estimator struct {
	cfg    Config
	board  *sensors.Board
	logger *log.Logger

	gyroScale          float64 // rad/s per count
	acc1G              int32
	accVelScale        float64 // cm/s² per count
	throttleAngleScale float64
	smallAngleCosZ     float64
	declination        float64

	gyroFilter [3]*filter.Biquad
	accFilter  [3]filter.PT1
	accZFilter filter.PT1

	// latest calibrated readings
	gyro, acc, mag  sensors.Vector
	magFresh        bool
	accSeen         bool
	extYaw          float64
	extYawAvailable bool

	gyroCal gyroCalibration
	accCal  accelCalibration
	magCal  magCalibration
	trims   Trims

	q          mgl64.Quat
	rot        mgl64.Mat3
	accSmooth  r3.Vector
	integralFB r3.Vector
	attitude   Attitude
	smallAngle bool
	elapsed    float64

	accSum      [3]int32
	accSumCount int
	accTimeSum  float64
	accZOffset  int32
}

// New creates an estimator. gyroScale is °/s per gyro count and acc1G the
// accelerometer reading of 1 g, both supplied by the sensor driver.
func New(cfg Config, gyroScale float64, acc1G int32) *Estimator {
	e := &Estimator{
		cfg:    cfg,
		board:  sensors.NewBoard(cfg.Board),
		logger: log.New("imu"),

		gyroScale:          mathx.DegreesToRadians(gyroScale),
		acc1G:              acc1G,
		accVelScale:        gravity / float64(acc1G) * 100,
		throttleAngleScale: (1800 / math.Pi) * (900 / float64(cfg.ThrottleCorrectionAngle)),
		smallAngleCosZ:     math.Cos(mathx.DegreesToRadians(float64(cfg.SmallAngle))),
		declination:        cfg.declinationDecidegrees(),

		gyroCal: gyroCalibration{cycles: cfg.GyroCalibrationCycles, threshold: cfg.GyroMoveThreshold},
		accCal:  accelCalibration{cycles: cfg.AccCalibrationCycles},
		magCal:  magCalibration{cycles: cfg.MagCalibrationCycles},
		trims:   Trims{MagScale: [3]float64{1, 1, 1}},

		q: mgl64.QuatIdent(),
	}
	switch {
	case cfg.GyroLPFHz == 0:
	case !filter.BiquadCutoffValid(float64(cfg.GyroLPFHz), cfg.GyroLPFRefreshUs):
		e.logger.WithFields(log.Fields{
			"cutoff":  cfg.GyroLPFHz,
			"refresh": cfg.GyroLPFRefreshUs,
		}).Warn("gyro filter cannot run at this refresh, disabled")
	default:
		for axis := range e.gyroFilter {
			e.gyroFilter[axis] = filter.NewBiquad(float64(cfg.GyroLPFHz), cfg.GyroLPFRefreshUs)
		}
	}
	for axis := range e.accFilter {
		e.accFilter[axis].SetCutoff(float64(cfg.AccCutHz))
	}
	e.accZFilter.SetCutoff(cfg.AccZLPFCutoff)
	if cfg.GyroCalibrateOnBoot {
		e.gyroCal.start()
	}
	e.updateRotation()
	return e
}

// SetLogger replaces the logger used for calibration events.
func (e *Estimator) SetLogger(l *log.Logger) { e.logger = l }

// FeedGyro records a raw gyro sample.
func (e *Estimator) FeedGyro(raw sensors.Vector) {
	v := e.board.Rotate(raw, e.cfg.GyroAlign)
	if e.gyroFilter[0] != nil {
		for axis := range v {
			v[axis] = mathx.Lrint(e.gyroFilter[axis].Apply(float64(v[axis])))
		}
	}

	if e.gyroCal.active() {
		zero, done, restarted := e.gyroCal.push(v)
		switch {
		case restarted:
			e.logger.WithField("threshold", e.cfg.GyroMoveThreshold).Warn("gyro moved during calibration, restarting")
		case done:
			e.trims.GyroZero = zero
			e.logger.WithFields(log.Fields{"zero": zero, "stddev": e.gyroCal.deviation()}).Info("gyro calibration complete")
		}
		e.gyro = sensors.Vector{}
	} else {
		for axis := range v {
			e.gyro[axis] = v[axis] - e.trims.GyroZero[axis]
		}
	}
}

// FeedAccel records a raw accelerometer sample. While calibrating, the
// estimator sees an ideal level reading.
func (e *Estimator) FeedAccel(raw sensors.Vector) {
	v := e.board.Rotate(raw, e.cfg.AccAlign)

	if e.accCal.active() {
		if zero, done := e.accCal.push(v, e.acc1G); done {
			e.trims.AccZero = zero
			e.logger.WithField("zero", zero).Info("accelerometer calibration complete")
		}
		e.acc = sensors.Vector{0, 0, e.acc1G}
	} else {
		for axis := range v {
			e.acc[axis] = v[axis] - e.trims.AccZero[axis]
		}
	}
	e.accSeen = true
}

// FeedMag records a raw magnetometer sample. While calibrating the stored
// reading is zero, which keeps it out of the fusion.
func (e *Estimator) FeedMag(raw sensors.Vector) {
	v := e.board.Rotate(raw, e.cfg.MagAlign)

	if e.magCal.active() {
		if zero, scale, done := e.magCal.push(v); done {
			e.trims.MagZero = zero
			e.trims.MagScale = scale
			e.logger.WithFields(log.Fields{"zero": zero, "scale": scale}).Info("magnetometer calibration complete")
		}
		e.mag = sensors.Vector{}
	} else {
		for axis := range v {
			e.mag[axis] = mathx.Lrint(float64(v[axis]-e.trims.MagZero[axis]) / e.trims.MagScale[axis])
		}
	}
	e.magFresh = true
}

// SetExternalYaw supplies a heading reference in decidegrees, such as a GPS
// course over ground. It is used only when no healthy magnetometer sample is
// available. ok=false withdraws it.
func (e *Estimator) SetExternalYaw(decidegrees int16, ok bool) {
	e.extYaw = float64(decidegrees)
	e.extYawAvailable = ok
}

// Update runs one fusion step dt seconds after the previous one. Nothing
// happens until the first accelerometer sample has arrived.
func (e *Estimator) Update(dt float64, armed bool) {
	if !e.accSeen {
		return
	}
	e.elapsed += dt

	if e.cfg.AccCutHz > 0 {
		e.accSmooth = r3.Vector{
			X: e.accFilter[sensors.X].Apply(float64(e.acc[sensors.X]), dt),
			Y: e.accFilter[sensors.Y].Apply(float64(e.acc[sensors.Y]), dt),
			Z: e.accFilter[sensors.Z].Apply(float64(e.acc[sensors.Z]), dt),
		}
	} else {
		e.accSmooth = vectorOf(e.acc)
	}

	useAcc := e.accHealthy()
	useMag := e.magFresh && e.magHealthy()
	useYaw := !useMag && e.extYawAvailable
	var yawError float64
	if useYaw {
		yawError = mathx.DecidegreesToRadians(float64(e.attitude.Yaw) - e.extYaw)
	}

	e.mahony(dt, useAcc, useMag, useYaw, yawError, e.kpBoost(armed))
	e.updateEuler()
	e.updateAcceleration(dt, armed)

	e.magFresh = false
}

func (e *Estimator) accHealthy() bool {
	// compare squared magnitudes to avoid the root
	lo := float64(e.cfg.AccMinCentG) / 100 * float64(e.acc1G)
	hi := float64(e.cfg.AccMaxCentG) / 100 * float64(e.acc1G)
	n := e.accSmooth.Norm2()
	return lo*lo < n && n < hi*hi
}

func (e *Estimator) magHealthy() bool {
	return e.mag[sensors.X] != 0 && e.mag[sensors.Y] != 0 && e.mag[sensors.Z] != 0
}

func (e *Estimator) kpBoost(armed bool) float64 {
	boost := false
	switch e.cfg.FastConvergence {
	case FastConvergenceBootWindow:
		boost = !armed && e.elapsed < e.cfg.FastConvergenceWindow.Seconds()
	case FastConvergenceUntilArmed:
		boost = !armed
	case FastConvergenceUntilCalibrated:
		boost = !e.IsCalibrated()
	}
	if boost {
		return e.cfg.FastConvergenceGain
	}
	return 1
}

func (e *Estimator) mahony(dt float64, useAcc, useMag, useYaw bool, yawError, boost float64) {
	g := vectorOf(e.gyro).Mul(e.gyroScale)
	spinRate := g.Norm()
	down := e.row(2)

	var ex r3.Vector

	if useYaw {
		for yawError > math.Pi {
			yawError -= 2 * math.Pi
		}
		for yawError < -math.Pi {
			yawError += 2 * math.Pi
		}
		ex.Z += math.Sin(yawError / 2)
	}

	if m := vectorOf(e.mag); useMag && m.Norm2() > 0.01 {
		m = m.Normalize()
		// Only the horizontal part of the field is used so that the
		// magnetometer corrects heading and never roll or pitch.
		hx := e.row(0).Dot(m)
		hy := e.row(1).Dot(m)
		bx := math.Sqrt(hx*hx + hy*hy)
		ex = ex.Add(down.Mul(-(hy * bx)))
	}

	if a := e.accSmooth; useAcc && a.Norm2() > 0.01 {
		ex = ex.Add(a.Normalize().Cross(down))
	}

	ki := float64(e.cfg.DcmKi) / 10000
	if ki > 0 {
		if spinRate < mathx.DegreesToRadians(spinRateLimitDeg) {
			e.integralFB = e.integralFB.Add(ex.Mul(ki * dt))
		}
	} else {
		e.integralFB = r3.Vector{}
	}

	kp := float64(e.cfg.DcmKp) / 10000 * boost
	g = g.Add(ex.Mul(kp)).Add(e.integralFB).Mul(0.5 * dt)

	// first order integration: q += q ⊗ (0, g)
	e.q = e.q.Add(e.q.Mul(mgl64.Quat{V: mgl64.Vec3{g.X, g.Y, g.Z}}))

	n := e.q.Dot(e.q)
	var recipNorm float64
	if math.Abs(1-n) < normTolerance {
		recipNorm = 2 / (1 + n)
	} else {
		recipNorm = mathx.InvSqrt(n)
	}
	e.q = e.q.Scale(recipNorm)

	e.updateRotation()
}

// updateRotation derives the rotation matrix from the quaternion.
func (e *Estimator) updateRotation() {
	w, x, y, z := e.q.W, e.q.V[0], e.q.V[1], e.q.V[2]
	ww, xx, yy, zz := w*w, x*x, y*y, z*z

	e.rot = mgl64.Mat3FromRows(
		mgl64.Vec3{ww + xx - yy - zz, 2 * (x*y - w*z), 2 * (x*z + w*y)},
		mgl64.Vec3{2 * (x*y + w*z), ww - xx + yy - zz, 2 * (y*z - w*x)},
		mgl64.Vec3{2 * (x*z - w*y), 2 * (y*z + w*x), ww - xx - yy + zz},
	)
}

func (e *Estimator) row(i int) r3.Vector {
	r := e.rot.Row(i)
	return r3.Vector{X: r[0], Y: r[1], Z: r[2]}
}

func (e *Estimator) updateEuler() {
	px, py, pz := e.rot.At(2, 0), e.rot.At(2, 1), e.rot.At(2, 2)

	roll := math.Atan2(py, mathx.Sign(pz)*math.Sqrt(pz*pz+0.01*px*px))
	pitch := math.Atan2(-px, math.Sqrt(py*py+pz*pz))
	yaw := mathx.Lrint(-math.Atan2(e.rot.At(1, 0), e.rot.At(0, 0))*(1800/math.Pi) + e.declination)
	if yaw < 0 {
		yaw += 3600
	}
	if yaw >= 3600 {
		yaw -= 3600
	}

	e.attitude = Attitude{
		Roll:  int16(mathx.Lrint(roll * (1800 / math.Pi))),
		Pitch: int16(mathx.Lrint(pitch * (1800 / math.Pi))),
		Yaw:   int16(yaw),
	}
	e.smallAngle = pz > e.smallAngleCosZ
}

// updateAcceleration rotates the smoothed acceleration into the earth frame,
// removes gravity and accumulates it for the altitude estimator.
func (e *Estimator) updateAcceleration(dt float64, armed bool) {
	a := e.rot.Mul3x1(mgl64.Vec3{e.accSmooth.X, e.accSmooth.Y, e.accSmooth.Z})
	ax, ay, az := a[0], -a[1], a[2]

	if e.cfg.AccUnarmedCal {
		if !armed {
			e.accZOffset -= e.accZOffset / 64
			e.accZOffset = int32(float64(e.accZOffset) + az)
		}
		az -= float64(e.accZOffset / 64)
	} else {
		az -= float64(e.acc1G)
	}

	accZ := e.accZFilter.Apply(az, dt)

	e.accSum[sensors.X] += mathx.ApplyDeadband(mathx.Lrint(ax), e.cfg.AccDeadbandXY)
	e.accSum[sensors.Y] += mathx.ApplyDeadband(mathx.Lrint(ay), e.cfg.AccDeadbandXY)
	e.accSum[sensors.Z] += mathx.ApplyDeadband(mathx.Lrint(accZ), e.cfg.AccDeadbandZ)
	e.accTimeSum += dt
	e.accSumCount++
}

func vectorOf(v sensors.Vector) r3.Vector {
	return r3.Vector{X: float64(v[sensors.X]), Y: float64(v[sensors.Y]), Z: float64(v[sensors.Z])}
}

package imu

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/BryanSouza91/WingFC/internal/mathx"
	"github.com/BryanSouza91/WingFC/internal/sensors"
)

// --- Calibration control ---

// CalibrateGyro starts a fresh gyro calibration window. Keep the craft still.
func (e *Estimator) CalibrateGyro() {
	e.trims.GyroZero = sensors.Vector{}
	e.gyro = sensors.Vector{}
	e.gyroCal.start()
}

// CalibrateAccel starts a fresh accelerometer calibration window. Keep the
// craft level.
func (e *Estimator) CalibrateAccel() {
	e.accCal.start()
}

// CalibrateMag starts a fresh magnetometer calibration window. Turn the craft
// through every orientation while it runs.
func (e *Estimator) CalibrateMag() {
	e.trims.MagZero = sensors.Vector{}
	e.trims.MagScale = [3]float64{1, 1, 1}
	e.magCal.start()
}

func (e *Estimator) GyroCalibrated() bool  { return !e.gyroCal.active() }
func (e *Estimator) AccelCalibrated() bool { return !e.accCal.active() }
func (e *Estimator) MagCalibrated() bool   { return !e.magCal.active() }

// IsCalibrated reports whether no calibration window is running.
func (e *Estimator) IsCalibrated() bool {
	return e.GyroCalibrated() && e.AccelCalibrated() && e.MagCalibrated()
}

// Trims returns the current calibration results.
func (e *Estimator) Trims() Trims { return e.trims }

// SetTrims restores previously saved calibration results. Scale factors of
// zero are treated as 1.
func (e *Estimator) SetTrims(t Trims) {
	for axis := range t.MagScale {
		if t.MagScale[axis] == 0 {
			t.MagScale[axis] = 1
		}
	}
	e.trims = t
}

// AlignToGravity seeds the orientation from an accelerometer reading so that
// the filter starts close to the true roll and pitch. Heading is left at zero.
func (e *Estimator) AlignToGravity(accel sensors.Vector) {
	a := vectorOf(e.board.Rotate(accel, e.cfg.AccAlign))
	if a.Norm2() == 0 {
		return
	}
	roll := math.Atan2(a.Y, a.Z)
	pitch := math.Atan2(-a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z))

	e.q = mgl64.AnglesToQuat(0, pitch, roll, mgl64.ZYX).Normalize()
	e.integralFB = r3.Vector{}
	e.updateRotation()
	e.updateEuler()
}

// --- Read accessors ---

func (e *Estimator) Attitude() Attitude { return e.attitude }
func (e *Estimator) Roll() int16        { return e.attitude.Roll }
func (e *Estimator) Pitch() int16       { return e.attitude.Pitch }
func (e *Estimator) Yaw() int16         { return e.attitude.Yaw }

// Quaternion returns the orientation, body to earth.
func (e *Estimator) Quaternion() mgl64.Quat { return e.q }

// RotationMatrix returns the matrix derived from the quaternion on the last update.
func (e *Estimator) RotationMatrix() mgl64.Mat3 { return e.rot }

// FilteredAccel returns the smoothed acceleration in counts.
func (e *Estimator) FilteredAccel() sensors.Vector {
	return sensors.Vector{int32(e.accSmooth.X), int32(e.accSmooth.Y), int32(e.accSmooth.Z)}
}

// GyroRates returns the latest calibrated gyro reading in counts.
func (e *Estimator) GyroRates() sensors.Vector { return e.gyro }

// CosTiltAngle is the cosine of the angle between body and earth Z axes.
func (e *Estimator) CosTiltAngle() float64 { return e.rot.At(2, 2) }

// SmallAngle reports whether the tilt is within the configured small angle.
func (e *Estimator) SmallAngle() bool { return e.smallAngle }

// IsLeveled reports whether the tilt is below maxAngle degrees.
func (e *Estimator) IsLeveled(maxAngle uint8) bool {
	return e.rot.At(2, 2) > math.Cos(mathx.DegreesToRadians(float64(maxAngle)))
}

// ThrottleAngleCorrection returns the extra throttle needed to hold altitude
// at the current tilt, given the correction at the configured angle. It is
// zero when inverted or nearly vertical.
func (e *Estimator) ThrottleAngleCorrection(value uint8) int16 {
	cosZ := e.rot.At(2, 2)
	if cosZ <= 0.015 {
		return 0
	}
	angle := min(mathx.Lrint(math.Acos(cosZ)*e.throttleAngleScale), 900)
	return int16(mathx.Lrint(float64(value) * math.Sin(float64(angle)/(900*math.Pi/2))))
}

// --- Velocity bookkeeping ---

// AverageVerticalAccel is the mean earth-frame Z acceleration since the last
// reset, in counts.
func (e *Estimator) AverageVerticalAccel() float64 {
	if e.accSumCount == 0 {
		return 0
	}
	return float64(e.accSum[sensors.Z]) / float64(e.accSumCount)
}

// EstimatedVerticalVelocity integrates the averaged acceleration over the
// integration time, in cm/s.
func (e *Estimator) EstimatedVerticalVelocity() float64 {
	return e.AverageVerticalAccel() * e.accVelScale * e.accTimeSum
}

// VelocityIntegrationTime is the time covered by the sums, in seconds.
func (e *Estimator) VelocityIntegrationTime() float64 { return e.accTimeSum }

// ResetVelocityEstimate clears the acceleration sums.
func (e *Estimator) ResetVelocityEstimate() {
	e.accSum = [3]int32{}
	e.accSumCount = 0
	e.accTimeSum = 0
}

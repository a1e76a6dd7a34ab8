package sensors

import (
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lsm6ds3tr"
)

// IMUConfig selects the measurement ranges of the LSM6DS3TR.
type IMUConfig struct {
	AccelRangeG  int `yaml:"accel_range_g"`  // 2, 4, 8 or 16
	GyroRangeDPS int `yaml:"gyro_range_dps"` // 245, 500, 1000 or 2000
	SampleRateHz int `yaml:"sample_rate_hz"` // 104 .. 6664
}

// DefaultIMUConfig matches the ranges the WingFC airframes fly with.
func DefaultIMUConfig() IMUConfig {
	return IMUConfig{
		AccelRangeG:  8,
		GyroRangeDPS: 1000,
		SampleRateHz: 833,
	}
}

// IMU wraps the LSM6DS3TR accel/gyro and hands out readings in raw counts.
//
// The driver reports micro-g and micro-degrees per second; both are divided
// back by the per-count sensitivity of the configured range.
type IMU struct {
	dev *lsm6ds3tr.Device
	cfg IMUConfig

	accelUG   int32 // µg per count
	gyroUDPS  int32 // µ°/s per count
	accelRate lsm6ds3tr.AccelSampleRate
	gyroRate  lsm6ds3tr.GyroSampleRate
	accelReg  lsm6ds3tr.AccelRange
	gyroReg   lsm6ds3tr.GyroRange
}

// NewIMU creates the adapter. Call Configure before reading.
func NewIMU(bus drivers.I2C, cfg IMUConfig) *IMU {
	m := &IMU{dev: lsm6ds3tr.New(bus), cfg: cfg}

	switch cfg.AccelRangeG {
	case 2:
		m.accelReg, m.accelUG = lsm6ds3tr.ACCEL_2G, 61
	case 4:
		m.accelReg, m.accelUG = lsm6ds3tr.ACCEL_4G, 122
	case 16:
		m.accelReg, m.accelUG = lsm6ds3tr.ACCEL_16G, 488
	default:
		m.accelReg, m.accelUG = lsm6ds3tr.ACCEL_8G, 244
	}

	// the driver treats a zero range as 2000 °/s, so 245 °/s is not selectable
	switch cfg.GyroRangeDPS {
	case 500:
		m.gyroReg, m.gyroUDPS = lsm6ds3tr.GYRO_500DPS, 17500
	case 2000:
		m.gyroReg, m.gyroUDPS = lsm6ds3tr.GYRO_2000DPS, 70000
	default:
		m.gyroReg, m.gyroUDPS = lsm6ds3tr.GYRO_1000DPS, 35000
	}

	switch {
	case cfg.SampleRateHz >= 6664:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_6664, lsm6ds3tr.GYRO_SR_6664
	case cfg.SampleRateHz >= 3332:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_3332, lsm6ds3tr.GYRO_SR_3332
	case cfg.SampleRateHz >= 1666:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_1666, lsm6ds3tr.GYRO_SR_1666
	case cfg.SampleRateHz >= 833:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_833, lsm6ds3tr.GYRO_SR_833
	case cfg.SampleRateHz >= 416:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_416, lsm6ds3tr.GYRO_SR_416
	case cfg.SampleRateHz >= 208:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_208, lsm6ds3tr.GYRO_SR_208
	default:
		m.accelRate, m.gyroRate = lsm6ds3tr.ACCEL_SR_104, lsm6ds3tr.GYRO_SR_104
	}
	return m
}

// Configure checks the device identity and programs its ranges.
func (m *IMU) Configure() error {
	if !m.dev.Connected() {
		return errors.Wrapf(ErrNotConnected, "lsm6ds3tr at %#x", m.dev.Address)
	}
	err := m.dev.Configure(lsm6ds3tr.Configuration{
		AccelRange:      m.accelReg,
		AccelSampleRate: m.accelRate,
		GyroRange:       m.gyroReg,
		GyroSampleRate:  m.gyroRate,
	})
	return errors.Wrap(err, "configure lsm6ds3tr")
}

// ReadGyro returns the angular rate in counts.
func (m *IMU) ReadGyro() (Vector, error) {
	x, y, z, err := m.dev.ReadRotation()
	if err != nil {
		return Vector{}, errors.Wrap(err, "read rotation")
	}
	return Vector{x / m.gyroUDPS, y / m.gyroUDPS, z / m.gyroUDPS}, nil
}

// ReadAccel returns the acceleration in counts.
func (m *IMU) ReadAccel() (Vector, error) {
	x, y, z, err := m.dev.ReadAcceleration()
	if err != nil {
		return Vector{}, errors.Wrap(err, "read acceleration")
	}
	return Vector{x / m.accelUG, y / m.accelUG, z / m.accelUG}, nil
}

// GyroScale is the rate of one gyro count in °/s.
func (m *IMU) GyroScale() float64 {
	return float64(m.gyroUDPS) / 1e6
}

// Acc1G is the number of accelerometer counts in one g.
func (m *IMU) Acc1G() int32 {
	return 1000000 / m.accelUG
}

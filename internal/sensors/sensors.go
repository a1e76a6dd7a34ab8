// Package sensors provides the raw gyro, accelerometer and magnetometer
// readings consumed by the attitude estimator.
package sensors

import "github.com/pkg/errors"

// Axis indexes.
const (
	X = iota
	Y
	Z
)

// Vector holds one raw reading per axis in sensor counts.
type Vector [3]int32

// ErrNotConnected is returned when a device does not answer its WHO_AM_I query.
var ErrNotConnected = errors.New("sensor not connected")

// GyroSource delivers angular rate samples.
type GyroSource interface {
	ReadGyro() (Vector, error)
}

// AccelSource delivers acceleration samples.
type AccelSource interface {
	ReadAccel() (Vector, error)
}

// MagSource delivers magnetic field samples.
type MagSource interface {
	ReadMag() (Vector, error)
}

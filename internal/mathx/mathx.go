// Package mathx holds the small numeric helpers shared by the flight core.
package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Number is any integer or floating point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Signed is any signed integer or floating point type.
type Signed interface {
	constraints.Signed | constraints.Float
}

// Constrain clamps value into [lo, hi].
func Constrain[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// MapRange maps a value from one range to another.
// Integer types truncate the same way C integer arithmetic does.
func MapRange[T Number](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)*(toMax-toMin)/(fromMax-fromMin) + toMin
}

// ScaleRange is the int32 form of MapRange used by the gimbal inputs.
func ScaleRange(x, srcMin, srcMax, dstMin, dstMax int32) int32 {
	a := (dstMax - dstMin) * (x - srcMin)
	b := srcMax - srcMin
	return a/b + dstMin
}

// ApplyDeadband zeroes values within ±band and shifts the rest toward zero.
func ApplyDeadband[T Signed](value, band T) T {
	switch {
	case Abs(value) < band:
		return 0
	case value > 0:
		return value - band
	default:
		return value + band
	}
}

// Abs returns the absolute value.
func Abs[T Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0 or 1.
func Sign[T Signed](v T) T {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Lrint rounds to the nearest integer, ties to even, like lrintf in the
// default rounding mode.
func Lrint(v float64) int32 {
	return int32(math.RoundToEven(v))
}

// InvSqrt returns an approximation of 1/sqrt(x) using the bit-level seed
// refined by Newton iterations. Relative error is below 1e-12.
func InvSqrt(x float64) float64 {
	if x <= 0 {
		return math.Inf(1)
	}
	half := 0.5 * x
	i := math.Float64bits(x)
	i = 0x5FE6EB50C7B537A9 - (i >> 1)
	y := math.Float64frombits(i)
	// each step roughly doubles the number of correct bits
	y *= 1.5 - half*y*y
	y *= 1.5 - half*y*y
	y *= 1.5 - half*y*y
	y *= 1.5 - half*y*y
	return y
}

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DecidegreesToRadians converts tenths of a degree to radians.
func DecidegreesToRadians(dd float64) float64 {
	return dd * math.Pi / 1800
}

// Package filter holds the low-pass and averaging filters used by the
// estimator and the rate controller.
package filter

import (
	"math"

	"github.com/BryanSouza91/WingFC/internal/mathx"
)

// Bandwidth of the biquad low pass, in octaves.
const biquadBandwidth = 1.9

// PT1 is a first-order low pass filter.
type PT1 struct {
	State float64
	rc    float64
}

// NewPT1 returns a PT1 with the time constant of cutoff fc (Hz).
func NewPT1(fc float64) *PT1 {
	p := &PT1{}
	p.SetCutoff(fc)
	return p
}

// SetCutoff recomputes the time constant. A zero cutoff makes the filter
// pass samples straight through.
func (p *PT1) SetCutoff(fc float64) {
	if fc <= 0 {
		p.rc = 0
		return
	}
	p.rc = 1.0 / (2.0 * math.Pi * fc)
}

// Apply filters one sample taken dt seconds after the previous one.
func (p *PT1) Apply(input, dt float64) float64 {
	p.State += dt / (p.rc + dt) * (input - p.State)
	return p.State
}

// Reset sets the filter state.
func (p *PT1) Reset(value float64) {
	p.State = value
}

// Biquad is a second-order low pass filter in direct form I.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 float64
	y1, y2 float64
}

// BiquadCutoffValid reports whether a low pass with cutoff fc can run every
// refreshUs microseconds: the refresh must be set and fc below Nyquist.
func BiquadCutoffValid(fc float64, refreshUs uint32) bool {
	if refreshUs == 0 || fc <= 0 {
		return false
	}
	return fc < 1e6/float64(refreshUs)/2
}

// NewBiquad builds a low pass with cutoff fc (Hz) for a filter called every
// refreshUs microseconds. Check the pair with BiquadCutoffValid first.
func NewBiquad(fc float64, refreshUs uint32) *Biquad {
	sampleRate := 1 / (float64(refreshUs) * 0.000001)
	omega := 2 * math.Pi * fc / sampleRate
	sn := math.Sin(omega)
	cs := math.Cos(omega)
	alpha := sn * math.Sin(math.Ln2/2*biquadBandwidth*omega/sn)

	b0 := (1 - cs) / 2
	b1 := 1 - cs
	b2 := (1 - cs) / 2
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha

	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Apply filters one sample.
func (f *Biquad) Apply(sample float64) float64 {
	result := f.b0*sample + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2

	f.x2 = f.x1
	f.x1 = sample
	f.y2 = f.y1
	f.y1 = result

	return result
}

// Reset clears the filter history.
func (f *Biquad) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// MaxAverageCount is the longest history an Average can hold.
const MaxAverageCount = 8

// Average is a moving average over the last Count samples. Integer types
// truncate the quotient.
type Average[T mathx.Number] struct {
	history [MaxAverageCount]T
	count   int
}

// NewAverage returns an average over count samples (1..MaxAverageCount).
func NewAverage[T mathx.Number](count int) *Average[T] {
	return &Average[T]{count: mathx.Constrain(count, 1, MaxAverageCount)}
}

// Apply shifts in a sample and returns the mean of the history.
func (a *Average[T]) Apply(sample T) T {
	var sum T
	for i := a.count - 1; i > 0; i-- {
		a.history[i] = a.history[i-1]
	}
	a.history[0] = sample
	for i := 0; i < a.count; i++ {
		sum += a.history[i]
	}
	return sum / T(a.count)
}

// Reset clears the history.
func (a *Average[T]) Reset() {
	a.history = [MaxAverageCount]T{}
}

package filter

import "math"

// StdDev is a running standard deviation accumulator (Welford's method).
type StdDev struct {
	oldM, newM float64
	oldS, newS float64
	n          int
}

// Clear restarts the accumulator.
func (s *StdDev) Clear() {
	s.n = 0
}

// Push adds a sample.
func (s *StdDev) Push(x float64) {
	s.n++
	if s.n == 1 {
		s.oldM, s.newM = x, x
		s.oldS = 0
		return
	}
	s.newM = s.oldM + (x-s.oldM)/float64(s.n)
	s.newS = s.oldS + (x-s.oldM)*(x-s.newM)
	s.oldM = s.newM
	s.oldS = s.newS
}

// Count is the number of samples pushed since the last Clear.
func (s *StdDev) Count() int { return s.n }

// Mean of the samples pushed so far.
func (s *StdDev) Mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.newM
}

// Variance is the unbiased sample variance.
func (s *StdDev) Variance() float64 {
	if s.n > 1 {
		return s.newS / float64(s.n-1)
	}
	return 0
}

func (s *StdDev) StandardDeviation() float64 {
	return math.Sqrt(s.Variance())
}

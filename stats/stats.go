package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	Epsilon = 1e-6
)

func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// Statistic is a running mean and variance (Welford's algorithm).
type Statistic struct {
	totalIterations int

	// For Welford's algorithm:
	oldM float64
	newM float64
	oldS float64
	newS float64
}

func (s *Statistic) Push(val float64) {
	s.totalIterations++
	if s.totalIterations == 1 {
		s.oldM = val
		s.newM = val
		s.oldS = 0
		s.newS = 0
	} else {
		s.newM = s.oldM + (val-s.oldM)/float64(s.totalIterations)
		s.newS = s.oldS + (val-s.oldM)*(val-s.newM)
		s.oldM = s.newM
		s.oldS = s.newS
	}
}

// Merge folds o into s as if every value pushed to o had been pushed to s
// (Chan et al.'s pairwise update).
func (s *Statistic) Merge(o *Statistic) {
	if o.totalIterations == 0 {
		return
	}
	if s.totalIterations == 0 {
		*s = *o
		return
	}
	na, nb := float64(s.totalIterations), float64(o.totalIterations)
	n := na + nb
	delta := o.newM - s.newM
	mean := s.newM + delta*nb/n
	m2 := s.newS + o.newS + delta*delta*na*nb/n
	s.totalIterations += o.totalIterations
	s.oldM, s.newM = mean, mean
	s.oldS, s.newS = m2, m2
}

func (s *Statistic) Reset() {
	*s = Statistic{}
}

func (s *Statistic) Mean() float64 {
	if s.totalIterations > 0 {
		return s.newM
	}
	return 0.0
}

func (s *Statistic) Variance() float64 {
	if s.totalIterations <= 1 {
		return 0.0
	}
	return s.newS / float64(s.totalIterations-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

// StandardError returns the standard error of the statistic.
func (s *Statistic) StandardError() float64 {
	if s.totalIterations == 0 {
		return 0
	}
	return math.Sqrt(s.Variance() / float64(s.totalIterations))
}

func (s *Statistic) Iterations() int {
	return s.totalIterations
}

// ConfidenceInterval returns mean ± z·SE at the given confidence (in
// percent).
func (s *Statistic) ConfidenceInterval(confidence float64) (float64, float64) {
	h := ZVal(confidence) * s.StandardError()
	return s.Mean() - h, s.Mean() + h
}

// ZVal is the two-sided critical value of the standard normal for a
// confidence level given in percent; ZVal(99) is about 2.576.
func ZVal(confidence float64) float64 {
	return distuv.UnitNormal.Quantile(0.5 + confidence/200)
}

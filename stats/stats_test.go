package stats

import (
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"
)

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		scores []int
		mean   float64
		stdev  float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]int{1}, 1, 0},
		{[]int{}, 0, 0},
		{[]int{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, score := range c.scores {
			s.Push(float64(score))
		}
		is.True(FuzzyEqual(s.Mean(), c.mean))
		is.True(FuzzyEqual(s.Stdev(), c.stdev))

	}
}

func TestMerge(t *testing.T) {
	is := is.New(t)
	vals := []float64{14, 35, 71, 124, 10, 24, 55, 33, 87, 19, -3, 0.5}
	for split := 0; split <= len(vals); split++ {
		whole, a, b := &Statistic{}, &Statistic{}, &Statistic{}
		for i, v := range vals {
			whole.Push(v)
			if i < split {
				a.Push(v)
			} else {
				b.Push(v)
			}
		}
		a.Merge(b)
		is.Equal(a.Iterations(), whole.Iterations())
		is.True(FuzzyEqual(a.Mean(), whole.Mean()))
		is.True(FuzzyEqual(a.Variance(), whole.Variance()))
	}
}

func TestZVal(t *testing.T) {
	assert.InDelta(t, 2.5758, ZVal(99), 1e-4)
	assert.InDelta(t, 1.96, ZVal(95), 1e-3)
}

func TestAggregateMerge(t *testing.T) {
	is := is.New(t)
	agg := NewAggregate()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &Partial{}
			for i := 0; i < 1000; i++ {
				p.Rounds++
				p.Hands++
				p.Decisions += 2
				p.UnitsWagered += 1
				p.UnitsReturned += 0.5
				p.Returns.Push(0.5)
				p.DecisionMap[3][4]++
				if i%10 == 0 {
					p.Deviations++
					p.DeviationMap[3][4]++
					p.EVGain += 0.25
					p.Gains = append(p.Gains, 0.25)
				}
				if i%100 == 99 {
					agg.Merge(p)
					agg.AddShoe()
				}
			}
		}()
	}
	wg.Wait()

	s := agg.Snapshot()
	is.Equal(s.Rounds, int64(8000))
	is.Equal(s.Hands, int64(8000))
	is.Equal(s.Decision, int64(16000))
	is.Equal(s.Shoes, int64(80))
	is.Equal(s.Deviations, int64(800))
	is.Equal(s.DeviationMap[3][4], int64(800))
	is.Equal(s.DeviationMap.Total(), int64(800))
	is.Equal(s.DecisionMap[3][4], int64(8000))
	is.Equal(s.UnitsWagered, 8000.0)
	is.Equal(s.UnitsReturned, 4000.0)
	is.Equal(s.EVGain, 200.0)
	is.Equal(s.Edge(), 0.5)
	is.Equal(s.GainPerRound(), 0.025)
	is.Equal(s.DeviationRate(), 0.05)
	is.Equal(len(s.Gains), 800)
	assert.InDelta(t, 0.5, s.ReturnMean, 1e-12)
	lo, hi := s.EdgeInterval(99)
	assert.InDelta(t, 0.5, lo, 1e-9)
	assert.InDelta(t, 0.5, hi, 1e-9)
}

func TestPartialResetKeepsBuffer(t *testing.T) {
	is := is.New(t)
	p := &Partial{Gains: make([]float64, 0, 16)}
	p.Gains = append(p.Gains, 1, 2)
	p.Rounds = 5
	p.Reset()
	is.Equal(p.Rounds, int64(0))
	is.Equal(len(p.Gains), 0)
	is.Equal(cap(p.Gains), 16)
}

package stats

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/strategy"
)

// MaxGainSamples bounds the deviation gains kept for the histogram.
const MaxGainSamples = 1 << 16

// Grid is a count per chart row and dealer upcard.
type Grid [strategy.NumCategories][deck.NumRanks]int64

// Add adds o cell by cell.
func (g *Grid) Add(o *Grid) {
	for i := range g {
		for j := range g[i] {
			g[i][j] += o[i][j]
		}
	}
}

func (g *Grid) Total() int64 {
	var t int64
	for i := range g {
		for j := range g[i] {
			t += g[i][j]
		}
	}
	return t
}

// atomicFloat is a float64 that can be added to concurrently.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Add(delta float64) {
	for {
		old := f.bits.Load()
		nv := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, nv) {
			return
		}
	}
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Partial is one worker's unshared tally. Workers fill a Partial while they
// play and fold it into the Aggregate now and then.
type Partial struct {
	Rounds    int64
	Hands     int64
	Decisions int64

	Deviations   int64
	DeviationMap Grid
	DecisionMap  Grid
	// Severity counts deviations by tier (considerable, concerning,
	// critical).
	Severity [3]int64

	InsuranceOffered    int64
	InsuranceTaken      int64
	InsuranceWon        int64
	InsuranceDeviations int64

	UnitsWagered  float64
	UnitsReturned float64
	EVGain        float64
	InsuranceNet  float64
	InsuranceEV   float64

	Returns Statistic
	Gains   []float64
}

func (p *Partial) Reset() {
	gains := p.Gains[:0]
	*p = Partial{}
	p.Gains = gains
}

// Aggregate is the run-wide tally. Every counter is updated atomically, so
// any number of workers may Merge into it while a reporter reads it.
type Aggregate struct {
	start time.Time

	rounds    atomic.Int64
	hands     atomic.Int64
	decisions atomic.Int64
	shoes     atomic.Int64

	deviations   atomic.Int64
	deviationMap [strategy.NumCategories][deck.NumRanks]atomic.Int64
	decisionMap  [strategy.NumCategories][deck.NumRanks]atomic.Int64
	severity     [3]atomic.Int64

	insuranceOffered    atomic.Int64
	insuranceTaken      atomic.Int64
	insuranceWon        atomic.Int64
	insuranceDeviations atomic.Int64

	unitsWagered  atomicFloat
	unitsReturned atomicFloat
	evGain        atomicFloat
	insuranceNet  atomicFloat
	insuranceEV   atomicFloat

	mu      sync.Mutex
	returns Statistic
	gains   []float64
	gainPos int
}

func NewAggregate() *Aggregate {
	return &Aggregate{start: time.Now()}
}

// AddShoe counts a finished shoe.
func (a *Aggregate) AddShoe() {
	a.shoes.Add(1)
}

// Merge folds p into the aggregate and resets p.
func (a *Aggregate) Merge(p *Partial) {
	a.rounds.Add(p.Rounds)
	a.hands.Add(p.Hands)
	a.decisions.Add(p.Decisions)
	a.deviations.Add(p.Deviations)
	for i := range p.DeviationMap {
		for j := range p.DeviationMap[i] {
			if n := p.DeviationMap[i][j]; n != 0 {
				a.deviationMap[i][j].Add(n)
			}
			if n := p.DecisionMap[i][j]; n != 0 {
				a.decisionMap[i][j].Add(n)
			}
		}
	}
	for i, n := range p.Severity {
		a.severity[i].Add(n)
	}
	a.insuranceOffered.Add(p.InsuranceOffered)
	a.insuranceTaken.Add(p.InsuranceTaken)
	a.insuranceWon.Add(p.InsuranceWon)
	a.insuranceDeviations.Add(p.InsuranceDeviations)
	a.unitsWagered.Add(p.UnitsWagered)
	a.unitsReturned.Add(p.UnitsReturned)
	a.evGain.Add(p.EVGain)
	a.insuranceNet.Add(p.InsuranceNet)
	a.insuranceEV.Add(p.InsuranceEV)

	a.mu.Lock()
	a.returns.Merge(&p.Returns)
	for _, g := range p.Gains {
		if len(a.gains) < MaxGainSamples {
			a.gains = append(a.gains, g)
		} else {
			a.gains[a.gainPos] = g
			a.gainPos = (a.gainPos + 1) % MaxGainSamples
		}
	}
	a.mu.Unlock()
	p.Reset()
}

func (a *Aggregate) Rounds() int64 {
	return a.rounds.Load()
}

// Snapshot is a consistent-enough copy of the aggregate for reporting.
// Counters are read one at a time, so a snapshot taken while workers merge
// may be off by one merge between fields.
type Snapshot struct {
	Rules    string        `json:"rules" yaml:"rules"`
	Method   string        `json:"method" yaml:"method"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
	Rounds   int64         `json:"rounds" yaml:"rounds"`
	Hands    int64         `json:"hands" yaml:"hands"`
	Shoes    int64         `json:"shoes" yaml:"shoes"`
	Decision int64         `json:"decisions" yaml:"decisions"`

	Deviations   int64    `json:"deviations" yaml:"deviations"`
	DeviationMap Grid     `json:"deviation_map" yaml:"-"`
	DecisionMap  Grid     `json:"decision_map" yaml:"-"`
	Severity     [3]int64 `json:"severity" yaml:"severity"`

	InsuranceOffered    int64   `json:"insurance_offered" yaml:"insurance_offered"`
	InsuranceTaken      int64   `json:"insurance_taken" yaml:"insurance_taken"`
	InsuranceWon        int64   `json:"insurance_won" yaml:"insurance_won"`
	InsuranceDeviations int64   `json:"insurance_deviations" yaml:"insurance_deviations"`
	InsuranceNet        float64 `json:"insurance_net" yaml:"insurance_net"`
	InsuranceEV         float64 `json:"insurance_ev" yaml:"insurance_ev"`

	UnitsWagered  float64 `json:"units_wagered" yaml:"units_wagered"`
	UnitsReturned float64 `json:"units_returned" yaml:"units_returned"`
	EVGain        float64 `json:"ev_gain" yaml:"ev_gain"`

	ReturnMean   float64 `json:"return_mean" yaml:"return_mean"`
	ReturnStdev  float64 `json:"return_stdev" yaml:"return_stdev"`
	ReturnStderr float64 `json:"return_stderr" yaml:"return_stderr"`

	Gains []float64 `json:"-" yaml:"-"`
}

func (a *Aggregate) Snapshot() Snapshot {
	s := Snapshot{
		Elapsed:             time.Since(a.start),
		Rounds:              a.rounds.Load(),
		Hands:               a.hands.Load(),
		Shoes:               a.shoes.Load(),
		Decision:            a.decisions.Load(),
		Deviations:          a.deviations.Load(),
		InsuranceOffered:    a.insuranceOffered.Load(),
		InsuranceTaken:      a.insuranceTaken.Load(),
		InsuranceWon:        a.insuranceWon.Load(),
		InsuranceDeviations: a.insuranceDeviations.Load(),
		InsuranceNet:        a.insuranceNet.Load(),
		InsuranceEV:         a.insuranceEV.Load(),
		UnitsWagered:        a.unitsWagered.Load(),
		UnitsReturned:       a.unitsReturned.Load(),
		EVGain:              a.evGain.Load(),
	}
	for i := range a.deviationMap {
		for j := range a.deviationMap[i] {
			s.DeviationMap[i][j] = a.deviationMap[i][j].Load()
			s.DecisionMap[i][j] = a.decisionMap[i][j].Load()
		}
	}
	for i := range a.severity {
		s.Severity[i] = a.severity[i].Load()
	}
	a.mu.Lock()
	s.ReturnMean = a.returns.Mean()
	s.ReturnStdev = a.returns.Stdev()
	s.ReturnStderr = a.returns.StandardError()
	s.Gains = append([]float64(nil), a.gains...)
	a.mu.Unlock()
	return s
}

// Edge is the realized return per round, in units of the initial wager.
func (s Snapshot) Edge() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.UnitsReturned / float64(s.Rounds)
}

// EdgeInterval is the confidence interval of Edge at `confidence` percent.
func (s Snapshot) EdgeInterval(confidence float64) (float64, float64) {
	h := ZVal(confidence) * s.ReturnStderr
	return s.Edge() - h, s.Edge() + h
}

// GainPerRound is the average EV gained over the reference strategy.
func (s Snapshot) GainPerRound() float64 {
	if s.Rounds == 0 {
		return 0
	}
	return s.EVGain / float64(s.Rounds)
}

func (s Snapshot) HandsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Hands) / s.Elapsed.Seconds()
}

func (s Snapshot) DeviationRate() float64 {
	if s.Decision == 0 {
		return 0
	}
	return float64(s.Deviations) / float64(s.Decision)
}

package sim

import (
	"context"
	"time"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/hand"
	"github.com/domino14/bjsim/strategy"
)

// Severity tiers for deviations, by EV gain in units of the wager.
type Severity int

const (
	Considerable Severity = iota
	Concerning
	Critical
)

const (
	ConsiderableGain = 0.35
	ConcerningGain   = 0.6
	CriticalGain     = 1.0
)

func (s Severity) String() string {
	switch s {
	case Considerable:
		return "considerable"
	case Concerning:
		return "concerning"
	case Critical:
		return "critical"
	}
	return "unknown"
}

// SeverityOf returns the tier for a gain, and false if the gain is below
// every tier.
func SeverityOf(gain float64) (Severity, bool) {
	switch {
	case gain > CriticalGain:
		return Critical, true
	case gain > ConcerningGain:
		return Concerning, true
	case gain > ConsiderableGain:
		return Considerable, true
	}
	return 0, false
}

// Deviation is one decision where the exact play beat the chart by more
// than the configured threshold.
type Deviation struct {
	Time      time.Time
	Category  strategy.Category
	Upcard    deck.Rank
	Hand      string
	Hands     int
	Unseen    deck.Composition
	Exact     hand.Action
	Reference hand.Action
	ExactEV   float64
	RefEV     float64
	Gain      float64
}

// A DeviationSink stores notable deviations. It is called from every
// worker, so implementations must be safe for concurrent use.
type DeviationSink interface {
	RecordDeviation(ctx context.Context, d Deviation) error
}

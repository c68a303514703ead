// Package sim plays blackjack rounds on many threads, deciding each hand
// with the exact engine, the reference chart or both, and tallies the
// results into a shared aggregate.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/bjsim/deck"
	"github.com/domino14/bjsim/exact"
	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/rules"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/strategy"
)

// DefaultMergeEvery is how many rounds a worker plays between merges into
// the aggregate when no reshuffle comes first.
const DefaultMergeEvery = 500

// ReportFunc receives a snapshot every report interval and once more when
// the run ends.
type ReportFunc func(stats.Snapshot)

type Simulator struct {
	rules  rules.RuleSet
	chart  *strategy.Chart
	calc   *exact.Calculator
	agg    *stats.Aggregate
	method Method

	threads        int
	maxRounds      int64
	maxDuration    time.Duration
	reportInterval time.Duration
	report         ReportFunc
	threshold      float64
	sink           DeviationSink
	seed           uint64
	seeded         bool
	mergeEvery     int64

	started atomic.Int64
	running atomic.Bool
}

type Option func(*Simulator)

func WithMethod(m Method) Option {
	return func(s *Simulator) { s.method = m }
}

func WithThreads(n int) Option {
	return func(s *Simulator) { s.threads = n }
}

// WithRounds stops the run after n rounds in total across all threads.
// Zero means no limit.
func WithRounds(n int64) Option {
	return func(s *Simulator) { s.maxRounds = n }
}

// WithDuration stops the run after d. Zero means no limit.
func WithDuration(d time.Duration) Option {
	return func(s *Simulator) { s.maxDuration = d }
}

func WithReporter(interval time.Duration, f ReportFunc) Option {
	return func(s *Simulator) {
		s.reportInterval = interval
		s.report = f
	}
}

// WithDeviationThreshold sets the EV gain above which a deviation is logged
// and sent to the sink.
func WithDeviationThreshold(gain float64) Option {
	return func(s *Simulator) { s.threshold = gain }
}

func WithDeviationSink(sink DeviationSink) Option {
	return func(s *Simulator) { s.sink = sink }
}

// WithMergeEvery sets how many rounds a worker plays before folding its
// tallies into the shared aggregate, besides every reshuffle.
func WithMergeEvery(rounds int64) Option {
	return func(s *Simulator) {
		s.mergeEvery = rounds
	}
}

// WithSeed makes every thread's shoe deterministic. Thread t of a run with
// seed n always sees the same cards.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.seed = seed
		s.seeded = true
	}
}

// NewSimulator builds a simulator. The chart may be nil for MethodExact and
// the calculator may be nil for MethodReference.
func NewSimulator(r rules.RuleSet, chart *strategy.Chart, calc *exact.Calculator,
	agg *stats.Aggregate, opts ...Option) (*Simulator, error) {

	if err := r.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		rules:      r,
		chart:      chart,
		calc:       calc,
		agg:        agg,
		threads:    runtime.NumCPU(),
		threshold:  ConsiderableGain,
		mergeEvery: DefaultMergeEvery,
	}
	for _, o := range opts {
		o(s)
	}
	switch {
	case s.agg == nil:
		return nil, errors.New("an aggregate is required")
	case s.method.usesChart() && s.chart == nil:
		return nil, fmt.Errorf("method %v needs a reference chart", s.method)
	case s.method.usesExact() && s.calc == nil:
		return nil, fmt.Errorf("method %v needs an exact calculator", s.method)
	case s.threads < 1:
		return nil, fmt.Errorf("threads must be at least 1, got %d", s.threads)
	case s.maxRounds < 0:
		return nil, errors.New("round budget cannot be negative")
	case s.mergeEvery < 1:
		return nil, fmt.Errorf("merge interval must be at least 1 round, got %d", s.mergeEvery)
	}
	return s, nil
}

func (s *Simulator) Method() Method {
	return s.method
}

func (s *Simulator) Rules() rules.RuleSet {
	return s.rules
}

func (s *Simulator) Calculator() *exact.Calculator {
	return s.calc
}

// MemoStats returns the calculator's table stats, or nil when the method
// does not use the calculator.
func (s *Simulator) MemoStats() []memo.Stats {
	if s.calc == nil {
		return nil
	}
	p, d := s.calc.TableStats()
	return []memo.Stats{p, d}
}

func (s *Simulator) Running() bool {
	return s.running.Load()
}

// Snapshot is the aggregate's snapshot labeled with this run's rules and
// method.
func (s *Simulator) Snapshot() stats.Snapshot {
	snap := s.agg.Snapshot()
	snap.Rules = s.rules.Name
	snap.Method = s.method.String()
	return snap
}

// Run plays rounds until ctx is done or a budget runs out. It blocks. The
// first worker error cancels the other workers and is returned.
func (s *Simulator) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("simulation is already running")
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.maxDuration > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, s.maxDuration)
		defer tcancel()
	}
	s.started.Store(0)

	logger.Info().Str("method", s.method.String()).Str("rules", s.rules.Name).
		Int("threads", s.threads).Int64("rounds", s.maxRounds).
		Dur("duration", s.maxDuration).Msg("sim-starting")

	done := make(chan struct{})
	reporter := errgroup.Group{}
	if s.report != nil && s.reportInterval > 0 {
		reporter.Go(func() error {
			ticker := time.NewTicker(s.reportInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.report(s.Snapshot())
				case <-done:
					return nil
				}
			}
		})
	}

	tstart := time.Now()
	g := errgroup.Group{}
	for t := 0; t < s.threads; t++ {
		g.Go(func() error {
			defer func() {
				logger.Debug().Msgf("Thread %v exiting sim", t)
			}()
			err := s.worker(ctx, t)
			if err != nil {
				logger.Err(err).Msg("error playing round; canceling")
				cancel()
			}
			return err
		})
	}
	err := g.Wait()
	close(done)
	reporter.Wait()

	elapsed := time.Since(tstart)
	snap := s.Snapshot()
	logger.Info().Int64("rounds", snap.Rounds).Int64("hands", snap.Hands).
		Float64("seconds", elapsed.Seconds()).
		Float64("hands-per-sec", float64(snap.Hands)/elapsed.Seconds()).Msg("sim-ended")
	if s.report != nil {
		s.report(snap)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug().AnErr("err", err).Msg("sim-it's ok, not an error")
		return nil
	}
	return err
}

func (s *Simulator) newShoe(thread int) *deck.Shoe {
	if !s.seeded {
		return deck.NewShoe(s.rules.Decks)
	}
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], s.seed)
	binary.LittleEndian.PutUint64(seed[8:16], uint64(thread))
	return deck.NewSeededShoe(s.rules.Decks, seed)
}

func (s *Simulator) worker(ctx context.Context, thread int) error {
	shoe := s.newShoe(thread)
	p := &stats.Partial{Gains: make([]float64, 0, 256)}
	defer s.agg.Merge(p)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if s.maxRounds > 0 && s.started.Add(1) > s.maxRounds {
			return nil
		}
		if err := s.step(ctx, shoe, p); err != nil {
			return fmt.Errorf("thread %d: %w", thread, err)
		}
	}
}

// step plays one round from shoe, reshuffling first when the cut card is
// out. p is merged into the aggregate at every reshuffle and after every
// mergeEvery rounds.
func (s *Simulator) step(ctx context.Context, shoe *deck.Shoe, p *stats.Partial) error {
	if s.rules.NeedsReshuffle(shoe.Remaining().Total()) {
		s.agg.Merge(p)
		s.agg.AddShoe()
		shoe.Reset()
	}
	if err := s.PlayRound(ctx, shoe, p); err != nil {
		return err
	}
	if p.Rounds >= s.mergeEvery {
		s.agg.Merge(p)
	}
	return nil
}

package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/config"
	"github.com/domino14/bjsim/report"
	"github.com/domino14/bjsim/sim"
	"github.com/domino14/bjsim/stats"
)

func (sc *ShellController) sim(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) > 0 {
		return sc.simControlArguments(ctx, cmd.args)
	}
	if sc.simming() {
		return nil, errors.New("simming already, please do a `sim stop` first")
	}
	s, err := sc.newSimulator(cmd)
	if err != nil {
		return nil, err
	}
	if sc.batch {
		return sc.runSim(ctx, s)
	}
	sc.startSim(s)
	return msg("Simulation started. Please do `sim show` to see more info"), nil
}

func (sc *ShellController) newSimulator(cmd *shellcmd) (*sim.Simulator, error) {
	cfg := sc.config
	method, err := sim.ParseMethod(cfg.GetString(config.ConfigMethod))
	if err != nil {
		return nil, err
	}
	threads := cfg.GetInt(config.ConfigThreads)
	rounds := cfg.GetInt64(config.ConfigRounds)
	duration := cfg.GetDuration(config.ConfigDuration)
	seed := cfg.GetUint64(config.ConfigSeed)

	for opt, val := range cmd.options {
		switch opt {
		case "method":
			method, err = sim.ParseMethod(val)
		case "threads":
			threads, err = strconv.Atoi(val)
		case "rounds":
			rounds, err = strconv.ParseInt(val, 10, 64)
		case "duration":
			duration, err = time.ParseDuration(val)
		case "seed":
			seed, err = strconv.ParseUint(val, 10, 64)
		default:
			return nil, errors.New("option " + opt + " not recognized")
		}
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", opt, err)
		}
	}

	log.Debug().Str("method", method.String()).Int("threads", threads).
		Int64("rounds", rounds).Dur("duration", duration).Msg("will start sim")

	opts := []sim.Option{
		sim.WithMethod(method),
		sim.WithThreads(threads),
		sim.WithRounds(rounds),
		sim.WithDuration(duration),
		sim.WithDeviationThreshold(cfg.GetFloat64(config.ConfigDeviationThresh)),
		sim.WithReporter(time.Duration(cfg.GetInt(config.ConfigReportInterval))*time.Second,
			sc.onReport),
	}
	if seed != 0 {
		opts = append(opts, sim.WithSeed(seed))
	}
	if sc.db != nil {
		opts = append(opts, sim.WithDeviationSink(sc.db))
	}
	return sim.NewSimulator(sc.rules, sc.chart, sc.calc, stats.NewAggregate(), opts...)
}

// onReport is called by a running simulation every report interval.
func (sc *ShellController) onReport(snap stats.Snapshot) {
	log.Info().Int64("rounds", snap.Rounds).Float64("edge", snap.Edge()).
		Float64("gain-per-round", snap.GainPerRound()).Int64("deviations", snap.Deviations).
		Float64("hands-per-sec", snap.HandsPerSecond()).Msg("sim-progress")
	if sc.pub != nil {
		sc.pub.Reporter()(snap)
	}
	if sc.db != nil {
		if err := sc.db.RecordSnapshot(context.Background(), snap); err != nil {
			log.Err(err).Msg("record-snapshot")
		}
	}
}

// simming is true from the start of a simulation until its goroutine exits.
func (sc *ShellController) simming() bool {
	sc.simMu.Lock()
	done := sc.simDone
	sc.simMu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (sc *ShellController) setSim(s *sim.Simulator, cancel context.CancelFunc) chan struct{} {
	sc.simMu.Lock()
	defer sc.simMu.Unlock()
	sc.simmer = s
	sc.simCancel = cancel
	sc.simDone = make(chan struct{})
	return sc.simDone
}

// runSim runs s to completion and returns the final report.
func (sc *ShellController) runSim(ctx context.Context, s *sim.Simulator) (*Response, error) {
	ctx, cancel := context.WithCancel(log.Logger.WithContext(ctx))
	defer cancel()
	done := sc.setSim(s, cancel)
	defer close(done)
	if err := s.Run(ctx); err != nil {
		return nil, err
	}
	return msg(report.Render(s.Snapshot(), s.MemoStats()...)), nil
}

func (sc *ShellController) startSim(s *sim.Simulator) {
	ctx, cancel := context.WithCancel(log.Logger.WithContext(context.Background()))
	done := sc.setSim(s, cancel)

	go func() {
		defer close(done)
		if err := s.Run(ctx); err != nil {
			sc.showError(err)
		}
		log.Debug().Msg("simulation thread exiting...")
	}()
}

// stopSim cancels a running simulation and waits for it to finish.
func (sc *ShellController) stopSim() bool {
	sc.simMu.Lock()
	cancel, done := sc.simCancel, sc.simDone
	sc.simMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (sc *ShellController) currentSim() (*sim.Simulator, error) {
	sc.simMu.Lock()
	defer sc.simMu.Unlock()
	if sc.simmer == nil {
		return nil, errNoSim
	}
	return sc.simmer, nil
}

func (sc *ShellController) simControlArguments(ctx context.Context, args []string) (*Response, error) {
	switch args[0] {
	case "stop":
		if !sc.simming() {
			return nil, errors.New("no running sim to stop")
		}
		sc.stopSim()
		s, err := sc.currentSim()
		if err != nil {
			return nil, err
		}
		return msg(report.Render(s.Snapshot(), s.MemoStats()...)), nil
	case "show":
		s, err := sc.currentSim()
		if err != nil {
			return nil, err
		}
		return msg(report.Render(s.Snapshot(), s.MemoStats()...)), nil
	case "histogram":
		s, err := sc.currentSim()
		if err != nil {
			return nil, err
		}
		bins := sc.config.GetInt(config.ConfigHistogramBins)
		if len(args) > 1 {
			if bins, err = strconv.Atoi(args[1]); err != nil {
				return nil, err
			}
		}
		out, err := report.Histogram(s.Snapshot().Gains, bins)
		if err != nil {
			return nil, err
		}
		return msg(out), nil
	case "top":
		if sc.db == nil {
			return nil, errors.New("no database configured; set db-path")
		}
		n := 10
		if len(args) > 1 {
			var err error
			if n, err = strconv.Atoi(args[1]); err != nil {
				return nil, err
			}
		}
		recs, err := sc.db.TopDeviations(ctx, n)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		for _, r := range recs {
			fmt.Fprintf(&sb, "%-8s vs %s  %-6s hands=%d  exact %-6s chart %-6s gain %.4f\n",
				r.Hand, r.Upcard, r.Category, r.Hands, r.Exact, r.Reference, r.Gain)
		}
		return msg(sb.String()), nil
	}
	return nil, fmt.Errorf("do not understand sim argument %v", args[0])
}

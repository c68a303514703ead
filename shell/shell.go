package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/domino14/bjsim/config"
	"github.com/domino14/bjsim/exact"
	"github.com/domino14/bjsim/memo"
	"github.com/domino14/bjsim/report"
	"github.com/domino14/bjsim/rules"
	"github.com/domino14/bjsim/sim"
	"github.com/domino14/bjsim/stats"
	"github.com/domino14/bjsim/store"
	"github.com/domino14/bjsim/strategy"
)

var (
	errNoData            = errors.New("no data in command")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
	errNoSim             = errors.New("no simulation has been started; try `sim`")
)

type ShellController struct {
	l        *readline.Instance
	config   *config.Config
	execPath string
	version  string
	out      io.Writer
	// batch commands block until they finish.
	batch bool

	rules rules.RuleSet
	chart *strategy.Chart
	calc  *exact.Calculator
	db    *store.Store
	pub   *report.Publisher

	calcMu sync.Mutex
	calcs  map[int]*exact.Calculator

	simMu     sync.Mutex
	simmer    *sim.Simulator
	simCancel context.CancelFunc
	simDone   chan struct{}
}

type Response struct {
	message string
}

func msg(message string) *Response {
	return &Response{message: message}
}

type shellcmd struct {
	cmd     string
	args    []string
	options map[string]string
}

// extractFields splits a command line into the command, its positional
// arguments and its -option value pairs.
func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := map[string]string{}
	for idx := 1; idx < len(fields); idx++ {
		if strings.HasPrefix(fields[idx], "-") {
			if idx == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			options[fields[idx][1:]] = fields[idx+1]
			idx++
			continue
		}
		args = append(args, fields[idx])
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

func (c *shellcmd) intOption(key string, def int) (int, error) {
	v, ok := c.options[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func NewShellController(cfg *config.Config, execPath, gitVersion string) (*ShellController, error) {
	sc, err := newController(cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	sc.execPath = execPath
	sc.version = gitVersion

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[31mbjsim>\033[0m ",
		HistoryFile:     "/tmp/bjsim_readline.tmp",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",
		AutoComplete:    NewShellCompleter(sc),

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return nil, err
	}
	sc.l = l
	sc.out = l.Stdout()
	return sc, nil
}

// newController sets up everything but the terminal.
func newController(cfg *config.Config, out io.Writer) (*ShellController, error) {
	r, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	sc := &ShellController{config: cfg, out: out, rules: r, calcs: map[int]*exact.Calculator{}}

	sc.chart, err = strategy.CachedChart(cfg)
	if err != nil {
		// exact-only simulations and EV queries still work without a chart.
		log.Warn().Err(err).Str("rules", r.Name).Msg("no-reference-chart")
		sc.chart = nil
	}
	sc.calc, err = exact.NewCalculatorForMemory(r, cfg.GetFloat64(config.ConfigMemoMemoryFrac))
	if err != nil {
		return nil, err
	}
	sc.calcs[r.Decks] = sc.calc

	if path := cfg.GetString(config.ConfigDBPath); path != "" {
		if sc.db, err = store.Open(path); err != nil {
			return nil, err
		}
	}
	if url := cfg.GetString(config.ConfigNatsURL); url != "" {
		if sc.pub, err = report.NewPublisher(url, cfg.GetString(config.ConfigNatsSubject)); err != nil {
			sc.Cleanup()
			return nil, err
		}
	}
	return sc, nil
}

// Store is the deviation store, or nil when no database is configured.
func (sc *ShellController) Store() *store.Store {
	return sc.db
}

func (sc *ShellController) showMessage(msg string) {
	io.WriteString(sc.out, msg)
	io.WriteString(sc.out, "\n")
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// Snapshot is the current simulation's snapshot, or an empty one.
func (sc *ShellController) Snapshot() stats.Snapshot {
	sc.simMu.Lock()
	s := sc.simmer
	sc.simMu.Unlock()
	if s == nil {
		return stats.Snapshot{Rules: sc.rules.Name}
	}
	return s.Snapshot()
}

func (sc *ShellController) MemoStats() []memo.Stats {
	p, d := sc.calc.TableStats()
	return []memo.Stats{p, d}
}

func (sc *ShellController) dispatch(ctx context.Context, cmd *shellcmd) (*Response, error) {
	switch cmd.cmd {
	case "ev":
		return sc.ev(cmd)
	case "insurance":
		return sc.insurance(cmd)
	case "dealer":
		return sc.dealer(cmd)
	case "sim":
		return sc.sim(ctx, cmd)
	case "chart":
		return sc.showChart(cmd)
	case "rules":
		return msg(sc.rules.String()), nil
	case "cache":
		return sc.showCache(cmd)
	case "script":
		return sc.script(ctx, cmd)
	case "help":
		if len(cmd.args) == 0 {
			return msg(usage()), nil
		}
		return msg(usageTopic(cmd.args[0])), nil
	}
	return nil, fmt.Errorf("command %v not found", strconv.Quote(cmd.cmd))
}

// Execute runs one command line to completion, without the interactive
// loop.
func (sc *ShellController) Execute(ctx context.Context, line string) error {
	sc.batch = true
	cmd, err := extractFields(line)
	if err != nil {
		return err
	}
	resp, err := sc.dispatch(ctx, cmd)
	if err != nil {
		return err
	}
	if resp != nil && resp.message != "" {
		sc.showMessage(resp.message)
	}
	return nil
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "exit" || line == "bye" {
			sig <- syscall.SIGINT
			break
		}
		cmd, err := extractFields(line)
		if err == errNoData {
			continue
		} else if err != nil {
			sc.showError(err)
			continue
		}
		resp, err := sc.dispatch(context.Background(), cmd)
		if err != nil {
			sc.showError(err)
			continue
		}
		if resp != nil && resp.message != "" {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msgf("Exiting readline loop...")
}

// Cleanup stops any running simulation and closes the database and NATS
// connections.
func (sc *ShellController) Cleanup() {
	sc.stopSim()
	if sc.pub != nil {
		sc.pub.Close()
	}
	if sc.db != nil {
		if err := sc.db.Close(); err != nil {
			log.Err(err).Msg("close-store")
		}
	}
}

package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/domino14/bjsim/rules"
)

const (
	ConfigRulesPreset       = "rules-preset"
	ConfigRulesFile         = "rules-file"
	ConfigChartPath         = "chart-path"
	ConfigMethod            = "method"
	ConfigThreads           = "threads"
	ConfigRounds            = "rounds"
	ConfigDuration          = "duration"
	ConfigReportInterval    = "report-interval"
	ConfigDeviationThresh   = "deviation-threshold"
	ConfigMemoMemoryFrac    = "memo-memory-fraction"
	ConfigDBPath            = "db-path"
	ConfigNatsURL           = "nats-url"
	ConfigNatsSubject       = "nats-subject"
	ConfigHTTPAddr          = "http-addr"
	ConfigDebug             = "debug"
	ConfigCPUProfile        = "cpu-profile"
	ConfigMemProfile        = "mem-profile"
	ConfigBatch             = "batch"
	ConfigDataPath          = "data-path"
	ConfigHistogramBins     = "histogram-bins"
	ConfigSeed              = "seed"
	ConfigEnvPrefix         = "bjsim"
	DefaultDeviationThresh  = 0.35
	DefaultMemoMemoryFrac   = 0.25
	DefaultReportIntervalSc = 10
)

var Methods = []string{"exact", "reference", "compare"}

// Config wraps a viper instance so callers can use GetString and friends
// directly. Flags, environment variables (BJSIM_*) and defaults are merged
// in that order of precedence.
type Config struct {
	viper.Viper
	args []string
}

func DefaultConfig() *Config {
	c := &Config{Viper: *viper.New()}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	c.SetDefault(ConfigRulesPreset, rules.DefaultPreset)
	c.SetDefault(ConfigMethod, "compare")
	c.SetDefault(ConfigThreads, runtime.NumCPU())
	c.SetDefault(ConfigReportInterval, DefaultReportIntervalSc)
	c.SetDefault(ConfigDeviationThresh, DefaultDeviationThresh)
	c.SetDefault(ConfigMemoMemoryFrac, DefaultMemoMemoryFrac)
	c.SetDefault(ConfigNatsSubject, "bjsim.report")
	c.SetDefault(ConfigDataPath, "./data")
	c.SetDefault(ConfigHistogramBins, 15)
}

// Load parses command-line args and the environment.
func (c *Config) Load(args []string) error {
	c.Viper = *viper.New()
	c.setDefaults()

	fs := pflag.NewFlagSet("bjsim", pflag.ContinueOnError)
	fs.String(ConfigRulesPreset, rules.DefaultPreset, fmt.Sprintf("rules preset, one of %v", rules.PresetNames()))
	fs.String(ConfigRulesFile, "", "YAML rules file; overrides the preset")
	fs.String(ConfigChartPath, "", "reference strategy chart (CSV); the builtin chart for the rules is used if empty")
	fs.String(ConfigMethod, "compare", fmt.Sprintf("decision method, one of %v", Methods))
	fs.Int(ConfigThreads, runtime.NumCPU(), "number of simulation workers")
	fs.Int64(ConfigRounds, 0, "stop after this many rounds (0 for no limit)")
	fs.Duration(ConfigDuration, 0, "stop after this long (0 for no limit)")
	fs.Int(ConfigReportInterval, DefaultReportIntervalSc, "seconds between progress reports")
	fs.Float64(ConfigDeviationThresh, DefaultDeviationThresh, "EV gain above which a deviation is recorded")
	fs.Float64(ConfigMemoMemoryFrac, DefaultMemoMemoryFrac, "fraction of system memory for the EV tables")
	fs.String(ConfigDBPath, "", "sqlite database for deviations and report snapshots")
	fs.String(ConfigNatsURL, "", "publish reports to this NATS server")
	fs.String(ConfigNatsSubject, "bjsim.report", "NATS subject for reports")
	fs.String(ConfigHTTPAddr, "", "serve live reports on this address")
	fs.Bool(ConfigDebug, false, "debug logging on")
	fs.String(ConfigCPUProfile, "", "file to write a CPU profile to")
	fs.String(ConfigMemProfile, "", "file to write a memory profile to")
	fs.Bool(ConfigBatch, false, "run one simulation with these settings and exit")
	fs.String(ConfigDataPath, "./data", "directory holding rules and chart files")
	fs.Int(ConfigHistogramBins, 15, "bins in the EV gain histogram")
	fs.Uint64(ConfigSeed, 0, "seed for the shoes (0 for a random seed)")

	// flags end at the first positional argument, which starts a command.
	fs.SetInterspersed(false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c.args = fs.Args()
	if err := c.BindPFlags(fs); err != nil {
		return err
	}
	c.SetEnvPrefix(ConfigEnvPrefix)
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()
	return c.Validate()
}

// Args are the positional arguments left after flag parsing; a command
// line to run in place of the interactive shell.
func (c *Config) Args() []string {
	return c.args
}

// Validate fails on settings that cannot be fixed later.
func (c *Config) Validate() error {
	m := c.GetString(ConfigMethod)
	found := false
	for _, known := range Methods {
		if m == known {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("unknown method %q (have %v)", m, Methods)
	}
	if c.GetInt(ConfigThreads) < 1 {
		return fmt.Errorf("threads must be at least 1")
	}
	return nil
}

// Rules resolves the configured rule set.
func (c *Config) Rules() (rules.RuleSet, error) {
	if f := c.GetString(ConfigRulesFile); f != "" {
		return rules.Load(f)
	}
	r, err := rules.Preset(c.GetString(ConfigRulesPreset))
	if err != nil {
		return rules.RuleSet{}, err
	}
	return r, r.Validate()
}

// AdjustRelativePaths resolves relative file settings against basepath, the
// directory of the executable.
func (c *Config) AdjustRelativePaths(basepath string) {
	for _, key := range []string{ConfigDataPath, ConfigRulesFile, ConfigChartPath} {
		p := c.GetString(key)
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		if key != ConfigDataPath {
			// plain file names are looked up in the data directory.
			if !strings.ContainsRune(p, filepath.Separator) {
				c.Set(key, filepath.Join(c.GetString(ConfigDataPath), p))
			}
			continue
		}
		c.Set(key, filepath.Join(basepath, p))
	}
}

// SanitizedSettings is AllSettings for logging.
func (c *Config) SanitizedSettings() map[string]any {
	s := c.AllSettings()
	if u, ok := s[ConfigNatsURL].(string); ok && strings.Contains(u, "@") {
		s[ConfigNatsURL] = "<redacted>"
	}
	return s
}

package strategy

import (
	"errors"
	"strings"

	"github.com/domino14/bjsim/cache"
	"github.com/domino14/bjsim/config"
)

// ChartCacheKey names the chart for the configured rules. A key looks like
// chart:<rules name>:<path>, with an empty path for the builtin chart.
func ChartCacheKey(cfg *config.Config) (string, error) {
	r, err := cfg.Rules()
	if err != nil {
		return "", err
	}
	return "chart:" + r.Name + ":" + cfg.GetString(config.ConfigChartPath), nil
}

func ChartCacheLoadFunc(cfg *config.Config, key string) (any, error) {
	fields := strings.SplitN(key, ":", 3)
	if fields[0] != "chart" {
		return nil, errors.New("chartcacheloadfunc - bad cache key: " + key)
	}
	if len(fields) != 3 {
		return nil, errors.New("cache key missing fields")
	}
	r, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	if fields[2] == "" {
		return ForRules(r)
	}
	return Load(fields[2], r)
}

// CachedChart returns the configured chart, loading it on first use.
func CachedChart(cfg *config.Config) (*Chart, error) {
	key, err := ChartCacheKey(cfg)
	if err != nil {
		return nil, err
	}
	obj, err := cache.Load(cfg, key, ChartCacheLoadFunc)
	if err != nil {
		return nil, err
	}
	return obj.(*Chart), nil
}

package strategyconfig

import (
	"context"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/signals"
	"github.com/wonny/eodsignals/pkg/config"
)

// StrategyConfig is the resolved parameter set of one eod_signals run
type StrategyConfig struct {
	ConfigID     string  `yaml:"config_id" json:"config_id"`
	XPct         float64 `yaml:"x_pct" json:"x_pct"`
	TargetPct    float64 `yaml:"target_pct" json:"target_pct"`
	StopPct      float64 `yaml:"stop_pct" json:"stop_pct"`
	AllowSell    bool    `yaml:"allow_sell" json:"allow_sell"`
	HorizonDays  int     `yaml:"horizon_days" json:"horizon_days"`
	MaxSignals   int     `yaml:"max_signals" json:"max_signals"`
	RankingKey   string  `yaml:"ranking_key" json:"ranking_key"`
	ModelVersion string  `yaml:"model_version" json:"model_version"`

	// Version is stamped on every signal row as config_version
	Version string `yaml:"-" json:"config_version"`
	// Source is env, file or table
	Source string `yaml:"-" json:"source"`
}

// Sources
const (
	SourceEnv   = "env"
	SourceFile  = "file"
	SourceTable = "table"
)

// Row is one strategy_params record; nil columns fall back to env defaults
type Row struct {
	ConfigID    string
	XPct        *float64
	TargetPct   *float64
	StopPct     *float64
	AllowSell   *bool
	HorizonDays *int
	MaxSignals  *int
	UpdatedAt   *time.Time
}

// Store reads the strategy_params table
type Store interface {
	// LatestStrategyConfig returns the newest row for configID, nil when none exists
	LatestStrategyConfig(ctx context.Context, configID string) (*Row, error)
}

// Defaults builds the env-only configuration
func Defaults(sc config.SignalConfig) StrategyConfig {
	version := sc.StrategyVersion
	if version == "" {
		version = "env-default"
	}
	return StrategyConfig{
		ConfigID:     sc.StrategyID,
		XPct:         sc.XPct,
		TargetPct:    sc.TargetPct,
		StopPct:      sc.StopPct,
		AllowSell:    sc.AllowSell,
		HorizonDays:  sc.HorizonDays,
		MaxSignals:   LimitSignals(sc.MaxSignals),
		RankingKey:   sc.RankingKey,
		ModelVersion: contracts.DefaultModelVersion,
		Version:      version,
		Source:       SourceEnv,
	}
}

// LimitSignals clamps a configured count to [1, MaxSignalsPerDay]
func LimitSignals(n int) int {
	if n < 1 {
		n = 1
	}
	if n > contracts.MaxSignalsPerDay {
		n = contracts.MaxSignalsPerDay
	}
	return n
}

// FromRow overlays a table row on top of base.
// Zero or missing numeric columns keep the base value.
func FromRow(row Row, base StrategyConfig) StrategyConfig {
	cfg := base
	cfg.Source = SourceTable
	if row.ConfigID != "" {
		cfg.ConfigID = row.ConfigID
	}
	if row.XPct != nil && *row.XPct != 0 {
		cfg.XPct = *row.XPct
	}
	if row.TargetPct != nil && *row.TargetPct != 0 {
		cfg.TargetPct = *row.TargetPct
	}
	if row.StopPct != nil && *row.StopPct != 0 {
		cfg.StopPct = *row.StopPct
	}
	if row.AllowSell != nil {
		cfg.AllowSell = *row.AllowSell
	}
	if row.HorizonDays != nil && *row.HorizonDays != 0 {
		cfg.HorizonDays = *row.HorizonDays
	}
	if row.MaxSignals != nil {
		cfg.MaxSignals = LimitSignals(*row.MaxSignals)
	}

	if row.UpdatedAt != nil {
		cfg.Version = cfg.ConfigID + ":" + row.UpdatedAt.UTC().Format(time.RFC3339)
	} else {
		cfg.Version = cfg.ConfigID
	}
	return cfg
}

// SignalConfig converts to the generator's parameter struct
func (c StrategyConfig) SignalConfig() signals.Config {
	return signals.Config{
		XPct:         c.XPct,
		TargetPct:    c.TargetPct,
		StopPct:      c.StopPct,
		AllowSell:    c.AllowSell,
		HorizonDays:  c.HorizonDays,
		MaxSignals:   c.MaxSignals,
		RankingKey:   c.RankingKey,
		ModelVersion: c.ModelVersion,
	}
}

package signals

import (
	"github.com/wonny/eodsignals/internal/contracts"
)

// Config holds the strategy parameters consumed by the generator
type Config struct {
	XPct         float64 `json:"x_pct"`      // entry offset from close
	TargetPct    float64 `json:"target_pct"` // take-profit distance
	StopPct      float64 `json:"stop_pct"`   // stop-loss distance
	AllowSell    bool    `json:"allow_sell"`
	HorizonDays  int     `json:"horizon_days"`
	MaxSignals   int     `json:"max_signals"`
	RankingKey   string  `json:"ranking_key"`
	ModelVersion string  `json:"model_version"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		XPct:         0.02,
		TargetPct:    0.07,
		StopPct:      0.07,
		AllowSell:    true,
		HorizonDays:  contracts.DefaultHorizonDays,
		MaxSignals:   contracts.MaxSignalsPerDay,
		RankingKey:   contracts.DefaultRankingKey,
		ModelVersion: contracts.DefaultModelVersion,
	}
}

// Validate rejects parameters that would produce nonsensical levels
func (c Config) Validate() error {
	switch {
	case c.XPct < 0:
		return &contracts.ConfigError{Field: "x_pct", Message: "must be >= 0"}
	case c.TargetPct <= 0:
		return &contracts.ConfigError{Field: "target_pct", Message: "must be > 0"}
	case c.StopPct <= 0:
		return &contracts.ConfigError{Field: "stop_pct", Message: "must be > 0"}
	case c.HorizonDays <= 0:
		return &contracts.ConfigError{Field: "horizon_days", Message: "must be > 0"}
	}
	return nil
}

// Limit is MaxSignals clamped to [0, MaxSignalsPerDay]
func (c Config) Limit() int {
	limit := c.MaxSignals
	if limit < 0 {
		limit = 0
	}
	if limit > contracts.MaxSignalsPerDay {
		limit = contracts.MaxSignalsPerDay
	}
	return limit
}

func (c Config) withDefaults() Config {
	if c.RankingKey == "" {
		c.RankingKey = contracts.DefaultRankingKey
	}
	if c.ModelVersion == "" {
		c.ModelVersion = contracts.DefaultModelVersion
	}
	return c
}

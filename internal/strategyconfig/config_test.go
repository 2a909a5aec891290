package strategyconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/logger"
)

func envDefaults() StrategyConfig {
	return Defaults(config.SignalConfig{
		XPct:            0.02,
		TargetPct:       0.07,
		StopPct:         0.07,
		AllowSell:       true,
		HorizonDays:     10,
		MaxSignals:      5,
		RankingKey:      "score_v1",
		StrategyID:      "signals_v1",
		StrategyVersion: "env-default",
	})
}

type fakeStore struct {
	row *Row
	err error
}

func (f fakeStore) LatestStrategyConfig(ctx context.Context, configID string) (*Row, error) {
	return f.row, f.err
}

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	cfg := envDefaults()

	assert.Equal(t, "env-default", cfg.Version)
	assert.Equal(t, SourceEnv, cfg.Source)
	assert.Equal(t, "signals_v1", cfg.ModelVersion)
	require.NoError(t, Validate(&cfg))

	sc := cfg.SignalConfig()
	assert.Equal(t, 0.02, sc.XPct)
	assert.Equal(t, 10, sc.HorizonDays)
	assert.True(t, sc.AllowSell)
}

func TestLimitSignals(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-3, 1},
		{0, 1},
		{3, 3},
		{5, 5},
		{50, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LimitSignals(tt.in), "in=%d", tt.in)
	}
}

func TestFromRow(t *testing.T) {
	updated := time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC)
	row := Row{
		ConfigID:    "signals_v1",
		XPct:        ptr(0.03),
		TargetPct:   ptr(0.0), // zero keeps the default
		AllowSell:   ptr(false),
		HorizonDays: ptr(15),
		MaxSignals:  ptr(9),
		UpdatedAt:   &updated,
	}

	cfg := FromRow(row, envDefaults())

	assert.Equal(t, 0.03, cfg.XPct)
	assert.Equal(t, 0.07, cfg.TargetPct)
	assert.Equal(t, 0.07, cfg.StopPct)
	assert.False(t, cfg.AllowSell)
	assert.Equal(t, 15, cfg.HorizonDays)
	assert.Equal(t, 5, cfg.MaxSignals)
	assert.Equal(t, "signals_v1:2024-05-02T12:30:00Z", cfg.Version)
	assert.Equal(t, SourceTable, cfg.Source)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StrategyConfig)
		field  string
	}{
		{"missing id", func(c *StrategyConfig) { c.ConfigID = "" }, "config_id"},
		{"negative x", func(c *StrategyConfig) { c.XPct = -0.01 }, "x_pct"},
		{"zero target", func(c *StrategyConfig) { c.TargetPct = 0 }, "target_pct"},
		{"stop >= 1", func(c *StrategyConfig) { c.StopPct = 1.5 }, "stop_pct"},
		{"zero horizon", func(c *StrategyConfig) { c.HorizonDays = 0 }, "horizon_days"},
		{"zero max", func(c *StrategyConfig) { c.MaxSignals = 0 }, "max_signals"},
		{"blank ranking", func(c *StrategyConfig) { c.RankingKey = "" }, "ranking_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := envDefaults()
			tt.mutate(&cfg)

			err := Validate(&cfg)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	t.Run("zero x is allowed", func(t *testing.T) {
		cfg := envDefaults()
		cfg.XPct = 0
		assert.NoError(t, Validate(&cfg))
	})
}

func TestDecode(t *testing.T) {
	doc := []byte("config_id: swing_v2\nx_pct: 0.01\nhorizon_days: 5\n")

	cfg, err := Decode(doc, envDefaults())
	require.NoError(t, err)

	assert.Equal(t, "swing_v2", cfg.ConfigID)
	assert.Equal(t, 0.01, cfg.XPct)
	assert.Equal(t, 5, cfg.HorizonDays)
	assert.Equal(t, 0.07, cfg.TargetPct, "absent fields keep the base value")
	assert.Equal(t, SourceFile, cfg.Source)
	assert.Regexp(t, `^swing_v2:[0-9a-f]{12}$`, cfg.Version)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode([]byte("x_pct: 0.01\ntarget_pc: 0.05\n"), envDefaults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_pc")
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("stop_pct: 0\n"), envDefaults())
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "stop_pct", ve.Field)
}

func TestHash(t *testing.T) {
	a := envDefaults()
	b := envDefaults()
	b.Version = "other"
	b.Source = SourceTable

	ha, err := Hash(&a)
	require.NoError(t, err)
	hb, err := Hash(&b)
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb, "version and source are not part of the hash")

	b.XPct = 0.03
	hc, _ := Hash(&b)
	assert.NotEqual(t, ha, hc)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()
	base := envDefaults()
	updated := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	t.Run("no store", func(t *testing.T) {
		cfg, err := Resolve(ctx, "", nil, base, log)
		require.NoError(t, err)
		assert.Equal(t, base, cfg)
	})

	t.Run("table row", func(t *testing.T) {
		store := fakeStore{row: &Row{ConfigID: "signals_v1", StopPct: ptr(0.05), UpdatedAt: &updated}}
		cfg, err := Resolve(ctx, "", store, base, log)
		require.NoError(t, err)
		assert.Equal(t, 0.05, cfg.StopPct)
		assert.Equal(t, SourceTable, cfg.Source)
	})

	t.Run("store error falls back", func(t *testing.T) {
		cfg, err := Resolve(ctx, "", fakeStore{err: errors.New("connection refused")}, base, log)
		require.NoError(t, err)
		assert.Equal(t, base, cfg)
	})

	t.Run("missing row falls back", func(t *testing.T) {
		cfg, err := Resolve(ctx, "", fakeStore{}, base, log)
		require.NoError(t, err)
		assert.Equal(t, SourceEnv, cfg.Source)
	})

	t.Run("invalid row aborts", func(t *testing.T) {
		store := fakeStore{row: &Row{ConfigID: "signals_v1", XPct: ptr(-1.0)}}
		_, err := Resolve(ctx, "", store, base, log)
		require.Error(t, err)
		assert.True(t, contracts.IsConfigError(err))

		var ce *contracts.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "x_pct", ce.Field)
	})

	t.Run("file wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("target_pct: 0.1\n"), 0o600))

		cfg, err := Resolve(ctx, path, fakeStore{row: &Row{ConfigID: "x"}}, base, log)
		require.NoError(t, err)
		assert.Equal(t, 0.1, cfg.TargetPct)
		assert.Equal(t, SourceFile, cfg.Source)
	})

	t.Run("broken file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bogus: 1\n"), 0o600))

		_, err := Resolve(ctx, path, nil, base, log)
		assert.Error(t, err)
	})

	t.Run("invalid file is a config error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("stop_pct: 0\n"), 0o600))

		_, err := Resolve(ctx, path, nil, base, log)
		assert.True(t, contracts.IsConfigError(err))
	})
}

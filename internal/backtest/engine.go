package backtest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// Engine runs the simulator over a batch of signals
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	policy SameBarPolicy
	logger *logger.Logger
}

// Summary counts trades per exit reason
type Summary struct {
	Signals  int                          `json:"signals"`
	Fills    int                          `json:"fills"`
	ByReason map[contracts.ExitReason]int `json:"by_reason"`
	Duration time.Duration                `json:"duration"`
}

// NewEngine creates a new backtest engine
func NewEngine(policy SameBarPolicy, logger *logger.Logger) *Engine {
	return &Engine{
		policy: policy,
		logger: logger,
	}
}

// Policy returns the same-bar policy in use
func (e *Engine) Policy() SameBarPolicy {
	return e.policy
}

// Run simulates every signal sequentially; output order matches input order
func (e *Engine) Run(signals []contracts.SignalPayload, lookup CandleLookup) []contracts.BacktestTrade {
	start := time.Now()
	trades := make([]contracts.BacktestTrade, len(signals))
	for i, s := range signals {
		trades[i] = Simulate(s, lookup, e.policy)
	}
	e.logSummary(Summarize(trades, time.Since(start)))
	return trades
}

// RunParallel simulates signals on up to workers goroutines; output order matches input order
func (e *Engine) RunParallel(ctx context.Context, signals []contracts.SignalPayload, lookup CandleLookup, workers int) ([]contracts.BacktestTrade, error) {
	if workers <= 1 {
		return e.Run(signals, lookup), nil
	}

	start := time.Now()
	trades := make([]contracts.BacktestTrade, len(signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range signals {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trades[i] = Simulate(signals[i], lookup, e.policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backtest cancelled: %w", err)
	}

	e.logSummary(Summarize(trades, time.Since(start)))
	return trades, nil
}

// ParsePayloads converts stored signal rows, skipping and logging malformed ones
func (e *Engine) ParsePayloads(records []contracts.Record) ([]contracts.SignalPayload, int, error) {
	payloads, rejected, err := contracts.ParseSignalPayloads(records)
	for _, r := range rejected {
		e.logger.WithError(r).Warn("Skipping malformed signal record")
	}
	if err != nil {
		return nil, len(rejected), err
	}
	return payloads, len(rejected), nil
}

// Summarize counts trades per exit reason
func Summarize(trades []contracts.BacktestTrade, took time.Duration) Summary {
	s := Summary{
		Signals:  len(trades),
		ByReason: make(map[contracts.ExitReason]int, len(contracts.AllExitReasons())),
		Duration: took,
	}
	for _, t := range trades {
		s.ByReason[t.ExitReason]++
		if t.EntryHit {
			s.Fills++
		}
	}
	return s
}

func (e *Engine) logSummary(s Summary) {
	fields := map[string]interface{}{
		"signals":  s.Signals,
		"fills":    s.Fills,
		"policy":   e.policy.String(),
		"duration": s.Duration.String(),
	}
	for reason, n := range s.ByReason {
		fields[string(reason)] = n
	}
	e.logger.WithFields(fields).Info("Backtest completed")
}

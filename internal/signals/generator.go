package signals

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/eodsignals/internal/calendar"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// Candidate is one scored (ticker, side) before selection
type Candidate struct {
	Ticker    string         `json:"ticker"`
	Side      contracts.Side `json:"side"`
	Entry     float64        `json:"entry"`
	Target    float64        `json:"target"`
	Stop      float64        `json:"stop"`
	XRule     string         `json:"x_rule"`
	Score     float64        `json:"score"`
	Priority  int            `json:"priority"` // 0 = bar's preferred side
	Liquidity float64        `json:"volume"`
	Close     float64        `json:"close"`
}

// Result is the output of one generator run
type Result struct {
	DateRef        time.Time                     `json:"date_ref"`
	ValidFor       time.Time                     `json:"valid_for"`
	Signals        []contracts.ConditionalSignal `json:"signals"`
	Candidates     []Candidate                   `json:"candidates"`
	Dropped        int                           `json:"dropped"`    // blank ticker or non-finite close
	Duplicates     int                           `json:"duplicates"` // repeated tickers, first kept
	SourceSnapshot string                        `json:"source_snapshot"`
}

// Generator ranks next-session conditional entries from one session of bars
// ⭐ SSOT: 조건부 시그널 생성 로직은 여기서만
type Generator struct {
	cal    *calendar.Calendar
	logger *logger.Logger
}

// NewGenerator creates a generator bound to an exchange calendar
func NewGenerator(cal *calendar.Calendar, log *logger.Logger) *Generator {
	return &Generator{
		cal:    cal,
		logger: log,
	}
}

// Generate builds at most cfg.Limit() signals for the session after dateRef.
// metrics may be nil; it is the latest snapshot of the metrics aggregator.
func (g *Generator) Generate(dateRef time.Time, bars []contracts.DailyBar, cfg Config, metrics []contracts.MetricRow) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	cfg = cfg.withDefaults()

	dateRef = contracts.Day(dateRef)
	validFor, err := g.cal.Next(dateRef)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve valid_for: %w", err)
	}

	result := Result{
		DateRef:  dateRef,
		ValidFor: validFor,
		Signals:  []contracts.ConditionalSignal{},
	}

	clean, dropped, duplicates := normalizeBars(bars)
	result.Dropped = dropped
	result.Duplicates = duplicates
	result.SourceSnapshot = SourceSnapshot(clean)

	if duplicates > 0 {
		g.logger.WithFields(map[string]interface{}{
			"date_ref":   dateRef.Format(contracts.DateLayout),
			"duplicates": duplicates,
		}).Warn("Duplicate tickers in daily bars, keeping first occurrence")
	}

	limit := cfg.Limit()
	if len(clean) == 0 || limit == 0 {
		return result, nil
	}

	history := NewHistory(metrics, cfg.HorizonDays)
	result.Candidates = buildCandidates(clean, cfg, history)
	sortCandidates(result.Candidates)

	seen := make(map[string]struct{}, limit)
	for _, c := range result.Candidates {
		if len(result.Signals) == limit {
			break
		}
		if _, ok := seen[c.Ticker]; ok {
			continue
		}
		seen[c.Ticker] = struct{}{}

		result.Signals = append(result.Signals, contracts.ConditionalSignal{
			DateRef:      dateRef,
			ValidFor:     validFor,
			Ticker:       c.Ticker,
			Side:         c.Side,
			Entry:        c.Entry,
			Target:       c.Target,
			Stop:         c.Stop,
			Rank:         len(result.Signals) + 1,
			Score:        c.Score,
			RankingKey:   cfg.RankingKey,
			HorizonDays:  cfg.HorizonDays,
			ModelVersion: cfg.ModelVersion,
			XRule:        c.XRule,
			TargetPct:    cfg.TargetPct,
			StopPct:      cfg.StopPct,
			Liquidity:    c.Liquidity,
			Close:        c.Close,
		})
	}

	g.logger.WithFields(map[string]interface{}{
		"date_ref":   dateRef.Format(contracts.DateLayout),
		"valid_for":  validFor.Format(contracts.DateLayout),
		"bars":       len(clean),
		"candidates": len(result.Candidates),
		"signals":    len(result.Signals),
		"history":    history.Len(),
	}).Info("Signals generated")

	return result, nil
}

// normalizeBars uppercases tickers and drops unusable bars
func normalizeBars(bars []contracts.DailyBar) ([]contracts.DailyBar, int, int) {
	clean := make([]contracts.DailyBar, 0, len(bars))
	seen := make(map[string]struct{}, len(bars))
	dropped, duplicates := 0, 0

	for _, bar := range bars {
		bar.Ticker = contracts.NormalizeTicker(bar.Ticker)
		if bar.Ticker == "" || math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
			dropped++
			continue
		}
		if _, dup := seen[bar.Ticker]; dup {
			duplicates++
			continue
		}
		seen[bar.Ticker] = struct{}{}
		clean = append(clean, bar)
	}
	return clean, dropped, duplicates
}

// PreferredSide is SELL after an up session, BUY otherwise
func PreferredSide(bar contracts.DailyBar) contracts.Side {
	if bar.Close > bar.Open {
		return contracts.SideSell
	}
	return contracts.SideBuy
}

// Levels returns entry, target, stop and the entry multiplier for side
func Levels(side contracts.Side, close float64, cfg Config) (entry, target, stop, multiplier float64) {
	if side == contracts.SideSell {
		multiplier = 1 + cfg.XPct
		entry = close * multiplier
		return entry, entry * (1 - cfg.TargetPct), entry * (1 + cfg.StopPct), multiplier
	}
	multiplier = 1 - cfg.XPct
	entry = close * multiplier
	return entry, entry * (1 + cfg.TargetPct), entry * (1 - cfg.StopPct), multiplier
}

func buildCandidates(bars []contracts.DailyBar, cfg Config, history *History) []Candidate {
	sides := []contracts.Side{contracts.SideBuy}
	if cfg.AllowSell {
		sides = append(sides, contracts.SideSell)
	}

	candidates := make([]Candidate, 0, len(bars)*len(sides))
	for _, bar := range bars {
		preferred := PreferredSide(bar)
		for _, side := range sides {
			entry, target, stop, mult := Levels(side, bar.Close, cfg)
			priority := 1
			if side == preferred {
				priority = 0
			}
			candidates = append(candidates, Candidate{
				Ticker:    bar.Ticker,
				Side:      side,
				Entry:     entry,
				Target:    target,
				Stop:      stop,
				XRule:     fmt.Sprintf("close(D)*%.4f", mult),
				Score:     Score(bar, history.Lookup(bar.Ticker, side)),
				Priority:  priority,
				Liquidity: bar.Liquidity(),
				Close:     bar.Close,
			})
		}
	}
	return candidates
}

// sortCandidates orders by (-score, priority, ticker, side); (ticker, side) is unique so the order is total
func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].Priority != c[j].Priority {
			return c[i].Priority < c[j].Priority
		}
		if c[i].Ticker != c[j].Ticker {
			return c[i].Ticker < c[j].Ticker
		}
		return c[i].Side < c[j].Side
	})
}

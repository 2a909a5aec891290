// Package memstore keeps every store interface in process memory.
// Pipeline, quality and API tests run against it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/strategyconfig"
)

// Store implements the candle, signal, trade, metric, holiday, quality and strategy stores
type Store struct {
	mu sync.RWMutex

	bars          []contracts.DailyBar
	activeTickers int
	signals       map[time.Time][]contracts.ConditionalSignal
	meta          map[time.Time]contracts.RunMetadata
	trades        map[time.Time][]contracts.BacktestTrade
	metrics       map[time.Time][]contracts.MetricRow
	holidays      map[time.Time]contracts.Holiday
	checks        map[time.Time][]contracts.CheckResult
	strategies    map[string]strategyconfig.Row

	// Err, when set, is returned by every call
	Err error
}

// New creates an empty store
func New() *Store {
	return &Store{
		signals:    make(map[time.Time][]contracts.ConditionalSignal),
		meta:       make(map[time.Time]contracts.RunMetadata),
		trades:     make(map[time.Time][]contracts.BacktestTrade),
		metrics:    make(map[time.Time][]contracts.MetricRow),
		holidays:   make(map[time.Time]contracts.Holiday),
		checks:     make(map[time.Time][]contracts.CheckResult),
		strategies: make(map[string]strategyconfig.Row),
	}
}

// AddBars appends bars as-is, duplicates included
func (s *Store) AddBars(bars ...contracts.DailyBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = append(s.bars, bars...)
}

// SetActiveTickers sets the universe size reported by CountActiveTickers
func (s *Store) SetActiveTickers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTickers = n
}

// PutStrategy stores a strategy_params row
func (s *Store) PutStrategy(row strategyconfig.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[row.ConfigID] = row
}

// Checks returns the persisted dq results of date
func (s *Store) Checks(date time.Time) []contracts.CheckResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checks[contracts.Day(date)]
}

// Metadata returns the run metadata stored with the signals of dateRef
func (s *Store) Metadata(dateRef time.Time) (contracts.RunMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[contracts.Day(dateRef)]
	return m, ok
}

// --- CandleStore / CandleAuditor ---

func (s *Store) GetDailyBars(ctx context.Context, date time.Time) ([]contracts.DailyBar, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	date = contracts.Day(date)
	out := []contracts.DailyBar{}
	for _, b := range s.bars {
		if b.Date.Equal(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetBarsRange(ctx context.Context, tickers []string, from, to time.Time) ([]contracts.DailyBar, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		wanted[contracts.NormalizeTicker(t)] = struct{}{}
	}
	from, to = contracts.Day(from), contracts.Day(to)

	out := []contracts.DailyBar{}
	for _, b := range s.bars {
		if _, ok := wanted[contracts.NormalizeTicker(b.Ticker)]; !ok {
			continue
		}
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *Store) CountTickers(ctx context.Context, date time.Time) (int, error) {
	bars, err := s.GetDailyBars(ctx, date)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Ticker] = struct{}{}
	}
	return len(seen), nil
}

func (s *Store) CountDuplicates(ctx context.Context, date time.Time) (int, error) {
	bars, err := s.GetDailyBars(ctx, date)
	if err != nil {
		return 0, err
	}
	counts := make(map[string]int)
	for _, b := range bars {
		counts[b.Ticker]++
	}
	dups := 0
	for _, n := range counts {
		if n > 1 {
			dups++
		}
	}
	return dups, nil
}

func (s *Store) CountInvalidOHLC(ctx context.Context, date time.Time) (int, int, error) {
	bars, err := s.GetDailyBars(ctx, date)
	if err != nil {
		return 0, 0, err
	}
	var high, low int
	for _, b := range bars {
		if b.High < max(b.Open, b.Close, b.Low) {
			high++
		}
		if b.Low > min(b.Open, b.Close, b.High) {
			low++
		}
	}
	return high, low, nil
}

func (s *Store) CountActiveTickers(ctx context.Context) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTickers, nil
}

// --- SignalStore / SignalAuditor ---

func (s *Store) ReplaceSignals(ctx context.Context, dateRef time.Time, signals []contracts.ConditionalSignal, meta contracts.RunMetadata) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dateRef = contracts.Day(dateRef)
	s.signals[dateRef] = append([]contracts.ConditionalSignal(nil), signals...)
	s.meta[dateRef] = meta
	return nil
}

func (s *Store) GetSignals(ctx context.Context, dateRef time.Time) ([]contracts.ConditionalSignal, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.ConditionalSignal{}, s.signals[contracts.Day(dateRef)]...), nil
}

func (s *Store) GetSignalRecords(ctx context.Context, dateRef time.Time) ([]contracts.Record, error) {
	signals, err := s.GetSignals(ctx, dateRef)
	if err != nil {
		return nil, err
	}
	records := make([]contracts.Record, 0, len(signals))
	for _, sig := range signals {
		records = append(records, contracts.Record{
			"date_ref":      sig.DateRef,
			"valid_for":     sig.ValidFor,
			"ticker":        sig.Ticker,
			"side":          string(sig.Side),
			"entry":         sig.Entry,
			"target":        sig.Target,
			"stop":          sig.Stop,
			"horizon_days":  sig.HorizonDays,
			"model_version": sig.ModelVersion,
		})
	}
	return records, nil
}

func (s *Store) CountSignalIssues(ctx context.Context, dateRef time.Time) (contracts.SignalIssues, error) {
	signals, err := s.GetSignals(ctx, dateRef)
	if err != nil {
		return contracts.SignalIssues{}, err
	}
	var is contracts.SignalIssues
	is.Total = len(signals)
	for _, sig := range signals {
		switch sig.Side {
		case contracts.SideBuy:
			if sig.Target <= sig.Entry {
				is.InvalidBuy++
			}
			if sig.Stop >= sig.Entry {
				is.InvalidBuyStop++
			}
		case contracts.SideSell:
			if sig.Target >= sig.Entry {
				is.InvalidSell++
			}
			if sig.Stop <= sig.Entry {
				is.InvalidSellStop++
			}
		default:
			is.InvalidSide++
		}
	}
	return is, nil
}

// --- TradeStore ---

func (s *Store) ReplaceTrades(ctx context.Context, dateRef time.Time, trades []contracts.BacktestTrade, createdAt time.Time) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[contracts.Day(dateRef)] = append([]contracts.BacktestTrade(nil), trades...)
	return nil
}

func (s *Store) GetTrades(ctx context.Context, dateRef time.Time) ([]contracts.BacktestTrade, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.BacktestTrade{}, s.trades[contracts.Day(dateRef)]...), nil
}

func (s *Store) GetHistory(ctx context.Context, from, to time.Time) ([]contracts.BacktestTrade, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = contracts.Day(from), contracts.Day(to)
	dates := make([]time.Time, 0, len(s.trades))
	for d := range s.trades {
		if !d.Before(from) && !d.After(to) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := []contracts.BacktestTrade{}
	for _, d := range dates {
		out = append(out, s.trades[d]...)
	}
	return out, nil
}

// --- MetricStore ---

func (s *Store) ReplaceMetrics(ctx context.Context, asOf time.Time, rows []contracts.MetricRow) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[contracts.Day(asOf)] = append([]contracts.MetricRow(nil), rows...)
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context) ([]contracts.MetricRow, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for d, rows := range s.metrics {
		if len(rows) > 0 && d.After(latest) {
			latest = d
		}
	}
	return append([]contracts.MetricRow{}, s.metrics[latest]...), nil
}

func (s *Store) CountMetrics(ctx context.Context, asOf time.Time) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics[contracts.Day(asOf)]), nil
}

// --- HolidayStore ---

func (s *Store) ListHolidays(ctx context.Context, from, to time.Time) ([]contracts.Holiday, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []contracts.Holiday{}
	for d, h := range s.holidays {
		if !from.IsZero() && d.Before(contracts.Day(from)) {
			continue
		}
		if !to.IsZero() && d.After(contracts.Day(to)) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) UpsertHolidays(ctx context.Context, holidays []contracts.Holiday) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range holidays {
		h.Date = contracts.Day(h.Date)
		s.holidays[h.Date] = h
	}
	return nil
}

// --- QualityStore ---

func (s *Store) SaveChecks(ctx context.Context, checkDate time.Time, runID string, results []contracts.CheckResult) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[contracts.Day(checkDate)] = append([]contracts.CheckResult(nil), results...)
	return nil
}

// --- strategyconfig.Store ---

func (s *Store) LatestStrategyConfig(ctx context.Context, configID string) (*strategyconfig.Row, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.strategies[configID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

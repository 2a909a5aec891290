package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/eodsignals/internal/calendar"
	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/internal/data/repos"
	"github.com/wonny/eodsignals/internal/notify"
	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/internal/quality"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/database"
	"github.com/wonny/eodsignals/pkg/httputil"
	"github.com/wonny/eodsignals/pkg/logger"
	"github.com/wonny/eodsignals/pkg/monitoring"
	"github.com/wonny/eodsignals/pkg/redis"
)

// deps holds the wired infrastructure shared by every command
// ⭐ SSOT: 의존성 조립은 여기서만
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	recorder *monitoring.Recorder
	stores   pipeline.Stores
	quality  contracts.QualityStore

	// raw repositories for the dq counts; reads go through stores
	candleRepo *repos.CandleRepository
	signalRepo *repos.SignalRepository
}

// newDeps loads config, connects PostgreSQL (and Redis when enabled) and builds the repositories
func newDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if rootCmd.PersistentFlags().Changed("env") {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		// The cache is optional; fall back to direct reads
		log.WithError(err).Warn("Redis unavailable, read cache disabled")
		rdb = redis.NewFromRDB(nil)
	}

	candleRepo := repos.NewCandleRepository(db, log)
	signalRepo := repos.NewSignalRepository(db)
	candles := repos.NewGuardedCandleStore(
		candleRepo,
		repos.DefaultBreakerSettings(),
		log,
	)
	cache := redis.NewCache(rdb, "eodsignals")
	metricStore := repos.NewCachedMetricStore(repos.NewMetricRepository(db), cache, log)
	signalStore := repos.NewCachedSignalStore(signalRepo, cache, log)

	return &deps{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    rdb,
		recorder: monitoring.New(),
		stores: pipeline.Stores{
			Candles:    candles,
			Signals:    signalStore,
			Trades:     repos.NewTradeRepository(db),
			Metrics:    metricStore,
			Holidays:   repos.NewHolidayRepository(db),
			Strategies: repos.NewStrategyRepository(db),
		},
		quality:    repos.NewQualityRepository(db),
		candleRepo: candleRepo,
		signalRepo: signalRepo,
	}, nil
}

// Close releases the database pool and the redis connection
func (d *deps) Close() {
	if err := d.redis.Close(); err != nil {
		d.log.WithError(err).Warn("Failed to close redis")
	}
	d.db.Close()
}

func (d *deps) signalPipeline(sink logger.RunSink) *pipeline.SignalPipeline {
	return pipeline.NewSignalPipeline(d.stores, d.cfg, d.recorder, d.log, sink)
}

func (d *deps) backtestPipeline(sink logger.RunSink) *pipeline.BacktestPipeline {
	return pipeline.NewBacktestPipeline(d.stores, d.cfg, d.recorder, d.log, sink)
}

// httpClient returns an outbound client sharing the redis sliding-window limiter
func (d *deps) httpClient(key string, limit int, window time.Duration) *httputil.Client {
	limiter := redis.NewRateLimiter(d.redis, "eodsignals")
	return httputil.NewWithTimeout(d.cfg, d.log, 15*time.Second).WithRateLimiter(limiter, redis.RateLimitConfig{
		Key:    key,
		Limit:  limit,
		Window: window,
	})
}

func (d *deps) alerter(sink logger.RunSink) *notify.Alerter {
	telegram := notify.NewTelegram(d.cfg.Telegram, d.httpClient("telegram", 20, time.Minute).WithRetry(2, 2*time.Second), d.log)
	return notify.NewAlerter(d.stores.Signals, telegram, d.recorder, d.log, sink)
}

func (d *deps) holidayScraper() *calendar.HolidayScraper {
	return calendar.NewHolidayScraper(d.httpClient("holidays", 10, time.Minute), d.log, d.cfg.HolidaySourceURL)
}

// checker builds a dq checker on a freshly loaded calendar
func (d *deps) checker(ctx context.Context, sink logger.RunSink) (*quality.Checker, error) {
	cal, err := d.calendar(ctx)
	if err != nil {
		return nil, err
	}
	cfg := quality.Config{
		DailyCoverage:   d.cfg.Quality.DailyCoverage,
		MaxSignals:      d.cfg.Quality.MaxSignals,
		ExpectedTickers: d.cfg.Quality.ExpectedTickers,
	}
	return quality.NewChecker(
		d.candleRepo,
		d.signalRepo,
		d.stores.Metrics,
		d.quality,
		cal,
		cfg,
		d.recorder,
		d.log,
		sink,
	), nil
}

// calendar loads the trading calendar from the holidays table
func (d *deps) calendar(ctx context.Context) (*calendar.Calendar, error) {
	cal, err := calendar.Load(ctx, d.stores.Holidays, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	return cal, nil
}

// parseDateFlag parses an optional YYYY-MM-DD flag value
func parseDateFlag(name, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	day, err := contracts.ParseDay(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q (expected YYYY-MM-DD)", name, value)
	}
	return &day, nil
}

// marketToday returns today's date in the market timezone
func marketToday(cfg *config.Config) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	return contracts.Day(time.Now().In(loc)), nil
}

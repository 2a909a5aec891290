package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Signal generation
	Signal SignalConfig

	// Pipeline scheduling and backtest
	Pipeline PipelineConfig

	// Data quality
	Quality QualityConfig

	// Alerts
	Telegram TelegramConfig

	// Calendar
	HolidaySourceURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// SignalConfig holds the env defaults for strategy parameters
type SignalConfig struct {
	XPct            float64
	TargetPct       float64
	StopPct         float64
	AllowSell       bool
	HorizonDays     int
	MaxSignals      int
	RankingKey      string
	MinVolume       float64
	AllowEarly      bool
	StrategyID      string
	StrategyVersion string
	StrategyFile    string
}

// PipelineConfig holds scheduling and backtest settings
type PipelineConfig struct {
	MarketTimezone  string
	SignalCutoff    string // HH:MM in market time
	LookbackDays    int
	BacktestWorkers int
	CodeVersion     string
}

// QualityConfig holds data-quality thresholds
type QualityConfig struct {
	DailyCoverage   float64
	MaxSignals      int
	ExpectedTickers int // 0 = count active tickers
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	BaseURL  string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "eodsignals"),
			User:            getEnv("DB_USER", "eodsignals"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Signal: SignalConfig{
			XPct:            getEnvAsFloat("SIGNAL_X_PCT", 0.02),
			TargetPct:       getEnvAsFloat("SIGNAL_TARGET_PCT", 0.07),
			StopPct:         getEnvAsFloat("SIGNAL_STOP_PCT", 0.07),
			AllowSell:       getEnvAsBool("ALLOW_SELL_SIGNALS", true),
			HorizonDays:     getEnvAsInt("SIGNAL_HORIZON_DAYS", 10),
			MaxSignals:      getEnvAsInt("MAX_SIGNALS", 5),
			RankingKey:      getEnv("SIGNAL_RANKING_KEY", "score_v1"),
			MinVolume:       getEnvAsFloat("MIN_SIGNAL_VOLUME", 0),
			AllowEarly:      getEnvAsBool("ALLOW_EARLY_SIGNAL", false),
			StrategyID:      getEnv("STRATEGY_CONFIG_ID", "signals_v1"),
			StrategyVersion: getEnv("STRATEGY_CONFIG_VERSION", "env-default"),
			StrategyFile:    getEnv("STRATEGY_CONFIG_FILE", ""),
		},

		Pipeline: PipelineConfig{
			MarketTimezone:  getEnv("MARKET_TIMEZONE", "America/Sao_Paulo"),
			SignalCutoff:    getEnv("SIGNAL_CUTOFF", "18:00"),
			LookbackDays:    getEnvAsInt("BACKTEST_METRICS_LOOKBACK_DAYS", 60),
			BacktestWorkers: getEnvAsInt("BACKTEST_WORKERS", 4),
			CodeVersion:     getEnv("CODE_VERSION", "dev"),
		},

		Quality: QualityConfig{
			DailyCoverage:   getEnvAsFloat("DQ_DAILY_COVERAGE", 0.9),
			MaxSignals:      getEnvAsInt("DQ_MAX_SIGNALS", 5),
			ExpectedTickers: getEnvAsInt("DQ_EXPECTED_TICKERS", 0),
		},

		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			Enabled:  getEnvAsBool("TELEGRAM_ENABLED", false),
			BaseURL:  getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		},

		HolidaySourceURL: getEnv("HOLIDAY_SOURCE_URL", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("MARKET_TIMEZONE: %w", err)
	}

	if _, _, err := c.Cutoff(); err != nil {
		return fmt.Errorf("SIGNAL_CUTOFF: %w", err)
	}

	return nil
}

// Location returns the market time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Pipeline.MarketTimezone)
}

// Cutoff returns the signal cutoff as hour and minute
func (c *Config) Cutoff() (int, int, error) {
	parts := strings.Split(c.Pipeline.SignalCutoff, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", c.Pipeline.SignalCutoff)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", c.Pipeline.SignalCutoff)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", c.Pipeline.SignalCutoff)
	}
	return hour, minute, nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

package strategyconfig

import (
	"fmt"
	"math"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *StrategyConfig) error {
	if cfg.ConfigID == "" {
		return ValidationError{"config_id", "required"}
	}

	// === Levels ===
	if err := validatePct(cfg.XPct, "x_pct", true); err != nil {
		return err
	}
	if err := validatePct(cfg.TargetPct, "target_pct", false); err != nil {
		return err
	}
	if err := validatePct(cfg.StopPct, "stop_pct", false); err != nil {
		return err
	}

	// === Horizon / limit ===
	if cfg.HorizonDays <= 0 {
		return ValidationError{"horizon_days", fmt.Sprintf("must be > 0, got %d", cfg.HorizonDays)}
	}
	if cfg.MaxSignals < 1 {
		return ValidationError{"max_signals", fmt.Sprintf("must be >= 1, got %d", cfg.MaxSignals)}
	}

	if cfg.RankingKey == "" {
		return ValidationError{"ranking_key", "required"}
	}
	if cfg.ModelVersion == "" {
		return ValidationError{"model_version", "required"}
	}

	return nil
}

// validatePct 퍼센트 범위 검증 (0~1)
func validatePct(value float64, field string, allowZero bool) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ValidationError{field, "must be a finite number"}
	}
	if value < 0 || value >= 1 {
		return ValidationError{field, fmt.Sprintf("must be in [0, 1), got %.4f", value)}
	}
	if !allowZero && value == 0 {
		return ValidationError{field, "must be > 0"}
	}
	return nil
}

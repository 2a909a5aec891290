package strategyconfig

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/logger"
)

// Load reads a YAML file on top of base and validates the result
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string, base StrategyConfig) (*StrategyConfig, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Decode(data, base)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Decode parses YAML bytes; fields absent from the document keep the base value
func Decode(data []byte, base StrategyConfig) (*StrategyConfig, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode strategy yaml: %w", err)
	}
	cfg.MaxSignals = LimitSignals(cfg.MaxSignals)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	hash, err := Hash(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.Source = SourceFile
	cfg.Version = cfg.ConfigID + ":" + hash[:12]
	return &cfg, nil
}

// Hash generates SHA256 hash from the parameters (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *StrategyConfig) (string, error) {
	params := *cfg
	params.Version = ""
	params.Source = ""

	jsonBytes, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Resolve picks the run configuration: YAML file when path is set, then the
// latest table row, then base. A missing row or an unreachable table falls back
// to base with a warning; a file or row that fails validation aborts the run
// with a *contracts.ConfigError.
func Resolve(ctx context.Context, path string, store Store, base StrategyConfig, log *logger.Logger) (StrategyConfig, error) {
	if path != "" {
		cfg, _, err := Load(path, base)
		if err != nil {
			return StrategyConfig{}, fmt.Errorf("strategy file %s: %w", path, asConfigError(err))
		}
		return *cfg, nil
	}

	if store == nil {
		return base, nil
	}

	row, err := store.LatestStrategyConfig(ctx, base.ConfigID)
	if err != nil {
		log.WithError(err).WithField("config_id", base.ConfigID).Warn("Failed to load strategy_params, using defaults")
		return base, nil
	}
	if row == nil {
		log.WithField("config_id", base.ConfigID).Warn("Strategy config not found, using defaults")
		return base, nil
	}

	cfg := FromRow(*row, base)
	if err := Validate(&cfg); err != nil {
		return StrategyConfig{}, fmt.Errorf("strategy_params %s: %w", cfg.Version, asConfigError(err))
	}
	return cfg, nil
}

// asConfigError lifts a ValidationError into the fatal run error
func asConfigError(err error) error {
	var ve ValidationError
	if errors.As(err, &ve) {
		return &contracts.ConfigError{Field: ve.Field, Message: ve.Message}
	}
	return err
}

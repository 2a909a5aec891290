package contracts

import (
	"errors"
	"fmt"
)

// ErrAllRecordsInvalid is returned when every record of a non-empty batch fails parsing
var ErrAllRecordsInvalid = errors.New("all records failed validation")

// ConfigError is an invalid run configuration. Fatal: the run aborts before computing anything.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// DataError is a single malformed record. Callers skip and count it.
type DataError struct {
	Field   string
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("invalid record %s: %s", e.Field, e.Message)
}

// IsDataError reports whether err is (or wraps) a DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// IsConfigError reports whether err is (or wraps) a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

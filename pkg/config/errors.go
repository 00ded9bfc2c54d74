package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration classifies every fatal input error detected before any phase runs
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports missing or inconsistent job input
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Unwrap lets errors.Is(err, ErrConfiguration) match
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// Errorf builds a ConfigurationError
func Errorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

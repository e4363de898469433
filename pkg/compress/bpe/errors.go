package bpe

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrConfiguration = errors.New("bpe: invalid configuration")
	ErrProtocol      = errors.New("bpe: protocol violation")
)

// ConfigError reports one invalid or inconsistent geometry parameter.
// It matches ErrConfiguration with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("bpe: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

package base

import (
	"errors"
	"fmt"
)

// ConfigError reports a precondition that fails before any network I/O:
// a missing host, credential or recipient. It is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "mail configuration: " + e.Reason
}

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...interface{}) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransportError reports a connect, TLS, authentication or protocol command
// failure, with the underlying protocol detail attached.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError. Returns nil when err is nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

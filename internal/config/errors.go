package config

import "fmt"

// ConfigError reports configuration the monitor cannot start with.
type ConfigError struct {
	Field   string // Dotted path, e.g. "poller.interval"
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func required(field string) error {
	return &ConfigError{Field: field, Message: "is required"}
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Project == "" {
		errors = append(errors, ValidationError{Field: "project", Value: c.Project, Message: "must not be empty"})
	}

	errors = append(errors, c.validatePolicy()...)
	errors = append(errors, c.validateClassifier()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateIgnore()...)
	errors = append(errors, c.validateLock()...)

	if c.Batch.Parallelism < 1 {
		errors = append(errors, ValidationError{
			Field:   "validate.parallelism",
			Value:   c.Batch.Parallelism,
			Message: "must be at least 1",
		})
	}

	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validatePolicy() []ValidationError {
	var errors []ValidationError

	if c.Policy.DiffThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "policy.diff_threshold",
			Value:   c.Policy.DiffThreshold,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateClassifier() []ValidationError {
	var errors []ValidationError

	if len(c.Classifier.Command) == 0 || strings.TrimSpace(c.Classifier.Command[0]) == "" {
		errors = append(errors, ValidationError{
			Field:   "classifier.command",
			Value:   c.Classifier.Command,
			Message: "must name an executable",
		})
	}
	if c.Classifier.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "classifier.timeout",
			Value:   c.Classifier.Timeout,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	drivers := []string{DriverSQLite, DriverPostgres}
	if !slices.Contains(drivers, c.Store.Driver) {
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Value:   c.Store.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(drivers, ", ")),
		})
	}
	if c.Store.DSN == "" {
		errors = append(errors, ValidationError{Field: "store.dsn", Value: c.Store.DSN, Message: "must not be empty"})
	}

	return errors
}

func (c *Config) validateIgnore() []ValidationError {
	var errors []ValidationError

	backends := []string{BackendFile, BackendRedis, BackendDatabase}
	switch c.Ignore.Backend {
	case BackendFile:
		if c.Ignore.File == "" {
			errors = append(errors, ValidationError{
				Field:   "ignore.file",
				Value:   c.Ignore.File,
				Message: "required when ignore.backend is file",
			})
		}
	case BackendRedis:
		if c.Ignore.RedisURL == "" {
			errors = append(errors, ValidationError{
				Field:   "ignore.redis_url",
				Value:   c.Ignore.RedisURL,
				Message: "required when ignore.backend is redis",
			})
		}
	case BackendDatabase:
	default:
		errors = append(errors, ValidationError{
			Field:   "ignore.backend",
			Value:   c.Ignore.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(backends, ", ")),
		})
	}

	return errors
}

func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	switch c.Lock.Backend {
	case BackendFile:
		if c.Lock.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "lock.dir",
				Value:   c.Lock.Dir,
				Message: "required when lock.backend is file",
			})
		}
	case BackendRedis:
		if c.Lock.RedisURL == "" {
			errors = append(errors, ValidationError{
				Field:   "lock.redis_url",
				Value:   c.Lock.RedisURL,
				Message: "required when lock.backend is redis",
			})
		}
		if c.Lock.TTL <= 0 {
			errors = append(errors, ValidationError{
				Field:   "lock.ttl",
				Value:   c.Lock.TTL,
				Message: "must be positive for the redis backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "lock.backend",
			Value:   c.Lock.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join([]string{BackendFile, BackendRedis}, ", ")),
		})
	}

	if c.Lock.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout",
			Value:   c.Lock.Timeout,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

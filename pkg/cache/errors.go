package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Common cache operation errors.
var (
	// ErrKeyNotFound is returned when a requested key does not exist in the cache
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrInvalidKey is returned when a cache key is empty, too long or contains control characters
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrLayerUnavailable is returned when a cache layer is temporarily unavailable
	ErrLayerUnavailable = errors.New("cache: layer unavailable")

	// ErrClosed is returned by a layer after Close
	ErrClosed = errors.New("cache: layer closed")
)

// IsNotFound checks if the given error indicates that a key was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsUnavailable checks if the given error indicates a layer is unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrLayerUnavailable)
}

// ClassifyError returns a string classification of the error type for metrics.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrClosed):
		return "closed"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit"):
		return "circuit_breaker_open"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"):
		return "connection"
	default:
		return "other"
	}
}

// WrapError wraps an error with the layer name and operation.
func WrapError(err error, layer string, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache layer %s %s: %w", layer, operation, err)
}

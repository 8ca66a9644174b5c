package application

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crm-visma-sync-layer/internal/domain"
)

// RetryConfig bounds the retry loop around individual remote calls.
// Retries use a fixed delay; the shared transport already spaces
// requests, so exponential backoff adds nothing here.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// withRetry runs op up to cfg.Attempts times. Non-retryable errors abort
// immediately; context cancellation wins over the inter-attempt delay.
func withRetry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return err
}

// Retryable classifies an error as transient. Validation, auth and
// conflict errors never recover by repetition; timeouts, 429s and 5xx
// responses usually do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return false
	}
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Kind == domain.TransportTimeout {
			return true
		}
		switch transportErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
			http.StatusNotFound, http.StatusUnprocessableEntity:
			return false
		}
		return transportErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Unclassified errors are most often network hiccups.
	return true
}

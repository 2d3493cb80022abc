package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"

	"github.com/vietddude/chainsub/internal/metrics"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for a polling client.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    250 * time.Millisecond,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}

	// Not found is an answer, not a failure
	if errors.Is(err, ethereum.NotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	s := err.Error()

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}

	sLower := strings.ToLower(s)
	if strings.Contains(sLower, "method not found") ||
		strings.Contains(sLower, "invalid argument") ||
		strings.Contains(sLower, "unauthorized") {
		return ActionFatal
	}

	// Network, 5xx and rate limits are retried
	return ActionRetry
}

// Call executes fn with exponential backoff and records call metrics.
func Call[T any](ctx context.Context, method string, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)

	attempts := max(config.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		result, err := fn(ctx)
		metrics.RPCCallsTotal.WithLabelValues(method).Inc()
		metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err == nil {
			return result, nil
		}

		lastErr = err
		if ClassifyError(err) == ActionFatal {
			if !errors.Is(err, ethereum.NotFound) {
				metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
			}
			return zero, err
		}
		metrics.RPCErrorsTotal.WithLabelValues(method).Inc()

		if attempt == attempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", method, attempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

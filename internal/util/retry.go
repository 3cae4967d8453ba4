package util

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig bounds an exponential-backoff retry loop (§5 "Cancellation
// and timeouts"). The loaders' upstream calls — Etherscan, Solana RPC,
// Binance REST — go through Retry/RetryWithResult with a config sized for
// their caller: Binance and Etherscan make up to 3 attempts, Solana RPC 5.
// The CoinGecko/CryptoCompare price providers run their own retry loop
// and do not use this package.
type RetryConfig struct {
	MaxRetries   int           // additional attempts after the first
	InitialDelay time.Duration // base delay for the first retry
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // exponential base, 2.0 unless noted
}

// DefaultRetryConfig is three attempts total, waiting 2s then 4s between
// them, with an 8s backoff ceiling. Neither price provider calls it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// EtherscanRetryConfig bounds the EVM loader's Etherscan-shaped API calls.
func EtherscanRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: 1 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
}

// SolanaRetryConfig bounds the Solana loader's JSON-RPC calls — public RPC
// endpoints are flakier, hence the extra attempts (§5).
func SolanaRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 4, InitialDelay: 1 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 2.0}
}

// BinanceRetryConfig bounds the Binance CEX loader's signed REST calls.
func BinanceRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: 1 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}
}

// RetryableError lets a caller mark an error as retryable/non-retryable
// explicitly, overriding the keyword/status heuristics below.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryableError reports whether err looks like a transient failure:
// network-level errors, HTTP 429/5xx. Anything else (malformed response,
// 4xx other than 429, symbol-not-found) is treated as persistent — the
// EXTERNAL_SERVICE_ERROR contract of §7 retries the former and reports the
// latter.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RetryableError); ok {
		return re.Retryable
	}

	errStr := strings.ToLower(err.Error())
	retryableKeywords := []string{
		"timeout",
		"deadline exceeded",
		"connection",
		"network",
		"temporary",
		"tls handshake timeout",
		"eof",
		"no such host",
		"connection refused",
		"connection reset",
		"i/o timeout",
		"429",
	}
	for _, keyword := range retryableKeywords {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}
	return false
}

// Retry runs fn, retrying on a retryable error with exponential backoff up
// to config.MaxRetries additional attempts. A nil config uses
// DefaultRetryConfig.
func Retry(ctx context.Context, fn func() error, config *RetryConfig) error {
	_, err := RetryWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	}, config)
	return err
}

// RetryWithResult is Retry for a function that also returns a value.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), config *RetryConfig) (T, error) {
	var zero T
	if config == nil {
		c := DefaultRetryConfig()
		config = &c
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return zero, fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == config.MaxRetries {
			break
		}

		delay := time.Duration(float64(config.InitialDelay) * pow(config.Multiplier, float64(attempt)))
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

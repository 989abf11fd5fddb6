// Package retry implements the Retry Policy: error classification,
// exponential backoff with jitter, and mutex-protected attempt counters.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raaf-ai/raaf-go/apperr"
)

// ErrorKind classifies a provider failure for retry purposes.
type ErrorKind string

const (
	KindRateLimit       ErrorKind = "rate_limit"
	KindTimeout         ErrorKind = "timeout"
	KindContextTooLarge ErrorKind = "context_too_large"
	KindModelOverloaded ErrorKind = "model_overloaded"
	KindNetworkError    ErrorKind = "network_error"
	KindAuthentication  ErrorKind = "authentication_error"
	KindUnknown         ErrorKind = "unknown"
)

// Config controls backoff scheduling and attempt budget.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultConfig returns the stock backoff schedule: 5 attempts, 1s base,
// 60s cap, 2x multiplier, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// ConfigFromEnv builds a Config from DefaultConfig, overridden by any of
// RAAF_PROVIDER_RETRY_ATTEMPTS, _BASE_DELAY, _MAX_DELAY, _MULTIPLIER,
// _JITTER that parse successfully. Unparseable or absent variables fall
// back to the default silently.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, ok := envInt("RAAF_PROVIDER_RETRY_ATTEMPTS"); ok {
		cfg.MaxAttempts = v
	}
	if v, ok := envDuration("RAAF_PROVIDER_RETRY_BASE_DELAY"); ok {
		cfg.BaseDelay = v
	}
	if v, ok := envDuration("RAAF_PROVIDER_RETRY_MAX_DELAY"); ok {
		cfg.MaxDelay = v
	}
	if v, ok := envFloat("RAAF_PROVIDER_RETRY_MULTIPLIER"); ok {
		cfg.Multiplier = v
	}
	if v, ok := envFloat("RAAF_PROVIDER_RETRY_JITTER"); ok {
		cfg.Jitter = v
	}
	return cfg
}

func envInt(name string) (int, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDuration(name string) (time.Duration, bool) {
	s, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(time.Second)), true
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

var classifiers = []struct {
	kind ErrorKind
	re   *regexp.Regexp
}{
	{KindRateLimit, regexp.MustCompile(`(?i)rate.?limit|429|too many requests`)},
	{KindTimeout, regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`)},
	{KindContextTooLarge, regexp.MustCompile(`(?i)context.?(length|window).?(too large|exceeded)|maximum context`)},
	{KindModelOverloaded, regexp.MustCompile(`(?i)overloaded|503|service unavailable|server.?busy`)},
	{KindNetworkError, regexp.MustCompile(`(?i)connection reset|connection refused|network|no such host|broken pipe`)},
	{KindAuthentication, regexp.MustCompile(`(?i)unauthorized|401|403|invalid api key|authentication`)},
}

// Classify inspects err's message and concrete type to assign an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetworkError
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetworkError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pe *apperr.ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case apperr.ProviderErrorKindAuth:
			return KindAuthentication
		case apperr.ProviderErrorKindRateLimited:
			return KindRateLimit
		case apperr.ProviderErrorKindUnavailable:
			return KindModelOverloaded
		}
	}

	msg := err.Error()
	for _, c := range classifiers {
		if c.re.MatchString(msg) {
			return c.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether an ErrorKind should be retried. Authentication
// failures are never retryable; unknown (unmatched) errors are treated as
// non-retryable since the policy cannot tell whether retrying would help.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindAuthentication, KindUnknown:
		return false
	default:
		return true
	}
}

// ExhaustedError is returned by Do when every attempt failed.
type ExhaustedError struct {
	Attempts      int
	TotalDuration time.Duration
	LastErr       error
}

func (e *ExhaustedError) Error() string {
	return "retry: exhausted after " + strconv.Itoa(e.Attempts) + " attempts: " + e.LastErr.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Counters is a snapshot of accumulated retry statistics, safe to read
// concurrently with further Policy use.
type Counters struct {
	TotalAttempts     int64
	SuccessfulRetries int64
	FailedOperations  int64
	ByKind            map[ErrorKind]int64
}

// Policy executes operations with classification-driven retry and backoff,
// tracking mutex-protected counters across calls.
type Policy struct {
	cfg Config

	mu                sync.Mutex
	totalAttempts     int64
	successfulRetries int64
	failedOperations  int64
	byKind            map[ErrorKind]int64
}

// NewPolicy constructs a Policy from cfg.
func NewPolicy(cfg Config) *Policy {
	return &Policy{cfg: cfg, byKind: make(map[ErrorKind]int64)}
}

// NewPolicyFromEnv constructs a Policy using ConfigFromEnv.
func NewPolicyFromEnv() *Policy { return NewPolicy(ConfigFromEnv()) }

// Snapshot returns a copy of the policy's accumulated counters.
func (p *Policy) Snapshot() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	byKind := make(map[ErrorKind]int64, len(p.byKind))
	for k, v := range p.byKind {
		byKind[k] = v
	}
	return Counters{
		TotalAttempts:     p.totalAttempts,
		SuccessfulRetries: p.successfulRetries,
		FailedOperations:  p.failedOperations,
		ByKind:            byKind,
	}
}

// Do runs fn, retrying on retryable classified errors up to cfg.MaxAttempts
// times with exponential backoff and jitter. On exhaustion it returns an
// *ExhaustedError wrapping the last error; callers surface that as
// *apperr.ProviderError at the provider adapter boundary.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		p.recordAttempt()
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				p.recordSuccessAfterRetry()
			}
			return nil
		}
		lastErr = err
		kind := Classify(err)
		p.recordKind(kind)
		if !Retryable(kind) {
			p.recordFailedOperation()
			return err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		delay := p.backoff(attempt)
		select {
		case <-ctx.Done():
			p.recordFailedOperation()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	p.recordFailedOperation()
	return &ExhaustedError{Attempts: p.cfg.MaxAttempts, TotalDuration: time.Since(start), LastErr: lastErr}
}

func (p *Policy) backoff(attempt int) time.Duration {
	raw := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	capped := math.Min(raw, float64(p.cfg.MaxDelay))
	jitterRange := capped * p.cfg.Jitter
	jittered := capped + (rand.Float64()*2-1)*jitterRange
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

func (p *Policy) recordAttempt() {
	p.mu.Lock()
	p.totalAttempts++
	p.mu.Unlock()
}

func (p *Policy) recordSuccessAfterRetry() {
	p.mu.Lock()
	p.successfulRetries++
	p.mu.Unlock()
}

func (p *Policy) recordFailedOperation() {
	p.mu.Lock()
	p.failedOperations++
	p.mu.Unlock()
}

func (p *Policy) recordKind(kind ErrorKind) {
	p.mu.Lock()
	p.byKind[kind]++
	p.mu.Unlock()
}

// IsNetworkLike reports whether err looks like a network-layer failure,
// using the same detection a2a/retry used for IsRetryable's net.Error/
// net.DNSError checks, exposed here for adapters that want to pre-classify
// before calling Do.
func IsNetworkLike(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) || strings.Contains(strings.ToLower(err.Error()), "connection")
}

// Package ratelimit implements an adaptive tokens-per-minute limiter that
// wraps a provider.Provider: an AIMD-style token bucket that estimates the
// cost of each request, blocks callers until capacity is available, and
// backs off its effective budget on a rate-limit signal from the provider.
// The limiter is strictly process-local; it does not coordinate across
// processes.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/raaf-ai/raaf-go/apperr"
	"github.com/raaf-ai/raaf-go/item"
	"github.com/raaf-ai/raaf-go/provider"
)

// Limiter applies an adaptive token-bucket limit in front of a
// provider.Provider. Construct one per process and wrap the underlying
// Provider with Wrap before handing it to the runner.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs a Limiter with a tokens-per-minute budget. maxTPM is
// clamped to initialTPM when zero or smaller.
func New(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a provider.Provider that enforces l in front of next.
func (l *Limiter) Wrap(next provider.Provider) provider.Provider {
	if next == nil {
		return nil
	}
	return &limited{next: next, limiter: l}
}

type limited struct {
	next    provider.Provider
	limiter *Limiter
}

func (c *limited) SupportsFunctionCalling() bool { return c.next.SupportsFunctionCalling() }

func (c *limited) ResponsesCompletion(ctx context.Context, req provider.Request) (provider.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return provider.Response{}, err
	}
	resp, err := c.next.ResponsesCompletion(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *Limiter) wait(ctx context.Context, req provider.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	var pe *apperr.ProviderError
	if errors.As(err, &pe) && pe.Kind == apperr.ProviderErrorKindRateLimited {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPM(newTPM)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPM(newTPM)
}

// setTPM must be called with l.mu held.
func (l *Limiter) setTPM(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// CurrentTPM reports the limiter's current effective tokens-per-minute
// budget, for telemetry.
func (l *Limiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the token cost of a
// request's input items: it counts characters of message text and tool
// outputs, converts via a fixed ratio, and adds a fixed buffer for the
// system prompt and provider framing.
func estimateTokens(req provider.Request) int {
	charCount := len(req.SystemPrompt)
	for _, w := range req.Input {
		switch w.Type {
		case item.WireTypeMessage, item.WireTypeOutputText:
			charCount += len(w.Text())
		case item.WireTypeFunctionCallOutput:
			charCount += len(w.Output)
		case item.WireTypeFunctionCall:
			charCount += len(w.Arguments)
		}
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}

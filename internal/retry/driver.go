// Package retry implements spec.md §4.6: the priority retry driver —
// ordered fallback across (provider, model) pairs with two distinct
// backoff schedules. Grounded on the teacher's
// infrastructure/llm/router.go sequential-fallback-across-providers
// pattern combined with domain/service/agent_loop.go's
// callLLMWithRetry exponential-backoff-on-one-attempt pattern; the
// fixed rate-limit schedule is new logic, styled after both.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
	"go.uber.org/zap"
)

// Attempt is one (provider, model, fn) entry in the retry sequence.
type Attempt struct {
	Provider string
	Model    string
	Fn       func(ctx context.Context) (*model.LLMResponse, error)
}

// Policy configures both backoff modes.
type Policy struct {
	MaxAttempts      int // calls per Attempt (first try plus retries) before advancing
	BaseDelay        time.Duration
	Multiplier       float64
	RateLimitDelays  []time.Duration // fixed schedule, consumed positionally across the whole sequence
}

// Sleeper abstracts time.Sleep for deterministic tests.
type Sleeper func(ctx context.Context, d time.Duration)

func defaultSleeper(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Driver runs a non-empty ordered Attempt sequence per spec.md §4.6.
type Driver struct {
	Policy  Policy
	Logger  telemetry.Logger
	Metrics *telemetry.Metrics
	Sleep   Sleeper
}

func NewDriver(policy Policy, logger telemetry.Logger, metrics *telemetry.Metrics) *Driver {
	return &Driver{Policy: policy, Logger: logger, Metrics: metrics, Sleep: defaultSleeper}
}

// Run executes attempts in order. On success it returns immediately. A
// ProviderPayloadError or ManifestError is returned at once, without
// retrying or advancing. On any other failure it retries the same attempt up to MaxAttempts-1
// times with exponential backoff before advancing. On an isRateLimit
// failure it consumes the next RateLimitDelays entry (positionally,
// across the whole sequence) and retries the same attempt; schedule
// exhaustion is a terminal rate-limit failure for that provider and the
// driver advances. When the sequence is exhausted, the last error is
// rethrown.
func (d *Driver) Run(ctx context.Context, attempts []Attempt) (*model.LLMResponse, error) {
	if len(attempts) == 0 {
		panic("retry: attempts must be non-empty")
	}
	if d.Sleep == nil {
		d.Sleep = defaultSleeper
	}

	rateLimitIdx := 0
	var lastErr error

	for _, a := range attempts {
		for attemptNum := 1; attemptNum <= maxInt(d.Policy.MaxAttempts, 1); attemptNum++ {
			resp, err := a.Fn(ctx)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			var payloadErr *errkit.ProviderPayloadError
			var manifestErr *errkit.ManifestError
			if errors.As(err, &payloadErr) || errors.As(err, &manifestErr) {
				return nil, err
			}

			isRateLimit := classifyRateLimit(err)

			if isRateLimit {
				if rateLimitIdx < len(d.Policy.RateLimitDelays) {
					delay := d.Policy.RateLimitDelays[rateLimitIdx]
					rateLimitIdx++
					d.logRetry(a, attemptNum, true)
					if d.Metrics != nil {
						d.Metrics.IncrRetry(ctx, a.Provider, a.Model, true)
					}
					d.Sleep(ctx, delay)
					attemptNum-- // retry the same attempt, not counted against MaxAttempts
					continue
				}
				// schedule exhausted: terminal rate-limit failure for this provider
				break
			}

			if attemptNum == d.Policy.MaxAttempts {
				break
			}
			delay := time.Duration(float64(d.Policy.BaseDelay) * math.Pow(d.Policy.Multiplier, float64(attemptNum-1)))
			d.logRetry(a, attemptNum, false)
			if d.Metrics != nil {
				d.Metrics.IncrRetry(ctx, a.Provider, a.Model, false)
			}
			d.Sleep(ctx, delay)
		}
	}

	return nil, lastErr
}

func (d *Driver) logRetry(a Attempt, retryNumber int, rateLimited bool) {
	if d.Logger == nil {
		return
	}
	d.Logger.Warn("retrying provider call",
		zap.String("provider", a.Provider),
		zap.String("model", a.Model),
		zap.Int("retryNumber", retryNumber),
		zap.Bool("rateLimited", rateLimited),
	)
}

func classifyRateLimit(err error) bool {
	var pe *errkit.ProviderExecutionError
	if errors.As(err, &pe) {
		return pe.IsRateLimit
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

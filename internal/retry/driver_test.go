package retry

import (
	"context"
	"testing"
	"time"

	"github.com/ngoclaw/llmcoordinator/internal/errkit"
	"github.com/ngoclaw/llmcoordinator/internal/model"
	"github.com/ngoclaw/llmcoordinator/internal/telemetry"
)

func noSleep(ctx context.Context, d time.Duration) {}

func TestRetryOrderingExponentialBackoff(t *testing.T) {
	calls := 0
	var delays []time.Duration
	d := NewDriver(Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}, telemetry.NewNop(), nil)
	d.Sleep = func(ctx context.Context, dur time.Duration) { delays = append(delays, dur) }

	attempts := []Attempt{{
		Provider: "p1", Model: "m1",
		Fn: func(ctx context.Context) (*model.LLMResponse, error) {
			calls++
			return nil, &errkit.ProviderExecutionError{Provider: "p1"}
		},
	}}

	_, err := d.Run(context.Background(), attempts)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected fn called exactly 3 times, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("expected delays [1s, 2s], got %v", delays)
	}
}

func TestProviderFailoverAdvancesOnExhaustion(t *testing.T) {
	d := NewDriver(Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2}, telemetry.NewNop(), nil)
	d.Sleep = noSleep

	attempts := []Attempt{
		{Provider: "p1", Model: "m1", Fn: func(ctx context.Context) (*model.LLMResponse, error) {
			return nil, &errkit.ProviderExecutionError{Provider: "p1"}
		}},
		{Provider: "p2", Model: "m2", Fn: func(ctx context.Context) (*model.LLMResponse, error) {
			return &model.LLMResponse{Provider: "p2", Role: model.RoleAssistant}, nil
		}},
	}

	resp, err := d.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "p2" {
		t.Fatalf("expected provider p2, got %s", resp.Provider)
	}
}

func TestRateLimitSchedule(t *testing.T) {
	var delays []time.Duration
	d := NewDriver(Policy{
		MaxAttempts:     1,
		BaseDelay:       time.Millisecond,
		Multiplier:      2,
		RateLimitDelays: []time.Duration{time.Second, 5 * time.Second},
	}, telemetry.NewNop(), nil)
	d.Sleep = func(ctx context.Context, dur time.Duration) { delays = append(delays, dur) }

	rateLimitCalls := 0
	attempts := []Attempt{
		{Provider: "p1", Model: "m1", Fn: func(ctx context.Context) (*model.LLMResponse, error) {
			rateLimitCalls++
			return nil, &errkit.ProviderExecutionError{Provider: "p1", IsRateLimit: true}
		}},
		{Provider: "p2", Model: "m2", Fn: func(ctx context.Context) (*model.LLMResponse, error) {
			return &model.LLMResponse{Provider: "p2", Role: model.RoleAssistant}, nil
		}},
	}

	resp, err := d.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "p2" {
		t.Fatalf("expected failover to p2, got %s", resp.Provider)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 5*time.Second {
		t.Fatalf("expected delays [1s, 5s], got %v", delays)
	}
	if rateLimitCalls != 3 {
		t.Fatalf("expected p1 called 3 times (2 retries + schedule exhaustion), got %d", rateLimitCalls)
	}
}

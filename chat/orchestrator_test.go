package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/gemini"
	"github.com/antigravity-app/antigravity/ratelimit"
	"github.com/antigravity-app/antigravity/store"
)

func newTestLimiter(t *testing.T, usage domain.UsageMetrics) *ratelimit.RateLimiter {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if usage.LastResetMinute == 0 {
		now := domain.NowMillis()
		usage.LastResetMinute = now
		usage.LastResetDay = now
	}
	if err := s.SetUsage(ctx, usage); err != nil {
		t.Fatalf("SetUsage failed: %v", err)
	}

	u, err := ratelimit.NewUsageStore(ctx, s)
	if err != nil {
		t.Fatalf("failed to create usage store: %v", err)
	}
	engine, err := ratelimit.NewEngine(ctx, ratelimit.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return ratelimit.New(u, engine)
}

func transcript(contents ...string) []domain.Message {
	msgs := make([]domain.Message, 0, len(contents))
	for i, c := range contents {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.Message{ID: c, Role: role, Content: c, Timestamp: int64(i)})
	}
	return msgs
}

func TestGenerateSuccess(t *testing.T) {
	provider := gemini.NewMockProvider("hello there")
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))

	text, err := o.Generate(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("unexpected reply: %q", text)
	}

	// One completed call: request counters incremented, tokens > 0.
	m := o.limiter.Metrics()
	if m.RequestsMinute != 1 || m.RequestsDay != 1 || m.TokensMinute == 0 {
		t.Fatalf("usage not recorded: %+v", m)
	}
}

func TestGenerateFallbackChain(t *testing.T) {
	provider := gemini.NewMockProvider("ok")
	provider.Errs["gemini-2.5-pro"] = errors.New("googleapi: Error 429: quota exceeded")
	provider.Errs["gemini-2.5-flash"] = errors.New("googleapi: Error 429: quota exceeded")
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))

	text, err := o.Generate(context.Background(), "gemini-2.5-pro", transcript("hi"), domain.DefaultProfile(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected reply: %q", text)
	}
	want := []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}
	if len(provider.Calls) != len(want) {
		t.Fatalf("unexpected calls: %v", provider.Calls)
	}
	for i, m := range want {
		if provider.Calls[i] != m {
			t.Fatalf("call %d = %q, want %q", i, provider.Calls[i], m)
		}
	}
}

func TestGenerateRetriesExhausted(t *testing.T) {
	provider := gemini.NewMockProvider("unused")
	quotaErr := errors.New("googleapi: Error 429: quota exceeded")
	provider.Errs["gemini-2.0-flash"] = quotaErr
	provider.Errs["gemini-2.5-flash"] = quotaErr
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))

	text, err := o.Generate(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(text, "⚠️ **API Error**") || !strings.Contains(text, "429") {
		t.Fatalf("expected inline error, got %q", text)
	}
	// Chain: 2.0-flash -> 2.5-flash -> 2.0-flash, then stop.
	if len(provider.Calls) != 3 {
		t.Fatalf("expected 3 attempts, got %v", provider.Calls)
	}

	// Failed calls never reached completion: no usage recorded.
	if m := o.limiter.Metrics(); m.RequestsMinute != 0 {
		t.Fatalf("failed calls must not consume quota: %+v", m)
	}
}

func TestGenerateNonRecoverableErrorNoRetry(t *testing.T) {
	provider := gemini.NewMockProvider("unused")
	provider.Errs["gemini-2.0-flash"] = errors.New("connection refused")
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))

	text, err := o.Generate(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(text, "⚠️ **API Error**") {
		t.Fatalf("expected inline error, got %q", text)
	}
	if len(provider.Calls) != 1 {
		t.Fatalf("non-recoverable error must not retry, got %v", provider.Calls)
	}
}

func TestGenerateRefusesOnRed(t *testing.T) {
	provider := gemini.NewMockProvider("unused")
	// FLASH tier with the whole minute quota spent.
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{RequestsMinute: 15}))

	text, err := o.Generate(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(text, "⚠️ **Traffic Light RED**") {
		t.Fatalf("expected RED refusal, got %q", text)
	}
	if len(provider.Calls) != 0 {
		t.Fatalf("RED must refuse before calling the provider, got %v", provider.Calls)
	}
}

func TestGenerateStreamSkipsPreflight(t *testing.T) {
	provider := gemini.NewMockProvider("")
	provider.StreamChunks = []string{"hel", "lo"}
	// Quota exhausted, but streaming skips the pre-flight check.
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{RequestsMinute: 15}))

	var got []string
	full, err := o.GenerateStream(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "", func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	if full != "hello" || len(got) != 2 {
		t.Fatalf("unexpected stream result: %q %v", full, got)
	}

	// Usage is still logged after the stream completes.
	if m := o.limiter.Metrics(); m.RequestsMinute != 16 {
		t.Fatalf("stream usage not recorded: %+v", m)
	}
}

func TestGenerateStreamFallbackWithBackoff(t *testing.T) {
	provider := gemini.NewMockProvider("recovered")
	provider.Errs["gemini-2.0-flash"] = errors.New("googleapi: Error 404: model not found")
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))

	var slept time.Duration
	o.sleep = func(d time.Duration) { slept += d }

	full, err := o.GenerateStream(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "", func(string) error { return nil })
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	if full != "recovered" {
		t.Fatalf("unexpected stream text: %q", full)
	}
	if slept != streamBackoff {
		t.Fatalf("expected one backoff of %v, slept %v", streamBackoff, slept)
	}
	if provider.Calls[1] != "gemini-2.5-flash" {
		t.Fatalf("unexpected fallback chain: %v", provider.Calls)
	}
}

func TestGenerateStreamErrorSurfacesInline(t *testing.T) {
	provider := gemini.NewMockProvider("unused")
	provider.Errs["gemini-2.0-flash"] = errors.New("boom")
	o := NewOrchestrator(provider, newTestLimiter(t, domain.UsageMetrics{}))
	o.sleep = func(time.Duration) {}

	var got []string
	full, err := o.GenerateStream(context.Background(), "gemini-2.0-flash", transcript("hi"), domain.DefaultProfile(), "", func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}
	if !strings.HasPrefix(full, "⚠️ **Stream Error**") {
		t.Fatalf("expected inline stream error, got %q", full)
	}
	if len(got) != 1 {
		t.Fatalf("expected the error as a final fragment, got %v", got)
	}
}

package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/gemini"
	"github.com/antigravity-app/antigravity/ratelimit"
)

const (
	// maxRetries bounds the fallback chain: the requested model plus
	// two fallback attempts.
	maxRetries = 2

	// streamBackoff is the delay before a streaming fallback attempt.
	streamBackoff = time.Second
)

// FallbackModels is the descending-capability retry chain. Attempt N
// (1-based) after a quota or availability failure runs on FallbackModels[N-1].
var FallbackModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

// isRecoverable reports whether a provider error is a quota (429) or
// model availability (404) failure, recoverable via model fallback.
func isRecoverable(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "404")
}

// Orchestrator drives the model-fallback retry chain for buffered and
// streamed generation, consulting the rate limiter before sending and
// recording usage after.
type Orchestrator struct {
	provider gemini.Provider
	limiter  *ratelimit.RateLimiter

	// sleep is the backoff hook, replaceable in tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator over the given provider and
// rate limiter.
func NewOrchestrator(provider gemini.Provider, limiter *ratelimit.RateLimiter) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		limiter:  limiter,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// promptTokens estimates the input size of a request for usage logging.
func promptTokens(systemInstruction string, transcript []domain.Message) int {
	total := ratelimit.EstimateTokens(systemInstruction)
	for _, msg := range transcript {
		total += ratelimit.EstimateTokens(msg.Content)
	}
	return total
}

// Generate runs a buffered generation request through the fallback
// chain. Provider failures are returned as user-visible inline text,
// never as an error; the error return covers local store and policy
// faults only.
func (o *Orchestrator) Generate(ctx context.Context, modelID string, transcript []domain.Message, profile domain.UserProfile, extra string) (string, error) {
	system := gemini.BuildSystemInstruction(profile, extra, o.now())
	turns, lastUser, ok := gemini.BuildTurns(transcript)
	if !ok {
		return "", fmt.Errorf("empty transcript")
	}

	model := modelID
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Pre-flight admission check. RED means some quota is already
		// exhausted: refuse outright instead of burning the request.
		status, diag, err := o.limiter.CheckStatus(ctx, model)
		if err != nil {
			return "", err
		}
		log.Printf("%s", diag)
		if status == domain.TrafficRed {
			return fmt.Sprintf("⚠️ **Traffic Light RED**: Quota exceeded. %s", diag), nil
		}

		text, err := o.provider.Send(ctx, model, system, turns, lastUser)
		if err == nil {
			tokens := promptTokens(system, transcript) + ratelimit.EstimateTokens(text)
			if logErr := o.limiter.LogUsage(ctx, model, tokens); logErr != nil {
				log.Printf("ERROR: failed to log usage: %v", logErr)
			}
			return text, nil
		}

		lastErr = err
		if attempt < maxRetries && isRecoverable(err) {
			next := FallbackModels[attempt]
			log.Printf("quota hit on %s, retry %d falling back to %s", model, attempt+1, next)
			model = next
			continue
		}
		break
	}

	return fmt.Sprintf("⚠️ **API Error**: %v", lastErr), nil
}

// GenerateStream runs a streaming generation request through the
// fallback chain, invoking the callback for each fragment. The
// pre-flight admission check is intentionally skipped to minimize
// time-to-first-token; the provider enforces its own quota. A stream
// that fails before producing any output falls back after a short
// backoff; once output has been produced the failure is surfaced as a
// final inline fragment instead. Returns the full accumulated text.
func (o *Orchestrator) GenerateStream(ctx context.Context, modelID string, transcript []domain.Message, profile domain.UserProfile, extra string, callback gemini.StreamCallback) (string, error) {
	system := gemini.BuildSystemInstruction(profile, extra, o.now())
	turns, lastUser, ok := gemini.BuildTurns(transcript)
	if !ok {
		return "", fmt.Errorf("empty transcript")
	}

	var full strings.Builder
	model := modelID
	for attempt := 0; attempt <= maxRetries; attempt++ {
		produced := false
		err := o.provider.SendStream(ctx, model, system, turns, lastUser, func(fragment string) error {
			produced = true
			full.WriteString(fragment)
			return callback(fragment)
		})
		if err == nil {
			tokens := promptTokens(system, transcript) + ratelimit.EstimateTokens(full.String())
			if logErr := o.limiter.LogUsage(ctx, model, tokens); logErr != nil {
				log.Printf("ERROR: failed to log usage: %v", logErr)
			}
			return full.String(), nil
		}

		if !produced && attempt < maxRetries && isRecoverable(err) {
			next := FallbackModels[attempt]
			log.Printf("stream quota hit on %s, retry %d falling back to %s", model, attempt+1, next)
			o.sleep(streamBackoff)
			model = next
			continue
		}

		inline := fmt.Sprintf("⚠️ **Stream Error**: %v", err)
		full.WriteString(inline)
		if cbErr := callback(inline); cbErr != nil {
			return full.String(), cbErr
		}
		return full.String(), nil
	}
	return full.String(), nil
}

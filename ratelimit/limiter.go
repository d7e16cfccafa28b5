package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antigravity-app/antigravity/domain"
)

// Quota holds the per-tier request and token limits.
type Quota struct {
	RPM int // requests per minute
	TPM int // tokens per minute
	RPD int // requests per day
}

// Quotas is the per-tier quota table.
var Quotas = map[domain.ModelTier]Quota{
	domain.TierPro:   {RPM: 2, TPM: 32_000, RPD: 50},
	domain.TierFlash: {RPM: 15, TPM: 1_000_000, RPD: 1500},
}

// TierOf classifies a model identifier: anything containing "pro"
// (case-insensitive) is PRO, everything else is FLASH.
func TierOf(modelID string) domain.ModelTier {
	if strings.Contains(strings.ToLower(modelID), "pro") {
		return domain.TierPro
	}
	return domain.TierFlash
}

// EstimateTokens is a cheap deterministic approximation: character count
// divided by 4, rounded up. Characters, not bytes, so multi-byte text
// does not overcount.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// RateLimiter computes traffic status from usage versus the quota table
// and records usage after completed calls.
type RateLimiter struct {
	usage  *UsageStore
	engine *Engine
}

// New creates a rate limiter over the given usage store and policy engine.
func New(usage *UsageStore, engine *Engine) *RateLimiter {
	return &RateLimiter{usage: usage, engine: engine}
}

// CheckStatus classifies current utilization for the model's tier and
// returns the status plus a diagnostic string.
func (r *RateLimiter) CheckStatus(ctx context.Context, modelID string) (domain.TrafficStatus, string, error) {
	if err := r.usage.CheckReset(ctx); err != nil {
		return "", "", err
	}

	tier := TierOf(modelID)
	quota := Quotas[tier]
	usage := r.usage.Metrics()

	input := map[string]interface{}{
		"rpm_ratio": float64(usage.RequestsMinute) / float64(quota.RPM),
		"tpm_ratio": float64(usage.TokensMinute) / float64(quota.TPM),
		"rpd_ratio": float64(usage.RequestsDay) / float64(quota.RPD),
	}

	decision, err := r.engine.Evaluate(ctx, input)
	if err != nil {
		return "", "", err
	}
	status := domain.TrafficStatus(decision)

	counts := fmt.Sprintf("RPM %d/%d | TPM %d/%d | RPD %d/%d",
		usage.RequestsMinute, quota.RPM,
		usage.TokensMinute, quota.TPM,
		usage.RequestsDay, quota.RPD)

	var msg string
	switch status {
	case domain.TrafficRed:
		msg = fmt.Sprintf("[RED] %s | limit reached | %s | waiting 60s", tier, counts)
	case domain.TrafficYellow:
		msg = fmt.Sprintf("[YELLOW] %s | high traffic | %s | slow down", tier, counts)
	default:
		msg = fmt.Sprintf("[GREEN] %s | %s | safe to send", tier, counts)
	}

	return status, msg, nil
}

// LogUsage records one completed provider call. Called after the fact so
// calls that never reached the provider do not consume quota.
func (r *RateLimiter) LogUsage(ctx context.Context, modelID string, tokens int) error {
	_ = modelID // quota counters are shared across tiers
	return r.usage.Record(ctx, tokens)
}

// Metrics returns the current usage counters.
func (r *RateLimiter) Metrics() domain.UsageMetrics {
	return r.usage.Metrics()
}

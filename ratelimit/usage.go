// Package ratelimit tracks provider quota usage and gates outbound
// requests with a three-level admission policy.
package ratelimit

import (
	"context"

	"github.com/antigravity-app/antigravity/domain"
	"github.com/antigravity-app/antigravity/store"
)

const (
	minuteWindowMillis = 60_000
	dayWindowMillis    = 86_400_000
)

// UsageStore holds the persisted usage counters with time-windowed reset
// logic. Reset checks always reload from the store first so that
// concurrent instances converge on a shared counter instead of diverging.
// Best-effort coordination, not a lock.
type UsageStore struct {
	store store.Store
	usage domain.UsageMetrics

	// now is the clock, replaceable in tests.
	now func() int64
}

// NewUsageStore creates a usage store and loads persisted counters.
func NewUsageStore(ctx context.Context, s store.Store) (*UsageStore, error) {
	u := &UsageStore{
		store: s,
		usage: domain.DefaultUsage(domain.NowMillis()),
		now:   domain.NowMillis,
	}
	if err := u.Load(ctx); err != nil {
		return nil, err
	}
	return u, nil
}

// Load merges persisted counters over the in-memory state. Missing or
// partial persisted data is tolerated.
func (u *UsageStore) Load(ctx context.Context) error {
	usage, err := u.store.GetUsage(ctx, u.usage)
	if err != nil {
		return err
	}
	u.usage = usage
	return nil
}

// Save writes the current counters back to the store.
func (u *UsageStore) Save(ctx context.Context) error {
	return u.store.SetUsage(ctx, u.usage)
}

// CheckReset must be called before every read or mutation of the
// counters. It reloads persisted state, zeroes any counter whose window
// has elapsed, stamps the reset time, and persists the result.
func (u *UsageStore) CheckReset(ctx context.Context) error {
	if err := u.Load(ctx); err != nil {
		return err
	}

	now := u.now()

	if now-u.usage.LastResetMinute > minuteWindowMillis {
		u.usage.RequestsMinute = 0
		u.usage.TokensMinute = 0
		u.usage.LastResetMinute = now
	}

	if now-u.usage.LastResetDay > dayWindowMillis {
		u.usage.RequestsDay = 0
		u.usage.LastResetDay = now
	}

	return u.Save(ctx)
}

// Record increments the counters for one completed provider call.
func (u *UsageStore) Record(ctx context.Context, tokens int) error {
	if err := u.CheckReset(ctx); err != nil {
		return err
	}
	u.usage.RequestsMinute++
	u.usage.RequestsDay++
	u.usage.TokensMinute += tokens
	return u.Save(ctx)
}

// Metrics returns the current counters.
func (u *UsageStore) Metrics() domain.UsageMetrics {
	return u.usage
}

// Package ratelimit gates model-backed actions behind a persistent
// per-profile hourly counter.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"inkwell/api/internal/store"
)

// ProfileStore is the persistence surface the gate needs. The two
// conditional updates are atomic single-row operations so concurrent
// requests for the same profile cannot both slip under the limit.
type ProfileStore interface {
	GetProfile(ctx context.Context, profileID string) (store.Profile, error)
	ResetRateLimitWindow(ctx context.Context, profileID string, now, resetAt time.Time) (store.Profile, bool, error)
	IncrementAPICallCount(ctx context.Context, profileID string, limit int, now time.Time) (store.Profile, bool, error)
}

// ExceededError reports a rejected action with machine-usable retry
// timing.
type ExceededError struct {
	CurrentUsage      int
	Limit             int
	RetryAfterSeconds int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d, retry in %ds", e.CurrentUsage, e.Limit, e.RetryAfterSeconds)
}

// Gate admits or rejects actions against a rolling one-hour window.
// Different call sites pass different per-hour limits sharing the same
// underlying counter, so the limit is a call parameter, not profile
// state.
type Gate struct {
	store ProfileStore
	now   func() time.Time
}

// NewGate creates a gate backed by the given store.
func NewGate(s ProfileStore) *Gate {
	return &Gate{store: s, now: time.Now}
}

// Admit counts one action against the profile's window. When the window
// is unset or expired it is reset lazily with this call as the first of
// the new window. Returns ExceededError when the counter is full.
func (g *Gate) Admit(ctx context.Context, profileID string, limitPerHour int) (store.Profile, error) {
	now := g.now()

	// Expired or unset window: reset and count this call as the first.
	profile, reset, err := g.store.ResetRateLimitWindow(ctx, profileID, now, now.Add(time.Hour))
	if err != nil {
		return store.Profile{}, err
	}
	if reset {
		return profile, nil
	}

	// Active window: the guarded increment admits only while the stored
	// count is under the limit.
	profile, admitted, err := g.store.IncrementAPICallCount(ctx, profileID, limitPerHour, now)
	if err != nil {
		return store.Profile{}, err
	}
	if admitted {
		return profile, nil
	}

	// Neither update matched: the window is active and full. Read the
	// row once more for the rejection details.
	profile, err = g.store.GetProfile(ctx, profileID)
	if err != nil {
		return store.Profile{}, fmt.Errorf("load profile for rate limit: %w", err)
	}

	retryAfter := 0
	if profile.RateLimitResetAt != nil {
		retryAfter = int(math.Ceil(profile.RateLimitResetAt.Sub(now).Seconds()))
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return store.Profile{}, &ExceededError{
		CurrentUsage:      profile.APICallCount,
		Limit:             limitPerHour,
		RetryAfterSeconds: retryAfter,
	}
}

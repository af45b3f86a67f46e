package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bantai/bantai-service/internal/domain"
)

// Policy is a fixed-window limit: at most MaxAttempts hits per Window, the
// window starting at the first hit for a key.
type Policy struct {
	Name               string
	MaxAttempts        int
	Window             time.Duration
	SkipSuccessfulHits bool
}

// Store keeps window counters. Increment must be atomic per key: concurrent
// callers each observe a distinct count.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (count int, resetAt time.Time, err error)
	Decrement(ctx context.Context, key string, now time.Time) error
	Peek(ctx context.Context, key string, now time.Time) (count int, resetAt time.Time, err error)
}

type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
}

func New(policy Policy, store Store) *Limiter {
	return &Limiter{policy: policy, store: store, now: time.Now}
}

// WithClock swaps the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

func (l *Limiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.policy.Name, key)
}

// Check records an attempt for key and reports whether it is within the limit.
// Attempts beyond the limit are never allowed, however many arrive at once.
func (l *Limiter) Check(ctx context.Context, key string) (domain.RateLimitResult, error) {
	now := l.now()

	count, resetAt, err := l.store.Increment(ctx, l.key(key), l.policy.Window, now)
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("rate limit %s: %w", l.policy.Name, err)
	}

	return l.result(count, resetAt), nil
}

// Allow is Check returning a RateLimitError when the attempt is refused.
func (l *Limiter) Allow(ctx context.Context, key string) (domain.RateLimitResult, error) {
	res, err := l.Check(ctx, key)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		return res, &domain.RateLimitError{RetryAfter: res.ResetTime.Sub(l.now())}
	}
	return res, nil
}

// Peek reports whether one more attempt would be allowed without recording it.
func (l *Limiter) Peek(ctx context.Context, key string) (domain.RateLimitResult, error) {
	count, resetAt, err := l.store.Peek(ctx, l.key(key), l.now())
	if err != nil {
		return domain.RateLimitResult{}, fmt.Errorf("rate limit %s: %w", l.policy.Name, err)
	}
	if count == 0 {
		resetAt = l.now().Add(l.policy.Window)
	}

	remaining := l.policy.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateLimitResult{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetTime: resetAt,
	}, nil
}

func (l *Limiter) result(count int, resetAt time.Time) domain.RateLimitResult {
	remaining := l.policy.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateLimitResult{
		Allowed:   count <= l.policy.MaxAttempts,
		Remaining: remaining,
		ResetTime: resetAt,
	}
}

// MarkSuccess gives back the attempt when the policy does not count successful
// hits. It is a no-op otherwise.
func (l *Limiter) MarkSuccess(ctx context.Context, key string) error {
	if !l.policy.SkipSuccessfulHits {
		return nil
	}
	return l.store.Decrement(ctx, l.key(key), l.now())
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a process-local Store. It is only correct for a single
// instance; multi-instance deployments use the valkey store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(ttl)}
		m.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt, nil
}

func (m *MemoryStore) Decrement(_ context.Context, key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.windows[key]; ok && !now.After(w.resetAt) && w.count > 0 {
		w.count--
	}
	return nil
}

func (m *MemoryStore) Peek(_ context.Context, key string, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || now.After(w.resetAt) {
		return 0, time.Time{}, nil
	}
	return w.count, w.resetAt, nil
}

// Sweep drops expired windows and returns how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if now.After(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Package ratelimit counts requests per client in fixed windows.  Counters
// live in a CounterStore owned by whoever builds the Limiter, so two gateway
// instances share counts only when they share a store.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Policy is a ceiling of Max requests per Window.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
}

// CounterStore increments the counter for key and reports the value after
// the increment together with the time left until the window rolls over.
// A key that does not exist, or whose window has passed, starts at 1.
// Implementations must be safe for concurrent use and must not lose
// increments under interleaving.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter applies a Policy using a CounterStore.
type Limiter struct {
	Policy Policy
	Store  CounterStore
	Prefix string // key namespace, e.g. "rl"
}

// New returns a limiter; non-positive values in p fall back to one request
// per minute so a broken config fails closed rather than open.
func New(p Policy, store CounterStore, prefix string) *Limiter {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Max < 1 {
		p.Max = 1
	}
	return &Limiter{Policy: p, Store: store, Prefix: prefix}
}

// Key is the store key used for clientKey under this limiter's policy.
func (l *Limiter) Key(clientKey string) string {
	if clientKey == "" {
		clientKey = "unknown"
	}
	if l.Prefix == "" {
		return l.Policy.Name + ":" + clientKey
	}
	return l.Prefix + ":" + l.Policy.Name + ":" + clientKey
}

// Allow counts one request from clientKey.  On a store error the returned
// Decision allows the request and the error is passed back for logging.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	d := Decision{Allowed: true, Limit: l.Policy.Max, Remaining: l.Policy.Max}
	count, resetIn, err := l.Store.Incr(ctx, l.Key(clientKey), l.Policy.Window)
	if err != nil {
		return d, fmt.Errorf("ratelimit %s: %w", l.Policy.Name, err)
	}
	d.ResetIn = resetIn
	d.Remaining = l.Policy.Max - int(count)
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = count <= int64(l.Policy.Max)
	return d, nil
}

// Package probe runs ordered capability probes: a list of lookups tried in
// priority order where the first success wins. Dashboards expose the same
// affordance under several markups across versions, so the options menu,
// inspect button, close buttons and download menu items are all located by
// probing a fixed list of candidates.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/dashcsv/internal/surface"
)

// DefaultInterval is the polling interval used by Wait.
const DefaultInterval = 100 * time.Millisecond

// Probe looks something up once and reports whether it was found.
type Probe[T any] func(ctx context.Context) (T, bool)

// First runs probes in order and returns the first hit.
// It stops early when ctx is done.
func First[T any](ctx context.Context, probes ...Probe[T]) (T, bool) {
	var zero T
	for _, p := range probes {
		if ctx.Err() != nil {
			return zero, false
		}
		if v, ok := p(ctx); ok {
			return v, true
		}
	}
	return zero, false
}

// Wait repeats First every interval until a probe hits or ctx is done.
func Wait[T any](ctx context.Context, interval time.Duration, probes ...Probe[T]) (T, bool) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if v, ok := First(ctx, probes...); ok {
			return v, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-ticker.C:
		}
	}
}

// Find builds a probe that looks q up in scope.
func Find(scope surface.Scope, q surface.Query) Probe[surface.Control] {
	return func(ctx context.Context) (surface.Control, bool) {
		c, err := scope.Find(ctx, q)
		if err != nil || c == nil {
			return nil, false
		}
		return c, true
	}
}

// FindAll builds one probe per query, preserving order.
func FindAll(scope surface.Scope, queries ...surface.Query) []Probe[surface.Control] {
	probes := make([]Probe[surface.Control], 0, len(queries))
	for _, q := range queries {
		probes = append(probes, Find(scope, q))
	}
	return probes
}

// Click builds a probe that finds q in scope and clicks it. The probe hits
// only when the click succeeds, so a matching but unclickable element lets
// the next candidate be tried.
func Click(scope surface.Scope, q surface.Query) Probe[surface.Control] {
	return func(ctx context.Context) (surface.Control, bool) {
		c, err := scope.Find(ctx, q)
		if err != nil || c == nil {
			return nil, false
		}
		if err := c.Click(ctx); err != nil {
			return nil, false
		}
		return c, true
	}
}

// ClickAll builds one click probe per query, preserving order.
func ClickAll(scope surface.Scope, queries ...surface.Query) []Probe[surface.Control] {
	probes := make([]Probe[surface.Control], 0, len(queries))
	for _, q := range queries {
		probes = append(probes, Click(scope, q))
	}
	return probes
}

// Absent reports whether none of the queries match in scope. Lookup errors
// other than ErrNotFound count as present so that callers keep waiting.
func Absent(ctx context.Context, scope surface.Scope, queries ...surface.Query) bool {
	for _, q := range queries {
		_, err := scope.Find(ctx, q)
		if err == nil || !errors.Is(err, surface.ErrNotFound) {
			return false
		}
	}
	return true
}

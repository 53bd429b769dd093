package cache

import (
	"context"
	"time"
)

// Entry names a cache slot as resolved by Get. Writing through the Entry
// returned by the lookup that missed keeps a result computed before an
// Invalidate from landing in the slots read after it.
type Entry string

// ReportCache stores JSON-encoded report results. Invalidate drops every
// entry written before the call.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (Entry, bool, error)
	Set(ctx context.Context, entry Entry, value any, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, key string, _ any) (Entry, bool, error) {
	return Entry(key), false, nil
}

func (NoopReportCache) Set(_ context.Context, _ Entry, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}

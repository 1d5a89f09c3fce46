package geocode

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Result struct {
	Lat   float64
	Lng   float64
	Found bool
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, error)
}

const (
	DefaultRetryInterval = 14 * 24 * time.Hour
	DefaultConcurrency   = 4
)

// Resolver answers address lookups from the table and calls the
// provider only for misses and for negative entries old enough to be
// worth another try. Provider failures degrade to unresolved entries;
// they never surface as errors.
type Resolver struct {
	geocoder      Geocoder
	table         *Table
	retryInterval time.Duration
	concurrency   int
	now           func() time.Time
}

func NewResolver(geocoder Geocoder, table *Table, retryInterval time.Duration, concurrency int) *Resolver {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{
		geocoder:      geocoder,
		table:         table,
		retryInterval: retryInterval,
		concurrency:   concurrency,
		now:           time.Now,
	}
}

// Stats counts provider traffic for operator visibility.
type Stats struct {
	Hits   int64
	Misses int64
	Failed int64
}

// ResolveAll fills the table for all given key -> query pairs with a
// bounded worker pool. Only context cancellation aborts it.
func (r *Resolver) ResolveAll(ctx context.Context, queries map[string]string) (Stats, error) {
	var stats Stats
	if r == nil || r.table == nil || len(queries) == 0 {
		return stats, nil
	}

	pending := map[string]string{}
	for key, query := range queries {
		if key == "" || strings.TrimSpace(query) == "" {
			continue
		}
		if r.isHit(key) {
			stats.Hits++
			continue
		}
		pending[key] = query
	}
	stats.Misses = int64(len(pending))
	if r.geocoder == nil || len(pending) == 0 {
		return stats, nil
	}

	var failed atomic.Int64
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for key, query := range pending {
		key, query := key, query
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := r.geocoder.Geocode(ctx, query)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				result = Result{}
			}
			entry := Entry{
				Query:      query,
				Status:     StatusUnresolved,
				ResolvedAt: r.now(),
			}
			if result.Found {
				entry.Status = StatusResolved
				entry.Lat = result.Lat
				entry.Lng = result.Lng
			}
			r.table.Put(key, entry)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return stats, err
	}
	stats.Failed = failed.Load()
	return stats, nil
}

// Lookup returns the coordinates for a key after ResolveAll ran.
func (r *Resolver) Lookup(key string) (Result, bool) {
	if r == nil || r.table == nil {
		return Result{}, false
	}
	entry, ok := r.table.Get(key)
	if !ok || entry.Status != StatusResolved {
		return Result{}, false
	}
	return Result{Lat: entry.Lat, Lng: entry.Lng, Found: true}, true
}

// isHit reports whether the cached entry answers the lookup without a
// provider call. A resolved entry always does; an unresolved one only
// within the retry interval.
func (r *Resolver) isHit(key string) bool {
	entry, ok := r.table.Get(key)
	if !ok {
		return false
	}
	if entry.Status == StatusResolved {
		return true
	}
	return r.now().Sub(entry.ResolvedAt) < r.retryInterval
}

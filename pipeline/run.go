package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partnermap/artifact"
	"partnermap/classify"
	"partnermap/geocode"
	"partnermap/mapper"
	"partnermap/model"
	"partnermap/rawstore"
	"partnermap/shopware"
)

// Source is the record-fetch capability the pipeline consumes. The
// concrete client lives in shopware; tests inject fixtures.
type Source interface {
	CustomerPages(ctx context.Context, limit int, handler shopware.PageHandler) error
	RecentOrderCounts(ctx context.Context, since time.Time) (map[string]int, error)
}

type Deps struct {
	Source   Source
	Resolver *geocode.Resolver
	Archive  *rawstore.FileStore
	Logger   *slog.Logger
}

type Options struct {
	PageSize      int
	RecencyWindow time.Duration
	ArtifactPath  string
	DecisionPath  string
	Now           func() time.Time
}

// Result reports what one run did. The degraded counters exist for
// operator visibility only; none of them fail the run.
type Result struct {
	Partners        int
	Pages           int
	Fetched         int
	ExcludedGate    int64
	ExcludedNoName  int64
	LocationMissing int64
	GeocodeStats    geocode.Stats
	Decision        artifact.Decision
	ContentHash     string
	Elapsed         time.Duration
}

// staged pairs a normalized partner with the order aggregates that
// exist only to derive its badge. The counts are dropped after
// classification and never reach the artifact.
type staged struct {
	partner     model.Partner
	customerID  string
	totalOrders int
}

// Run executes one full build: fetch everything, normalize, geocode,
// classify, write the artifact and the publish decision. Fatal errors
// are source exhaustion and artifact serialization; per-record problems
// degrade and are counted.
func Run(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	started := time.Now()
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}

	result := &Result{}
	runAt := now()

	rows, err := fetchAndNormalize(ctx, deps, runAt, opts.PageSize, result, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch customers: %w", err)
	}

	recencyWindow := opts.RecencyWindow
	if recencyWindow <= 0 {
		recencyWindow = 300 * 24 * time.Hour
	}
	recentCounts, err := deps.Source.RecentOrderCounts(ctx, runAt.Add(-recencyWindow))
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch recent order counts: %w", err)
	}

	if err := resolveLocations(ctx, deps.Resolver, rows, result); err != nil {
		return nil, err
	}

	partners := make([]model.Partner, 0, len(rows))
	for _, row := range rows {
		badge := classify.Classify(row.totalOrders, recentCounts[row.customerID])
		row.partner.Badge = badge
		row.partner.BadgeTooltip = classify.Tooltip(badge)
		partners = append(partners, row.partner)
	}
	artifact.Sort(partners)
	result.Partners = len(partners)

	previous, err := artifact.LoadPrevious(opts.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load previous artifact: %w", err)
	}
	decision, err := artifact.Compare(previous, partners)
	if err != nil {
		return nil, fmt.Errorf("pipeline: compare artifact: %w", err)
	}
	result.Decision = decision

	meta := artifact.Meta{RunAt: runAt, Source: "shopware"}
	if err := artifact.Write(opts.ArtifactPath, meta, partners); err != nil {
		return nil, fmt.Errorf("pipeline: write artifact: %w", err)
	}
	if opts.DecisionPath != "" {
		if err := artifact.WriteDecision(opts.DecisionPath, decision); err != nil {
			return nil, fmt.Errorf("pipeline: write publish decision: %w", err)
		}
	}
	hash, err := artifact.Hash(partners)
	if err != nil {
		return nil, fmt.Errorf("pipeline: hash artifact: %w", err)
	}
	result.ContentHash = hash
	result.Elapsed = time.Since(started)

	logger.Info("run finished",
		"partners", result.Partners,
		"pages", result.Pages,
		"excluded_gate", result.ExcludedGate,
		"excluded_no_name", result.ExcludedNoName,
		"location_missing", result.LocationMissing,
		"geocode_calls", result.GeocodeStats.Misses,
		"geocode_failed", result.GeocodeStats.Failed,
		"changed", decision.Changed,
	)
	return result, nil
}

func fetchAndNormalize(ctx context.Context, deps Deps, runAt time.Time, pageSize int, result *Result, logger *slog.Logger) ([]*staged, error) {
	var rows []*staged
	err := deps.Source.CustomerPages(ctx, pageSize, func(resp *shopware.CustomerSearchResponse) error {
		result.Pages++
		for _, customer := range resp.Data {
			result.Fetched++
			archiveRaw(deps.Archive, customer, runAt, logger)

			partner, ok := mapper.Normalize(customer)
			if !ok {
				if mapper.Listed(customer) {
					// Gated in but unusable: the only silent-exclusion
					// reason left is a missing display name.
					result.ExcludedNoName++
				} else {
					result.ExcludedGate++
				}
				continue
			}
			rows = append(rows, &staged{
				partner:     partner,
				customerID:  customer.ID,
				totalOrders: customer.OrderCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func resolveLocations(ctx context.Context, resolver *geocode.Resolver, rows []*staged, result *Result) error {
	queries := map[string]string{}
	for _, row := range rows {
		if !row.partner.HasAddress() {
			continue
		}
		key := geocode.Key(row.partner.PostalCode, row.partner.City, row.partner.Country)
		queries[key] = geoQuery(row.partner)
	}

	if resolver != nil {
		stats, err := resolver.ResolveAll(ctx, queries)
		if err != nil {
			return fmt.Errorf("pipeline: resolve locations: %w", err)
		}
		result.GeocodeStats = stats
	}

	for _, row := range rows {
		if row.partner.HasAddress() && resolver != nil {
			key := geocode.Key(row.partner.PostalCode, row.partner.City, row.partner.Country)
			if coords, ok := resolver.Lookup(key); ok {
				row.partner.Location = &model.Coordinates{Lat: coords.Lat, Lng: coords.Lng}
			}
		}
		if row.partner.Location == nil {
			row.partner.NoLocation = true
			result.LocationMissing++
		}
	}
	return nil
}

func geoQuery(partner model.Partner) string {
	parts := make([]string, 0, 3)
	for _, value := range []string{partner.PostalCode, partner.City, partner.Country} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func archiveRaw(archive *rawstore.FileStore, customer shopware.Customer, runAt time.Time, logger *slog.Logger) {
	if archive == nil {
		return
	}
	payload, err := json.Marshal(customer)
	if err != nil {
		logger.Warn("raw archive encode failed", "customer_id", customer.ID, "error", err)
		return
	}
	record := model.RawCustomer{
		Source:     "shopware",
		CustomerID: customer.ID,
		FetchedAt:  runAt,
		Payload:    payload,
	}
	if err := archive.Append(record); err != nil {
		logger.Warn("raw archive write failed", "customer_id", customer.ID, "error", err)
	}
}

// Metrics flattens the result into runlog metrics.
func (r *Result) Metrics() map[string]int64 {
	if r == nil {
		return nil
	}
	changed := int64(0)
	if r.Decision.Changed {
		changed = 1
	}
	return map[string]int64{
		"partners":         int64(r.Partners),
		"pages":            int64(r.Pages),
		"fetched":          int64(r.Fetched),
		"excluded_gate":    r.ExcludedGate,
		"excluded_no_name": r.ExcludedNoName,
		"location_missing": r.LocationMissing,
		"geocode_hits":     r.GeocodeStats.Hits,
		"geocode_misses":   r.GeocodeStats.Misses,
		"geocode_failed":   r.GeocodeStats.Failed,
		"changed":          changed,
	}
}

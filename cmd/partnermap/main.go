package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"partnermap/config"
	"partnermap/geocode"
	"partnermap/pipeline"
	"partnermap/rawstore"
	"partnermap/runlog"
	"partnermap/runstate"
	"partnermap/shopware"
)

const (
	defaultScheduleAt = "04:30"
	maxRunRetry       = 3
	runRetryBaseDelay = 2 * time.Minute
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "Path to YAML config (optional)")
		schedule    = flag.Bool("schedule", false, "Run daily schedule loop")
		scheduleAt  = flag.String("schedule-at", defaultScheduleAt, "Daily run time (HH:MM, local time)")
		recencyDays = flag.Int("recency-days", 0, "Override recency window in days")
		concurrency = flag.Int("geocode-concurrency", 0, "Override geocode worker count")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *recencyDays > 0 {
		cfg.Pipeline.RecencyWindowDays = *recencyDays
	}
	if *concurrency > 0 {
		cfg.Geocoder.Concurrency = *concurrency
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *schedule {
		if err := scheduleDaily(ctx, cfg, logger, *scheduleAt); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	result, err := runOnce(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("partners=%d pages=%d geocode_calls=%d changed=%v elapsed=%s\n",
		result.Partners, result.Pages, result.GeocodeStats.Misses, result.Decision.Changed,
		result.Elapsed.Round(time.Millisecond))
}

func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Result, error) {
	recorder := runlog.NewRecorder(cfg.Paths.RunLog)
	record, err := recorder.Start(time.Now())
	if err != nil {
		return nil, err
	}

	result, runErr := execute(ctx, cfg, logger)
	var metrics map[string]int64
	if result != nil {
		metrics = result.Metrics()
	}
	if err := recorder.Finish(record, metrics, runErr); err != nil {
		logger.Warn("run record write failed", "error", err)
	}
	return result, runErr
}

func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Result, error) {
	store, err := geocode.OpenStore(cfg.Paths.CacheDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	entries, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	table := geocode.NewTable(entries)

	geocoderOpts := []geocode.NominatimOption{}
	if cfg.Geocoder.BaseURL != "" {
		geocoderOpts = append(geocoderOpts, geocode.WithBaseURL(cfg.Geocoder.BaseURL))
	}
	if cfg.Geocoder.RequestsPerSec > 0 {
		geocoderOpts = append(geocoderOpts, geocode.WithRateLimit(rate.Limit(cfg.Geocoder.RequestsPerSec)))
	}
	geocoder := geocode.NewNominatim(geocoderOpts...)
	resolver := geocode.NewResolver(geocoder, table, cfg.GeocodeRetryInterval(), cfg.Geocoder.Concurrency)

	clientOpts := []shopware.Option{}
	if cfg.Shopware.RequestsPerSec > 0 {
		clientOpts = append(clientOpts, shopware.WithRateLimit(rate.Limit(cfg.Shopware.RequestsPerSec)))
	}
	if cfg.Shopware.RetryAttempts > 0 {
		clientOpts = append(clientOpts, shopware.WithRetryConfig(shopware.RetryConfig{
			MaxAttempts: cfg.Shopware.RetryAttempts,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			StatusCodes: map[int]struct{}{429: {}, 500: {}, 502: {}, 503: {}, 504: {}},
		}))
	}
	client := shopware.NewClient(cfg.Shopware.BaseURL, cfg.Shopware.ClientID, cfg.Shopware.ClientSecret, clientOpts...)

	archive := rawstore.NewFileStore(cfg.Paths.RawDir)
	defer archive.Close()

	result, err := pipeline.Run(ctx, pipeline.Deps{
		Source:   client,
		Resolver: resolver,
		Archive:  archive,
		Logger:   logger,
	}, pipeline.Options{
		PageSize:      cfg.Shopware.PageSize,
		RecencyWindow: cfg.RecencyWindow(),
		ArtifactPath:  cfg.Paths.Artifact,
		DecisionPath:  cfg.Paths.Decision,
	})
	if err != nil {
		return nil, err
	}

	if err := store.Upsert(table.DirtyEntries()); err != nil {
		return result, err
	}
	if err := runstate.Save(cfg.Paths.State, &runstate.State{
		LastRunAt:       time.Now(),
		LastContentHash: result.ContentHash,
		LastPublished:   result.Decision.Changed,
	}); err != nil {
		return result, err
	}
	return result, nil
}

func scheduleDaily(ctx context.Context, cfg *config.Config, logger *slog.Logger, scheduleAt string) error {
	hour, minute, err := parseScheduleAt(scheduleAt)
	if err != nil {
		return err
	}
	for {
		next := nextRunTime(time.Now(), hour, minute)
		logger.Info("waiting for next run", "at", next)
		if err := sleepUntil(ctx, next); err != nil {
			return err
		}
		if err := runWithRetry(ctx, cfg, logger); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}
}

func runWithRetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= maxRunRetry; attempt++ {
		_, err := runOnce(ctx, cfg, logger)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := runRetryBaseDelay * time.Duration(attempt)
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func parseScheduleAt(value string) (int, int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid schedule-at format: %s", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid schedule-at hour: %s", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid schedule-at minute: %s", value)
	}
	return hour, minute, nil
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func sleepUntil(ctx context.Context, target time.Time) error {
	return sleepWithContext(ctx, time.Until(target))
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ingestor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jpillora/backoff"

	"BandScanner/internal/cache"
	"BandScanner/internal/calculator"
	"BandScanner/internal/fetcher"
	"BandScanner/internal/model"
)

// DefaultHistoryYears is the cold-fetch lookback window.
const DefaultHistoryYears = 10

// Ingestor reconciles the price cache against the upstream quote source,
// fetching the minimal incremental window per symbol and recomputing the
// affected indicator values.
type Ingestor struct {
	Cache        *cache.PriceCache
	Fetcher      fetcher.Fetcher
	HistoryYears int
	MaxRetries   int
	Now          func() time.Time // injectable clock for tests
}

// New creates an Ingestor with default history window and retry budget.
func New(c *cache.PriceCache, f fetcher.Fetcher) *Ingestor {
	return &Ingestor{
		Cache:        c,
		Fetcher:      f,
		HistoryYears: DefaultHistoryYears,
		MaxRetries:   3,
		Now:          time.Now,
	}
}

// EnsureFresh guarantees the cache holds up-to-date history for the symbol and
// returns the full daily and weekly series, indicators included. When the
// cache already covers the most recent completed trading day, no network call
// is made. A fetch or parse failure leaves the last-known-good cache untouched.
func (g *Ingestor) EnsureFresh(ctx context.Context, symbol string) (daily, weekly []model.Bar, err error) {
	md, err := g.Cache.GetMetadata(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata for %s: %w", symbol, err)
	}

	today := lastCompletedTradingDay(g.Now())

	var fetchFrom time.Time
	switch {
	case md == nil || md.LastDate.IsZero():
		fetchFrom = today.AddDate(-g.HistoryYears, 0, 0)
	case md.LastDate.Before(today):
		fetchFrom = md.LastDate.AddDate(0, 0, 1)
	default:
		// Cache is current: the common case, zero network calls.
		return g.loadCached(ctx, symbol, md)
	}

	fresh, err := g.fetchWithRetry(ctx, symbol, fetchFrom, today)
	if err != nil {
		if errors.Is(err, fetcher.ErrNoData) && md != nil {
			// Nothing new upstream (holiday, thin symbol): serve the cache.
			log.Printf("[INFO] %s: no new bars upstream, serving cache", symbol)
			return g.loadCached(ctx, symbol, md)
		}
		return nil, nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	return g.ingest(ctx, symbol, fresh)
}

// ingest merges freshly fetched bars into the cached history, recomputes
// indicators over the affected tail, resamples weekly bars, and writes
// everything back in key-idempotent upserts.
func (g *Ingestor) ingest(ctx context.Context, symbol string, fresh []model.Bar) ([]model.Bar, []model.Bar, error) {
	cached, err := g.Cache.GetRange(ctx, symbol, model.FreqDaily, time.Time{}, time.Time{})
	if err != nil {
		return nil, nil, fmt.Errorf("load cached daily for %s: %w", symbol, err)
	}

	merged, firstNew := mergeBars(cached, fresh)
	daily := calculator.ComputeDailyIncremental(merged, firstNew)

	weekly := calculator.ComputeWeekly(calculator.ResampleWeekly(daily))

	if _, err := g.Cache.Upsert(ctx, symbol, model.FreqDaily, daily[firstNew:]); err != nil {
		return nil, nil, fmt.Errorf("upsert daily for %s: %w", symbol, err)
	}
	if _, err := g.Cache.Upsert(ctx, symbol, model.FreqWeekly, weekly); err != nil {
		return nil, nil, fmt.Errorf("upsert weekly for %s: %w", symbol, err)
	}
	return daily, weekly, nil
}

// loadCached serves both series straight from the cache, rebuilding metadata
// first if it has drifted from the bar tables.
func (g *Ingestor) loadCached(ctx context.Context, symbol string, md *model.SymbolMetadata) ([]model.Bar, []model.Bar, error) {
	daily, err := g.Cache.GetRange(ctx, symbol, model.FreqDaily, time.Time{}, time.Time{})
	if err != nil {
		return nil, nil, fmt.Errorf("load cached daily for %s: %w", symbol, err)
	}
	if len(daily) != md.DailyCount {
		log.Printf("[WARN] %s: metadata drift (count %d vs %d bars), rebuilding", symbol, md.DailyCount, len(daily))
		if err := g.Cache.RebuildMetadata(ctx, symbol); err != nil {
			return nil, nil, fmt.Errorf("rebuild metadata for %s: %w", symbol, err)
		}
	}
	weekly, err := g.Cache.GetRange(ctx, symbol, model.FreqWeekly, time.Time{}, time.Time{})
	if err != nil {
		return nil, nil, fmt.Errorf("load cached weekly for %s: %w", symbol, err)
	}
	return daily, weekly, nil
}

// fetchWithRetry retries transient upstream failures a bounded number of times
// with jittered exponential backoff. ErrNoData is not retried.
func (g *Ingestor) fetchWithRetry(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 0; attempt <= g.MaxRetries; attempt++ {
		bars, err := g.Fetcher.FetchHistory(ctx, symbol, from, to)
		if err == nil {
			return bars, nil
		}
		if errors.Is(err, fetcher.ErrNoData) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < g.MaxRetries {
			d := b.Duration()
			log.Printf("[WARN] %s: fetch attempt %d failed (%v), retrying in %s", symbol, attempt+1, err, d)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// mergeBars combines cached and fresh daily bars, deduplicated by date with
// the fresh bar winning (same-day revisions), and returns the merged ascending
// series plus the index of the first bar whose indicators need recomputing.
func mergeBars(cached, fresh []model.Bar) ([]model.Bar, int) {
	dirty := make(map[string]bool, len(fresh))
	byDate := make(map[string]int, len(cached)+len(fresh))
	merged := make([]model.Bar, len(cached))
	copy(merged, cached)
	for i, b := range merged {
		byDate[b.DateKey()] = i
	}

	for _, b := range fresh {
		// Fresh bars carry no indicators; the affected tail is recomputed.
		b.SMA200, b.EMA200 = nil, nil
		dirty[b.DateKey()] = true
		if i, ok := byDate[b.DateKey()]; ok {
			merged[i] = b
			continue
		}
		byDate[b.DateKey()] = len(merged)
		merged = append(merged, b)
	}
	sortBars(merged)

	firstNew := len(merged)
	for i, b := range merged {
		if dirty[b.DateKey()] {
			firstNew = i
			break
		}
	}
	return merged, firstNew
}

func sortBars(bars []model.Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// lastCompletedTradingDay returns the most recent weekday on or before now's
// date. Exchange holidays are not modelled; a holiday simply yields an empty
// incremental fetch.
func lastCompletedTradingDay(now time.Time) time.Time {
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

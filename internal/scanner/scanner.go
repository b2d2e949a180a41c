package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"BandScanner/internal/ingestor"
	"BandScanner/internal/model"
	"BandScanner/internal/resultstore"
	"BandScanner/internal/stage"
	"BandScanner/internal/strategy"
)

// Config bounds the scan's concurrency and upstream pressure.
type Config struct {
	Concurrency   int           // worker pool size per batch
	BatchSize     int           // symbols per batch
	BatchCooldown time.Duration // hard pause between batches
	ChartTail     int           // bars included in chart series
}

// DefaultConfig mirrors the production scan profile.
func DefaultConfig() Config {
	return Config{
		Concurrency:   5,
		BatchSize:     20,
		BatchCooldown: 100 * time.Millisecond,
		ChartTail:     180,
	}
}

// Scanner drives the symbol universe through ingestion and rule evaluation
// under bounded concurrency, isolating per-symbol failures, and assembles the
// daily summary.
type Scanner struct {
	Ingestor *ingestor.Ingestor
	Store    *resultstore.Store
	Cfg      Config
	Now      func() time.Time
}

// New creates a Scanner, filling zero config fields with defaults.
func New(g *ingestor.Ingestor, store *resultstore.Store, cfg Config) *Scanner {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchCooldown <= 0 {
		cfg.BatchCooldown = def.BatchCooldown
	}
	if cfg.ChartTail <= 0 {
		cfg.ChartTail = def.ChartTail
	}
	return &Scanner{Ingestor: g, Store: store, Cfg: cfg, Now: time.Now}
}

// ScanAll processes every symbol in fixed-size batches with a cooldown between
// batches. A symbol failure is logged and counted, never fatal; only a storage
// failure writing the summary aborts the run. The "latest" alias is
// republished only after a completed run's summary write succeeds. When ctx is
// cancelled, in-flight symbols finish, no new batch is dispatched, and the run
// ends as partially failed with "latest" untouched.
func (s *Scanner) ScanAll(ctx context.Context, symbols []string) (*model.DailySummary, error) {
	runID := uuid.NewString()
	start := s.Now()
	log.Printf("[INFO] scan %s starting for %d symbols", runID, len(symbols))

	var (
		mu        sync.Mutex
		entries   []model.SummaryEntry
		processed int
		failed    int
	)
	status := model.RunRunning

	for batchStart := 0; batchStart < len(symbols); batchStart += s.Cfg.BatchSize {
		if ctx.Err() != nil {
			log.Printf("[WARN] scan %s aborted after %d symbols", runID, processed)
			status = model.RunPartiallyFailed
			break
		}
		batchEnd := batchStart + s.Cfg.BatchSize
		if batchEnd > len(symbols) {
			batchEnd = len(symbols)
		}
		batch := symbols[batchStart:batchEnd]

		var wg sync.WaitGroup
		sem := make(chan struct{}, s.Cfg.Concurrency)
		for _, symbol := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(symbol string) {
				defer wg.Done()
				defer func() { <-sem }()
				entry, err := s.scanSymbol(ctx, symbol)
				mu.Lock()
				defer mu.Unlock()
				processed++
				if err != nil {
					failed++
					log.Printf("[ERROR] scan %s: symbol %s failed: %v", runID, symbol, err)
					return
				}
				if entry != nil {
					entries = append(entries, *entry)
				}
			}(symbol)
		}
		wg.Wait()

		if batchEnd < len(symbols) {
			// Hard throttle between batches, shared by all workers.
			select {
			case <-time.After(s.Cfg.BatchCooldown):
			case <-ctx.Done():
			}
		}
	}

	if status == model.RunRunning {
		// A cancellation during the final batch or cooldown never reaches the
		// top-of-loop check, so it must be caught here before the run can be
		// promoted to completed.
		if ctx.Err() != nil {
			log.Printf("[WARN] scan %s cancelled during final batch", runID)
			status = model.RunPartiallyFailed
		} else {
			status = model.RunCompleted
		}
	}

	summary := s.buildSummary(runID, entries, processed-failed, failed, start, status)
	if err := s.Store.SaveSummary(summary); err != nil {
		return nil, fmt.Errorf("save daily summary: %w", err)
	}
	if status == model.RunCompleted {
		if err := s.Store.PublishLatest(summary); err != nil {
			return nil, fmt.Errorf("publish latest summary: %w", err)
		}
	}
	log.Printf("[INFO] scan %s %s: %d signals, %d candidates, %d failed",
		runID, status, summary.Summary.SignalsCount, summary.Summary.CandidatesCount, failed)
	return summary, nil
}

// ErrNeedsForce is returned by Analyze when no prior result exists and the
// caller has not opted into a forced on-demand analysis.
var ErrNeedsForce = errors.New("no prior analysis; forced analysis required")

// Analyze serves the on-demand single-symbol entry point. Without force it
// only returns an existing result; with force it runs the full pipeline for
// that one symbol synchronously, outside any scheduled run.
func (s *Scanner) Analyze(ctx context.Context, symbol string, force bool) (*model.ScanResult, error) {
	if !force {
		res, err := s.Store.LoadResult(symbol)
		if errors.Is(err, resultstore.ErrNotFound) {
			return nil, ErrNeedsForce
		}
		return res, err
	}
	if _, err := s.scanSymbol(ctx, symbol); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", symbol, err)
	}
	return s.Store.LoadResult(symbol)
}

// scanSymbol is one work unit: freshen the cache, run the four-stage rule
// pipeline against the symbol's document, and persist the merged result.
// Returns the symbol's summary entry, or nil when it is neither a signal nor
// a candidate.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string) (*model.SummaryEntry, error) {
	daily, weekly, err := s.Ingestor.EnsureFresh(ctx, symbol)
	if err != nil {
		return nil, err
	}

	doc, err := s.Store.LoadResult(symbol)
	if errors.Is(err, resultstore.ErrNotFound) {
		doc = &model.ScanResult{Symbol: symbol, Setups: []model.Setup{}, FVGs: []model.FVG{}, Signals: []model.Signal{}}
	} else if err != nil {
		return nil, err
	}

	trend := strategy.CheckTrend(daily, weekly)
	doc.TrendCheck = &trend
	// Stage classification is an independent read of the same bars; it is
	// written even when the trend gate fails.
	doc.Stage = stage.Classify(daily)
	doc.LastUpdated = s.Now().Format(time.RFC3339)
	doc.LastScan = s.Now().Format("2006-01-02")

	var newSignal *model.Signal
	if trend.Passed {
		newSignal = s.evaluate(doc, daily)
	}
	doc.Chart = buildChartData(doc, daily, weekly, s.Cfg.ChartTail, s.Now())

	if err := s.Store.SaveResult(doc); err != nil {
		return nil, fmt.Errorf("save result for %s: %w", symbol, err)
	}

	if newSignal != nil {
		return &model.SummaryEntry{
			Symbol:     symbol,
			SignalType: "s2_breakout",
			Score:      newSignal.Score,
			SignalDate: newSignal.SignalDate,
		}, nil
	}
	if entry := s.candidateEntry(doc); entry != nil {
		return entry, nil
	}
	return nil, nil
}

// evaluate runs rules ②-④ over the document, merging newly found setups,
// FVGs, and signals by ID. FVG status transitions are applied here and are
// terminal: a consumed or violated gap is never re-evaluated.
func (s *Scanner) evaluate(doc *model.ScanResult, daily []model.Bar) *model.Signal {
	setupByID := make(map[string]model.Setup, len(doc.Setups))
	for _, st := range doc.Setups {
		setupByID[st.ID] = st
	}
	for _, st := range strategy.FindSetups(daily) {
		if _, ok := setupByID[st.ID]; !ok {
			doc.Setups = append(doc.Setups, st)
			setupByID[st.ID] = st
		}
	}

	coveredSetups := make(map[string]bool, len(doc.FVGs))
	for _, f := range doc.FVGs {
		coveredSetups[f.SetupID] = true
	}
	for _, st := range doc.Setups {
		if coveredSetups[st.ID] {
			continue // first qualifying gap per setup already recorded
		}
		if fvg := strategy.DetectFVG(daily, st); fvg != nil {
			doc.FVGs = append(doc.FVGs, *fvg)
			coveredSetups[st.ID] = true
		}
	}

	signalIDs := make(map[string]bool, len(doc.Signals))
	for _, sig := range doc.Signals {
		signalIDs[sig.ID] = true
	}
	var newSignal *model.Signal
	for i := range doc.FVGs {
		fvg := &doc.FVGs[i]
		if fvg.Status != model.FVGActive {
			continue
		}
		setup, ok := setupByID[fvg.SetupID]
		if !ok {
			continue
		}
		status, sig := strategy.EvaluateFVG(daily, setup, *fvg)
		fvg.Status = status
		if sig != nil && !signalIDs[sig.ID] {
			doc.Signals = append(doc.Signals, *sig)
			signalIDs[sig.ID] = true
			newSignal = sig
		}
	}
	return newSignal
}

// candidateEntry reports the symbol as a candidate when it holds any active,
// unconsumed FVG, scored without the breakout component.
func (s *Scanner) candidateEntry(doc *model.ScanResult) *model.SummaryEntry {
	setupByID := make(map[string]model.Setup, len(doc.Setups))
	for _, st := range doc.Setups {
		setupByID[st.ID] = st
	}
	for i := len(doc.FVGs) - 1; i >= 0; i-- {
		fvg := doc.FVGs[i]
		if fvg.Status != model.FVGActive {
			continue
		}
		setup, ok := setupByID[fvg.SetupID]
		if !ok {
			continue
		}
		return &model.SummaryEntry{
			Symbol:     doc.Symbol,
			SignalType: "s1_fvg",
			Score:      strategy.Score(setup, fvg, nil),
			FVGDate:    fvg.FormationDate,
		}
	}
	return nil
}

func (s *Scanner) buildSummary(runID string, entries []model.SummaryEntry, totalScanned, failed int, start time.Time, status model.RunStatus) *model.DailySummary {
	end := s.Now()
	signals := []model.SummaryEntry{}
	candidates := []model.SummaryEntry{}
	for _, e := range entries {
		if e.SignalType == "s2_breakout" {
			signals = append(signals, e)
		} else {
			candidates = append(candidates, e)
		}
	}
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].Score > signals[j].Score })
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	duration := end.Sub(start).Seconds()
	var avgMS float64
	if totalScanned > 0 {
		avgMS = duration / float64(totalScanned) * 1000
	}
	return &model.DailySummary{
		RunID:           runID,
		ScanDate:        end.Format("2006-01-02"),
		ScanTime:        end.Format("15:04:05"),
		DurationSeconds: duration,
		TotalScanned:    totalScanned,
		FailedCount:     failed,
		Status:          status,
		Summary: model.SummaryCounts{
			SignalsCount:    len(signals),
			CandidatesCount: len(candidates),
			Signals:         signals,
			Candidates:      candidates,
		},
		Performance: model.PerformanceStats{AvgTimePerSymbolMS: avgMS},
	}
}

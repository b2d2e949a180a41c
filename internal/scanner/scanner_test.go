package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandScanner/internal/cache"
	"BandScanner/internal/fetcher"
	"BandScanner/internal/ingestor"
	"BandScanner/internal/model"
	"BandScanner/internal/resultstore"
)

var testToday = time.Date(2024, 6, 14, 18, 0, 0, 0, time.UTC) // Friday

// flatSeries builds n weekday bars ending 2024-06-14 with every close exactly
// 100, so SMA200 and EMA200 are both exactly 100 once the warmup passes.
// Opens are nudged off 100 so no bar accidentally forms a setup.
func flatSeries(symbol string, n int) []model.Bar {
	bars := make([]model.Bar, n)
	d := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	for i := n - 1; i >= 0; i-- {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		bars[i] = model.Bar{
			Symbol: symbol,
			Date:   d,
			Open:   100.01, High: 100.5, Low: 99.5, Close: 100, Volume: 1000,
		}
		d = d.AddDate(0, 0, -1)
	}
	return bars
}

// patternSeries shapes the last 11 bars of a long flat series into a setup at
// S, a fair value gap at S+4, and (when breakout is true) a confirming
// breakout on the final bar. 1060 bars give the weekly SMA200 enough history.
func patternSeries(symbol string, breakout bool) []model.Bar {
	bars := flatSeries(symbol, 1060)
	s := len(bars) - 11

	set := func(i int, o, h, l, c float64) {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = o, h, l, c
	}
	set(s, 100, 100.3, 99.8, 100)           // setup: open/close exactly on the band
	set(s+1, 100.1, 100.45, 99.9, 100.1)    //
	set(s+2, 100.1, 100.4, 99.9, 100.15)    //
	set(s+3, 100.2, 100.5, 100.0, 100.3)    // resistance high: 100.5
	set(s+4, 100.5, 100.7, 100.45, 100.6)   // gap: low 100.45 > bar s+2 high 100.4
	set(s+5, 100.5, 100.6, 100.45, 100.5)   //
	set(s+6, 100.5, 100.6, 100.45, 100.5)   //
	set(s+7, 100.5, 100.6, 100.45, 100.5)   //
	set(s+8, 100.5, 100.6, 100.45, 100.5)   //
	set(s+9, 100.5, 100.6, 100.45, 100.5)   //
	if breakout {
		set(s+10, 100.5, 100.9, 100.5, 100.8) // close > 100.5 * 1.001
	} else {
		set(s+10, 100.5, 100.6, 100.5, 100.55)
	}
	return bars
}

func newTestScanner(t *testing.T, bars map[string][]model.Bar) (*Scanner, *resultstore.Store, *fetcher.MockFetcher) {
	t.Helper()
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	mock := &fetcher.MockFetcher{Bars: bars}
	g := ingestor.New(c, mock)
	g.MaxRetries = 0
	g.Now = func() time.Time { return testToday }

	store, err := resultstore.Open(t.TempDir())
	require.NoError(t, err)

	sc := New(g, store, Config{Concurrency: 3, BatchSize: 4, BatchCooldown: time.Millisecond, ChartTail: 180})
	sc.Now = func() time.Time { return testToday }
	return sc, store, mock
}

func TestScanAll_SignalAndCandidateAggregation(t *testing.T) {
	bars := map[string][]model.Bar{
		"SIG":  patternSeries("SIG", true),
		"CAND": patternSeries("CAND", false),
		"FLAT": flatSeries("FLAT", 1060),
	}
	sc, store, _ := newTestScanner(t, bars)

	sum, err := sc.ScanAll(context.Background(), []string{"SIG", "CAND", "FLAT"})
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, sum.Status)
	assert.Equal(t, 3, sum.TotalScanned)
	assert.Equal(t, 0, sum.FailedCount)

	require.Equal(t, 1, sum.Summary.SignalsCount)
	assert.Equal(t, "SIG", sum.Summary.Signals[0].Symbol)
	assert.Equal(t, "s2_breakout", sum.Summary.Signals[0].SignalType)
	assert.Equal(t, "2024-06-14", sum.Summary.Signals[0].SignalDate)

	require.Equal(t, 1, sum.Summary.CandidatesCount)
	assert.Equal(t, "CAND", sum.Summary.Candidates[0].Symbol)
	assert.Equal(t, "s1_fvg", sum.Summary.Candidates[0].SignalType)

	// The signal symbol's document holds the full linked chain.
	doc, err := store.LoadResult("SIG")
	require.NoError(t, err)
	require.Len(t, doc.Setups, 1)
	require.Len(t, doc.FVGs, 1)
	require.Len(t, doc.Signals, 1)
	assert.Equal(t, model.FVGConsumed, doc.FVGs[0].Status)
	assert.Equal(t, doc.Setups[0].ID, doc.FVGs[0].SetupID)
	assert.Equal(t, doc.FVGs[0].ID, doc.Signals[0].FVGID)
	assert.Equal(t, 100.5, doc.Signals[0].ResistancePrice)
	require.NotNil(t, doc.Chart)
	assert.Len(t, doc.Chart.Candles, 180)
	assert.NotEmpty(t, doc.Chart.WeeklySMA200)
	require.Len(t, doc.Chart.Markers, 1)

	// Latest pointer published for the completed run.
	latest, err := store.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, latest.RunID)

	// The trend-failing symbol still gets a result document.
	flat, err := store.LoadResult("FLAT")
	require.NoError(t, err)
	require.NotNil(t, flat.TrendCheck)
	assert.False(t, flat.TrendCheck.Passed)
	assert.Empty(t, flat.Setups)
	require.NotNil(t, flat.Stage, "stage classification is written regardless of the trend gate")
	assert.Equal(t, "Distribution", flat.Stage.StageName)
}

func TestScanAll_IsolatesSymbolFailure(t *testing.T) {
	bars := map[string][]model.Bar{}
	symbols := make([]string, 20)
	for i := range symbols {
		sym := fmt.Sprintf("S%02d", i+1)
		symbols[i] = sym
		if i != 6 { // symbol #7 has no upstream data and fails its cold fetch
			bars[sym] = flatSeries(sym, 260)
		}
	}
	sc, store, _ := newTestScanner(t, bars)

	sum, err := sc.ScanAll(context.Background(), symbols)
	require.NoError(t, err)

	assert.Equal(t, model.RunCompleted, sum.Status)
	assert.Equal(t, 19, sum.TotalScanned, "total_scanned excludes only the failed symbol")
	assert.Equal(t, 1, sum.FailedCount)

	for i, sym := range symbols {
		_, err := store.LoadResult(sym)
		if i == 6 {
			assert.True(t, errors.Is(err, resultstore.ErrNotFound), "failed symbol must have no result")
		} else {
			assert.NoError(t, err, "symbol %s should have a result", sym)
		}
	}
}

func TestScanAll_CancelledRunLeavesLatestUntouched(t *testing.T) {
	bars := map[string][]model.Bar{"S1": flatSeries("S1", 260)}
	sc, store, mock := newTestScanner(t, bars)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := sc.ScanAll(ctx, []string{"S1", "S2", "S3"})
	require.NoError(t, err)

	assert.Equal(t, model.RunPartiallyFailed, sum.Status)
	assert.Equal(t, 0, mock.CallCount(), "no batch may be dispatched after cancellation")

	_, err = store.LoadLatest()
	assert.True(t, errors.Is(err, resultstore.ErrNotFound), "latest must not point at an aborted run")
}

// cancelOnFetch cancels its context when the first fetch is dispatched, so
// cancellation lands while the final batch is still in flight.
type cancelOnFetch struct {
	inner  *fetcher.MockFetcher
	cancel context.CancelFunc
	once   sync.Once
}

func (f *cancelOnFetch) Name() string { return f.inner.Name() }

func (f *cancelOnFetch) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	f.once.Do(f.cancel)
	return f.inner.FetchHistory(ctx, symbol, from, to)
}

func TestScanAll_CancelDuringFinalBatchIsPartiallyFailed(t *testing.T) {
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	bars := map[string][]model.Bar{
		"S1": flatSeries("S1", 260),
		"S2": flatSeries("S2", 260),
		"S3": flatSeries("S3", 260),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &cancelOnFetch{inner: &fetcher.MockFetcher{Bars: bars}, cancel: cancel}

	g := ingestor.New(c, f)
	g.MaxRetries = 0
	g.Now = func() time.Time { return testToday }

	store, err := resultstore.Open(t.TempDir())
	require.NoError(t, err)
	sc := New(g, store, Config{Concurrency: 1, BatchSize: 4, BatchCooldown: time.Millisecond, ChartTail: 180})
	sc.Now = func() time.Time { return testToday }

	// All three symbols fit in one batch, so cancellation arrives after the
	// only top-of-loop check has already passed.
	sum, err := sc.ScanAll(ctx, []string{"S1", "S2", "S3"})
	require.NoError(t, err)

	assert.Equal(t, model.RunPartiallyFailed, sum.Status, "a run aborted mid-batch must not report completed")
	_, err = store.LoadLatest()
	assert.True(t, errors.Is(err, resultstore.ErrNotFound), "latest must not point at an aborted run")
}

func TestAnalyze_ForceSemantics(t *testing.T) {
	bars := map[string][]model.Bar{"SIG": patternSeries("SIG", true)}
	sc, _, _ := newTestScanner(t, bars)
	ctx := context.Background()

	// No prior result and no force: the caller must confirm first.
	_, err := sc.Analyze(ctx, "SIG", false)
	assert.True(t, errors.Is(err, ErrNeedsForce))

	res, err := sc.Analyze(ctx, "SIG", true)
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)

	// With a stored result, force is no longer needed.
	res, err = sc.Analyze(ctx, "SIG", false)
	require.NoError(t, err)
	assert.Equal(t, "SIG", res.Symbol)
}

func TestRescan_TerminalFVGStatesNeverTransition(t *testing.T) {
	bars := map[string][]model.Bar{"SIG": patternSeries("SIG", true)}
	sc, store, _ := newTestScanner(t, bars)
	ctx := context.Background()

	_, err := sc.ScanAll(ctx, []string{"SIG"})
	require.NoError(t, err)
	doc, err := store.LoadResult("SIG")
	require.NoError(t, err)
	require.Len(t, doc.Signals, 1)
	assert.Equal(t, model.FVGConsumed, doc.FVGs[0].Status)

	// A second run over identical data must not re-emit the signal or touch
	// the consumed FVG.
	_, err = sc.ScanAll(ctx, []string{"SIG"})
	require.NoError(t, err)
	doc, err = store.LoadResult("SIG")
	require.NoError(t, err)
	assert.Len(t, doc.Signals, 1)
	assert.Equal(t, model.FVGConsumed, doc.FVGs[0].Status)
}

func TestScanSymbol_ViolatedFVGEmitsNoSignal(t *testing.T) {
	bars := patternSeries("VIO", true)
	s := len(bars) - 11
	bars[s+6].Low = 100.0 // dips under the gap's lower bound before breakout
	sc, store, _ := newTestScanner(t, map[string][]model.Bar{"VIO": bars})

	sum, err := sc.ScanAll(context.Background(), []string{"VIO"})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Summary.SignalsCount)
	assert.Equal(t, 0, sum.Summary.CandidatesCount)

	doc, err := store.LoadResult("VIO")
	require.NoError(t, err)
	require.Len(t, doc.FVGs, 1)
	assert.Equal(t, model.FVGViolated, doc.FVGs[0].Status)
	assert.Empty(t, doc.Signals)
}

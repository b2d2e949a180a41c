package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandScanner/internal/model"
)

// genBars builds count weekday bars ending near the given start date, with a
// deterministic but non-trivial close series.
func genBars(symbol string, start time.Time, count int, base float64) []model.Bar {
	bars := make([]model.Bar, 0, count)
	d := start
	for len(bars) < count {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			i := len(bars)
			c := base + float64(i%37)*0.5 + float64(i)*0.01
			bars = append(bars, model.Bar{
				Symbol: symbol,
				Date:   d,
				Open:   c - 0.2,
				High:   c + 0.5,
				Low:    c - 0.5,
				Close:  c,
				Volume: 1_000_000,
			})
		}
		d = d.AddDate(0, 0, 1)
	}
	return bars
}

func TestComputeDaily_UndefinedBeforePeriod(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := ComputeDaily(genBars("TEST", start, 199, 100))
	for i, b := range bars {
		assert.Nil(t, b.SMA200, "bar %d should have no SMA with <200 bars", i)
		assert.Nil(t, b.EMA200, "bar %d should have no EMA with <200 bars", i)
	}

	bars = ComputeDaily(genBars("TEST", start, 200, 100))
	for i := 0; i < 199; i++ {
		assert.Nil(t, bars[i].SMA200)
	}
	require.NotNil(t, bars[199].SMA200)
	require.NotNil(t, bars[199].EMA200)
}

func TestComputeDaily_SMAValueAndEMASeed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := genBars("TEST", start, 210, 100)
	bars := ComputeDaily(raw)

	sum := 0.0
	for i := 0; i < 200; i++ {
		sum += raw[i].Close
	}
	require.NotNil(t, bars[199].SMA200)
	assert.Equal(t, sum/200, *bars[199].SMA200)

	// EMA is seeded with the SMA of the first 200 closes.
	require.NotNil(t, bars[199].EMA200)
	assert.Equal(t, *bars[199].SMA200, *bars[199].EMA200)

	// Next bar follows the standard recurrence.
	k := 2.0 / 201.0
	want := raw[200].Close*k + *bars[199].EMA200*(1-k)
	assert.Equal(t, want, *bars[200].EMA200)
}

func TestComputeDailyIncremental_MatchesFullRecompute(t *testing.T) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	raw := genBars("TEST", start, 260, 50)

	full := ComputeDaily(raw)

	// Annotate the first 240 bars, then extend with the remaining 20 and
	// recompute only the tail, seeded from the last known EMA.
	head := ComputeDaily(raw[:240])
	combined := append(append([]model.Bar{}, head...), raw[240:]...)
	incr := ComputeDailyIncremental(combined, 240)

	require.Len(t, incr, len(full))
	for i := range full {
		if full[i].SMA200 == nil {
			assert.Nil(t, incr[i].SMA200, "bar %d", i)
			continue
		}
		require.NotNil(t, incr[i].SMA200, "bar %d", i)
		require.NotNil(t, incr[i].EMA200, "bar %d", i)
		assert.Equal(t, *full[i].SMA200, *incr[i].SMA200, "SMA mismatch at bar %d", i)
		assert.Equal(t, *full[i].EMA200, *incr[i].EMA200, "EMA mismatch at bar %d", i)
	}
}

func TestComputeDailyIncremental_FallsBackWithoutSeed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := genBars("TEST", start, 220, 100)

	// No prior annotation at all: should behave like a full recompute.
	incr := ComputeDailyIncremental(raw, 210)
	full := ComputeDaily(raw)
	require.NotNil(t, incr[219].EMA200)
	assert.Equal(t, *full[219].EMA200, *incr[219].EMA200)
}

func TestComputeWeekly_NoEMA(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	bars := ComputeWeekly(genBars("TEST", start, 205, 100))
	require.NotNil(t, bars[204].SMA200)
	assert.Nil(t, bars[204].EMA200)
}

func TestResampleWeekly(t *testing.T) {
	// Mon 2024-01-08 .. Fri 2024-01-12, then Mon 2024-01-15 only.
	mk := func(day int, o, h, l, c, v float64) model.Bar {
		return model.Bar{
			Symbol: "TEST",
			Date:   time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
			Open:   o, High: h, Low: l, Close: c, Volume: v,
		}
	}
	daily := []model.Bar{
		mk(8, 10, 12, 9, 11, 100),
		mk(9, 11, 15, 10, 14, 100),
		mk(10, 14, 14.5, 13, 13.5, 100),
		mk(11, 13.5, 16, 13, 15, 100),
		mk(12, 15, 15.5, 8, 9, 100),
		mk(15, 9, 10, 8.5, 9.5, 100),
	}
	weekly := ResampleWeekly(daily)
	require.Len(t, weekly, 2)

	w := weekly[0]
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), w.Date)
	assert.Equal(t, 10.0, w.Open)
	assert.Equal(t, 16.0, w.High)
	assert.Equal(t, 8.0, w.Low)
	assert.Equal(t, 9.0, w.Close)
	assert.Equal(t, 500.0, w.Volume)

	// Incomplete trailing week still produces a bar at its Monday.
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), weekly[1].Date)
	assert.Equal(t, 9.5, weekly[1].Close)
}

func TestResampleWeekly_Empty(t *testing.T) {
	assert.Nil(t, ResampleWeekly(nil))
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 1, 8, 15, 30, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},  // Monday
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},   // Wednesday
		{time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},   // Sunday
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.WeekStart(tt.in), "input %s", tt.in)
	}
}

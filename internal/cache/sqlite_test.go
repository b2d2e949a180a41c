package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandScanner/internal/model"
)

func openTestCache(t *testing.T) *PriceCache {
	t.Helper()
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testBars(symbol string, n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{
			Symbol: symbol,
			Date:   time.Date(2024, 3, 4+i, 0, 0, 0, 0, time.UTC),
			Open:   c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestUpsert_Idempotent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	bars := testBars("AAPL", 5)

	n, err := c.Upsert(ctx, "AAPL", model.FreqDaily, bars)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Second identical upsert: no duplicate keys, no metadata drift.
	_, err = c.Upsert(ctx, "AAPL", model.FreqDaily, bars)
	require.NoError(t, err)

	got, err := c.GetRange(ctx, "AAPL", model.FreqDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	md, err := c.GetMetadata(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, 5, md.DailyCount)
	assert.Equal(t, "2024-03-04", md.FirstDate.Format("2006-01-02"))
	assert.Equal(t, "2024-03-08", md.LastDate.Format("2006-01-02"))
}

func TestUpsert_LastWriteWins(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	bars := testBars("MSFT", 3)
	_, err := c.Upsert(ctx, "MSFT", model.FreqDaily, bars)
	require.NoError(t, err)

	// Re-ingest the most recent bar with a revised close (intraday refresh).
	revised := bars[2]
	revised.Close = 999
	revised.SMA200 = model.Float64Ptr(150)
	_, err = c.Upsert(ctx, "MSFT", model.FreqDaily, []model.Bar{revised})
	require.NoError(t, err)

	got, err := c.GetRange(ctx, "MSFT", model.FreqDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 999.0, got[2].Close)
	require.NotNil(t, got[2].SMA200)
	assert.Equal(t, 150.0, *got[2].SMA200)
	assert.Nil(t, got[2].EMA200)
}

func TestGetRange_WindowAndOrder(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	bars := testBars("NVDA", 10)
	// Insert out of order; reads must come back sorted ascending.
	shuffled := []model.Bar{bars[4], bars[0], bars[9], bars[2], bars[7],
		bars[1], bars[8], bars[3], bars[6], bars[5]}
	_, err := c.Upsert(ctx, "NVDA", model.FreqDaily, shuffled)
	require.NoError(t, err)

	from := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := c.GetRange(ctx, "NVDA", model.FreqDaily, from, to)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Date.Before(got[i].Date), "bars must be ascending")
	}
	assert.Equal(t, "2024-03-06", got[0].DateKey())
	assert.Equal(t, "2024-03-10", got[4].DateKey())
}

func TestWeeklyBars_SeparateTable(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	weekly := []model.Bar{{
		Symbol: "AMD",
		Date:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Open:   10, High: 12, Low: 9, Close: 11, Volume: 5000,
		SMA200: model.Float64Ptr(10.5),
	}}
	_, err := c.Upsert(ctx, "AMD", model.FreqWeekly, weekly)
	require.NoError(t, err)

	daily, err := c.GetRange(ctx, "AMD", model.FreqDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, daily)

	got, err := c.GetRange(ctx, "AMD", model.FreqWeekly, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].SMA200)
	assert.Equal(t, 10.5, *got[0].SMA200)

	md, err := c.GetMetadata(ctx, "AMD")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, 0, md.DailyCount)
	assert.Equal(t, 1, md.WeeklyCount)
}

func TestGetMetadata_Absent(t *testing.T) {
	c := openTestCache(t)
	md, err := c.GetMetadata(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestRebuildMetadata(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	_, err := c.Upsert(ctx, "TSLA", model.FreqDaily, testBars("TSLA", 4))
	require.NoError(t, err)

	// Simulate drift, then rebuild from the bar tables.
	_, err = c.DB().Exec("UPDATE data_metadata SET daily_count = 0, last_date = NULL WHERE symbol = 'TSLA'")
	require.NoError(t, err)

	require.NoError(t, c.RebuildMetadata(ctx, "TSLA"))
	md, err := c.GetMetadata(ctx, "TSLA")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, 4, md.DailyCount)
	assert.Equal(t, "2024-03-07", md.LastDate.Format("2006-01-02"))
}

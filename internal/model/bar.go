package model

import "time"

// Frequency selects between daily and weekly bar series.
type Frequency string

const (
	FreqDaily  Frequency = "daily"
	FreqWeekly Frequency = "weekly"
)

// Bar represents a single OHLCV candlestick plus its derived moving averages.
// Date is the trading day for daily bars, or the Monday week start for weekly
// bars. Indicator fields stay nil until 200 bars of history exist.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	SMA200 *float64
	EMA200 *float64 // daily bars only
}

// DateKey returns the bar's date in YYYY-MM-DD form, the key format used
// throughout the cache and result documents.
func (b Bar) DateKey() string {
	return b.Date.Format("2006-01-02")
}

// WeekStart returns the Monday of the week containing t, truncated to midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return t.AddDate(0, 0, -offset)
}

// Float64Ptr is a small helper for building bars with known indicator values.
func Float64Ptr(v float64) *float64 { return &v }

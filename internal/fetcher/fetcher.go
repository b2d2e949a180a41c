package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"BandScanner/internal/model"
)

// ErrNoData indicates the upstream source returned no bars for the window.
var ErrNoData = errors.New("no data returned")

// Fetcher retrieves daily OHLCV history from an upstream quote source.
// Weekly bars are derived locally by resampling, never fetched.
type Fetcher interface {
	// FetchHistory returns daily bars for [from, to], ordered by date ascending.
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error)
	Name() string
}

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu    sync.Mutex
	Bars  map[string][]model.Bar
	Err   error
	Calls int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHistory(_ context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.Bar
	for _, b := range m.Bars[symbol] {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// CallCount reports how many fetches were attempted, across goroutines.
func (m *MockFetcher) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

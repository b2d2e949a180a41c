package model

import "time"

// SymbolMetadata tracks how much history is cached for one symbol.
// It is the single source of truth for incremental fetch windows.
type SymbolMetadata struct {
	Symbol      string
	FirstDate   time.Time
	LastDate    time.Time
	LastUpdated time.Time
	DailyCount  int
	WeeklyCount int
}

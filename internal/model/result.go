package model

// CandlePoint is one candle in a chart-ready series (lightweight-charts shape).
type CandlePoint struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// LinePoint is one point of an indicator line series.
type LinePoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// ChartZone is a rectangular overlay (setup band or FVG) on the chart.
type ChartZone struct {
	Type        string  `json:"type"`
	ID          string  `json:"id"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
	TopValue    float64 `json:"topValue"`
	BottomValue float64 `json:"bottomValue"`
	FillColor   string  `json:"fillColor"`
	BorderColor string  `json:"borderColor"`
}

// ChartMarker is a single event marker (breakout signal) on the chart.
type ChartMarker struct {
	Time     string `json:"time"`
	Position string `json:"position"`
	Color    string `json:"color"`
	Shape    string `json:"shape"`
	Text     string `json:"text"`
	Size     int    `json:"size"`
	ID       string `json:"id"`
}

// ChartData is the chart-ready payload consumed by the presentation layer.
type ChartData struct {
	Candles      []CandlePoint `json:"candles"`
	SMA200       []LinePoint   `json:"sma200"`
	EMA200       []LinePoint   `json:"ema200"`
	WeeklySMA200 []LinePoint   `json:"weekly_sma200"`
	Zones        []ChartZone   `json:"zones"`
	Markers      []ChartMarker `json:"markers"`
}

// ScanResult is the per-symbol analysis document. One per symbol, overwritten
// on each scan; setups/FVGs/signals accumulate across runs, merged by ID.
type ScanResult struct {
	Symbol      string         `json:"symbol"`
	LastUpdated string         `json:"last_updated,omitempty"`
	LastScan    string         `json:"last_scan,omitempty"`
	TrendCheck  *TrendCheck    `json:"trend_check,omitempty"`
	Setups      []Setup        `json:"setups"`
	FVGs        []FVG          `json:"fvgs"`
	Signals     []Signal       `json:"signals"`
	Chart       *ChartData     `json:"chart_data,omitempty"`
	Stage       *StageAnalysis `json:"stage_analysis,omitempty"`
}

// RunStatus is the scan run state machine.
type RunStatus string

const (
	RunPending         RunStatus = "pending"
	RunRunning         RunStatus = "running"
	RunCompleted       RunStatus = "completed"
	RunPartiallyFailed RunStatus = "partially_failed"
)

// SummaryEntry is one symbol's line in the daily summary: either a confirmed
// breakout (s2_breakout) or an active FVG candidate (s1_fvg).
type SummaryEntry struct {
	Symbol     string `json:"symbol"`
	SignalType string `json:"signal_type"`
	Score      int    `json:"score"`
	SignalDate string `json:"signal_date,omitempty"`
	FVGDate    string `json:"fvg_date,omitempty"`
}

// SummaryCounts groups the signal and candidate lists with their counts.
type SummaryCounts struct {
	SignalsCount    int            `json:"signals_count"`
	CandidatesCount int            `json:"candidates_count"`
	Signals         []SummaryEntry `json:"signals"`
	Candidates      []SummaryEntry `json:"candidates"`
}

// PerformanceStats holds timing data for one scan run.
type PerformanceStats struct {
	AvgTimePerSymbolMS float64 `json:"avg_time_per_symbol_ms"`
}

// DailySummary is the one-per-run aggregate written at the end of a scan.
type DailySummary struct {
	RunID           string           `json:"run_id"`
	ScanDate        string           `json:"scan_date"`
	ScanTime        string           `json:"scan_time"`
	DurationSeconds float64          `json:"scan_duration_seconds"`
	TotalScanned    int              `json:"total_scanned"`
	FailedCount     int              `json:"failed_count"`
	Status          RunStatus        `json:"status"`
	Summary         SummaryCounts    `json:"summary"`
	Performance     PerformanceStats `json:"performance"`
}

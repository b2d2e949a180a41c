package model

// TrendCheck holds the result of the rule ① trend filter.
type TrendCheck struct {
	Passed       bool `json:"passed"`
	WeeklySMA200 bool `json:"weekly_sma200"`
	DailySMA200  bool `json:"daily_sma200"`
	DailyEMA200  bool `json:"daily_ema200"`
}

// SetupCandle is the OHLC of the bar that formed a setup.
type SetupCandle struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Setup is a daily bar whose open and close both sit inside the band between
// the 200-day SMA and EMA. Immutable once detected.
type Setup struct {
	ID        string      `json:"id"`
	Date      string      `json:"date"`
	ZoneUpper float64     `json:"zone_upper"`
	ZoneLower float64     `json:"zone_lower"`
	SMA200    float64     `json:"sma200"`
	EMA200    float64     `json:"ema200"`
	Candle    SetupCandle `json:"candle"`
}

// FVGStatus is the lifecycle state of a fair value gap.
// Consumed and violated are both terminal.
type FVGStatus string

const (
	FVGActive   FVGStatus = "active"
	FVGConsumed FVGStatus = "consumed"
	FVGViolated FVGStatus = "violated"
)

// MAProximity describes how close an FVG sits to a 200-period moving average.
type MAProximity struct {
	NearMA        bool    `json:"near_ma"`
	ClosestMA     string  `json:"closest_ma,omitempty"`
	DistancePerc  float64 `json:"distance_percentage"`
}

// FVG is a 3-bar fair value gap found after a setup: bar[i].low strictly above
// bar[i-2].high, anchored near one of the moving averages.
type FVG struct {
	ID            string      `json:"id"`
	SetupID       string      `json:"setup_id"`
	FormationDate string      `json:"formation_date"`
	UpperBound    float64     `json:"upper_bound"`
	LowerBound    float64     `json:"lower_bound"`
	GapSize       float64     `json:"gap_size"`
	GapPercentage float64     `json:"gap_percentage"`
	MAProximity   MAProximity `json:"ma_proximity"`
	Status        FVGStatus   `json:"status"`
}

// Signal is a confirmed breakout above the resistance established between a
// setup and its FVG. Immutable once created.
type Signal struct {
	ID                 string  `json:"id"`
	SetupID            string  `json:"setup_id"`
	FVGID              string  `json:"fvg_id"`
	SignalType         string  `json:"signal_type"`
	SignalDate         string  `json:"signal_date"`
	BreakoutPrice      float64 `json:"breakout_price"`
	ResistancePrice    float64 `json:"resistance_price"`
	BreakoutPercentage float64 `json:"breakout_percentage"`
	Score              int     `json:"score"`
}

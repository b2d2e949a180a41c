package strategy

import (
	"fmt"
	"time"

	"BandScanner/internal/model"
)

// Tunables for the four-stage pipeline.
const (
	// SetupLookbackDays bounds how far back setup detection scans.
	SetupLookbackDays = 60
	// FVGSearchWindow is the number of trading days after a setup in which a
	// fair value gap may form.
	FVGSearchWindow = 30
	// BreakoutThreshold is the fraction by which a close must exceed
	// resistance to confirm a breakout (0.1%).
	BreakoutThreshold = 0.001
	// MAProximityTolerance is the maximum relative distance between an FVG's
	// center and a 200-period moving average for the gap to qualify.
	MAProximityTolerance = 0.10
)

// CheckTrend implements rule ①: the most recent daily close must sit above the
// weekly 200-SMA and above at least one of the daily 200-SMA/EMA. Symbols with
// fewer than 200 bars of history simply fail the check; that is not an error.
func CheckTrend(daily, weekly []model.Bar) model.TrendCheck {
	var tc model.TrendCheck
	if len(daily) == 0 || len(weekly) == 0 {
		return tc
	}
	latest := daily[len(daily)-1]

	if wsma := weeklySMAAt(weekly, latest.Date); wsma != nil {
		tc.WeeklySMA200 = latest.Close > *wsma
	}
	if latest.SMA200 != nil {
		tc.DailySMA200 = latest.Close > *latest.SMA200
	}
	if latest.EMA200 != nil {
		tc.DailyEMA200 = latest.Close > *latest.EMA200
	}
	tc.Passed = tc.WeeklySMA200 && (tc.DailySMA200 || tc.DailyEMA200)
	return tc
}

// weeklySMAAt forward-fills the weekly SMA onto a daily date: the value from
// the most recent weekly bar starting on or before that date.
func weeklySMAAt(weekly []model.Bar, date time.Time) *float64 {
	for i := len(weekly) - 1; i >= 0; i-- {
		if !weekly[i].Date.After(date) {
			return weekly[i].SMA200
		}
	}
	return nil
}

// FindSetups implements rule ②: a setup is a daily bar whose open and close
// both lie inside the band between the 200-day SMA and EMA. Only the last
// SetupLookbackDays bars with defined indicators are scanned; all matches are
// returned, since a later FVG may reference an older setup.
func FindSetups(daily []model.Bar) []model.Setup {
	var valid []model.Bar
	for _, b := range daily {
		if b.SMA200 != nil && b.EMA200 != nil {
			valid = append(valid, b)
		}
	}
	if len(valid) > SetupLookbackDays {
		valid = valid[len(valid)-SetupLookbackDays:]
	}

	var setups []model.Setup
	for _, b := range valid {
		upper := max(*b.SMA200, *b.EMA200)
		lower := min(*b.SMA200, *b.EMA200)
		if b.Open >= lower && b.Open <= upper && b.Close >= lower && b.Close <= upper {
			setups = append(setups, model.Setup{
				ID:        "setup_" + b.Date.Format("20060102"),
				Date:      b.DateKey(),
				ZoneUpper: upper,
				ZoneLower: lower,
				SMA200:    *b.SMA200,
				EMA200:    *b.EMA200,
				Candle: model.SetupCandle{
					Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				},
			})
		}
	}
	return setups
}

// DetectFVG implements rule ③: within FVGSearchWindow bars after the setup,
// look for the first 3-bar gap where bar[i].low > bar[i-2].high whose center
// sits within MAProximityTolerance of either moving average. The first
// qualifying gap wins; returns nil when none forms.
func DetectFVG(daily []model.Bar, setup model.Setup) *model.FVG {
	setupIdx := indexByDate(daily, setup.Date)
	if setupIdx < 0 {
		return nil
	}
	end := setupIdx + FVGSearchWindow
	if end > len(daily)-1 {
		end = len(daily) - 1
	}
	for i := setupIdx + 2; i <= end; i++ {
		c1, c3 := daily[i-2], daily[i]
		if c3.Low <= c1.High {
			continue
		}
		prox := checkMAProximity(c1, c3)
		if !prox.NearMA {
			continue
		}
		gap := c3.Low - c1.High
		return &model.FVG{
			ID:            fmt.Sprintf("fvg_%s_%d", c3.Date.Format("20060102"), i),
			SetupID:       setup.ID,
			FormationDate: c3.DateKey(),
			UpperBound:    c3.Low,
			LowerBound:    c1.High,
			GapSize:       gap,
			GapPercentage: gap / c1.High * 100,
			MAProximity:   prox,
			Status:        model.FVGActive,
		}
	}
	return nil
}

// checkMAProximity anchors a gap to the trend thesis: the gap center must lie
// within tolerance of the 200-day SMA or EMA at formation time.
func checkMAProximity(c1, c3 model.Bar) model.MAProximity {
	prox := model.MAProximity{DistancePerc: 999}
	if c3.SMA200 == nil || c3.EMA200 == nil {
		return prox
	}
	center := (c1.High + c3.Low) / 2
	for _, ma := range []struct {
		name string
		val  float64
	}{{"sma200", *c3.SMA200}, {"ema200", *c3.EMA200}} {
		dist := abs(center-ma.val) / ma.val
		if dist < prox.DistancePerc {
			prox.DistancePerc = dist
			prox.ClosestMA = ma.name
		}
		if dist <= MAProximityTolerance {
			prox.NearMA = true
		}
	}
	return prox
}

// EvaluateFVG implements rule ④ for one active FVG. Bars after the formation
// date are walked in order: any low under the FVG's lower bound invalidates
// the thesis (violated) before a breakout can be considered. Otherwise, if the
// most recent close exceeds the resistance built between setup and formation
// by more than BreakoutThreshold, the FVG is consumed and a signal is emitted.
// The FVG stays active when neither exit fires.
func EvaluateFVG(daily []model.Bar, setup model.Setup, fvg model.FVG) (model.FVGStatus, *model.Signal) {
	setupIdx := indexByDate(daily, setup.Date)
	fvgIdx := indexByDate(daily, fvg.FormationDate)
	if setupIdx < 0 || fvgIdx < 0 {
		return model.FVGActive, nil
	}

	resistance := daily[setupIdx].High // fallback when no bars lie between
	for i := setupIdx + 1; i < fvgIdx; i++ {
		if daily[i].High > resistance {
			resistance = daily[i].High
		}
	}

	for i := fvgIdx + 1; i < len(daily); i++ {
		if daily[i].Low < fvg.LowerBound {
			return model.FVGViolated, nil
		}
	}

	latest := daily[len(daily)-1]
	if latest.Close > resistance*(1+BreakoutThreshold) {
		sig := &model.Signal{
			ID:                 "signal_" + latest.Date.Format("20060102"),
			SetupID:            setup.ID,
			FVGID:              fvg.ID,
			SignalType:         "s2_breakout",
			SignalDate:         latest.DateKey(),
			BreakoutPrice:      latest.Close,
			ResistancePrice:    resistance,
			BreakoutPercentage: (latest.Close/resistance - 1) * 100,
		}
		sig.Score = Score(setup, fvg, sig)
		return model.FVGConsumed, sig
	}
	return model.FVGActive, nil
}

func indexByDate(daily []model.Bar, dateKey string) int {
	for i := len(daily) - 1; i >= 0; i-- {
		if daily[i].DateKey() == dateKey {
			return i
		}
	}
	return -1
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

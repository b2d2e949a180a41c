// Package stage implements Weinstein-style stage classification over daily
// bars: stage 1 (accumulation base), 2 (advance), 3 (distribution top),
// 4 (decline), driven by the slope of the 50-day moving average and the
// symbol's position against its trailing highs.
package stage

import (
	"fmt"
	"math"
	"strings"

	"BandScanner/internal/model"
)

const (
	maPeriod    = 50
	atrPeriod   = 14
	slopePeriod = 10
	minHistory  = 252

	// slopeThreshold separates a trending 50-day MA from a flat one, measured
	// on the L2-normalized window so it is scale free.
	slopeThreshold = 0.0015
)

var stageNames = map[int]string{
	1: "Accumulation",
	2: "Advancing",
	3: "Distribution",
	4: "Declining",
}

// Classify determines the symbol's current stage and scores the relevant
// transition. Returns nil when there is less than a year of history, which is
// not enough to anchor the trailing-high checks.
func Classify(daily []model.Bar) *model.StageAnalysis {
	if len(daily) < minHistory {
		return nil
	}
	s := build(daily)
	st := s.currentStage()

	res := &model.StageAnalysis{
		Stage:     st,
		StageName: stageNames[st],
		Date:      daily[len(daily)-1].DateKey(),
	}
	switch st {
	case 1:
		t := s.scoreBreakout()
		res.Score, res.Judgment, res.Action, res.Target = t.score, t.judgment, t.action, "1 -> 2"
	case 2:
		t := s.scoreTopping()
		res.Score, res.Judgment, res.Action, res.Target = t.score, t.judgment, t.action, "2 -> 3"
	default:
		res.Judgment, res.Action = "N/A", "N/A"
		res.Target = fmt.Sprintf("Stage %d", st)
	}
	return res
}

// series carries the derived per-bar values the classifier reads. Warmup
// entries are NaN (slope: zero).
type series struct {
	bars    []model.Bar
	ma50    []float64
	volMA50 []float64
	atr     []float64
	slope   []float64
}

func build(bars []model.Bar) *series {
	n := len(bars)
	s := &series{
		bars:    bars,
		ma50:    make([]float64, n),
		volMA50: make([]float64, n),
		atr:     make([]float64, n),
		slope:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.ma50[i], s.volMA50[i], s.atr[i] = math.NaN(), math.NaN(), math.NaN()
	}

	for i := maPeriod - 1; i < n; i++ {
		var cs, vs float64
		for j := i - maPeriod + 1; j <= i; j++ {
			cs += bars[j].Close
			vs += bars[j].Volume
		}
		s.ma50[i] = cs / maPeriod
		s.volMA50[i] = vs / maPeriod
	}

	tr := make([]float64, n)
	for i := range bars {
		r := bars[i].High - bars[i].Low
		if i > 0 {
			r = max(r, math.Abs(bars[i].High-bars[i-1].Close), math.Abs(bars[i].Low-bars[i-1].Close))
		}
		tr[i] = r
	}
	for i := atrPeriod - 1; i < n; i++ {
		var sum float64
		for j := i - atrPeriod + 1; j <= i; j++ {
			sum += tr[j]
		}
		s.atr[i] = sum / atrPeriod
	}

	for i := range s.slope {
		lo := i - slopePeriod + 1
		if lo < 0 || math.IsNaN(s.ma50[lo]) {
			continue
		}
		s.slope[i] = normSlope(s.ma50[lo : i+1])
	}
	return s
}

// normSlope fits a least-squares line through the window after dividing it by
// its L2 norm, so the slope compares across price levels.
func normSlope(window []float64) float64 {
	var norm float64
	for _, v := range window {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return 0
	}
	n := float64(len(window))
	xMean := (n - 1) / 2
	var yMean float64
	for _, v := range window {
		yMean += v / norm
	}
	yMean /= n
	var num, den float64
	for i, v := range window {
		x := float64(i) - xMean
		num += x * (v/norm - yMean)
		den += x * x
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func (s *series) currentStage() int {
	n := len(s.bars)
	sl := s.slope[n-1]

	if sl < -slopeThreshold {
		return 4
	}
	if sl > slopeThreshold {
		t := s.scoreBreakout()
		if t.score >= 80 || strings.HasPrefix(t.judgment, "A") || strings.HasPrefix(t.judgment, "B") {
			return 2
		}
	}

	price := s.bars[n-1].Close
	histStart := n - 1 - minHistory
	if histStart < 0 {
		histStart = 0
	}
	hist := s.bars[histStart : n-1]
	if len(hist) < 200 {
		return 1
	}
	high1y := maxHigh(hist)
	high150d := high1y
	if n > 151 {
		high150d = maxHigh(s.bars[n-151 : n-1])
	}
	if price < high1y*0.6 {
		return 1
	}
	if price >= high150d*0.7 {
		return 3
	}
	return 1
}

type transition struct {
	score    int
	judgment string
	action   string
}

// scoreBreakout grades a stage 1 -> 2 breakout attempt on volume expansion,
// price breakout over the prior 50-day closing high, MA posture, and
// volatility stretch from the 50-day MA in ATR multiples.
func (s *series) scoreBreakout() transition {
	n := len(s.bars)
	latest := s.bars[n-1]
	score := 0

	if v := s.volMA50[n-1]; !math.IsNaN(v) && v > 0 {
		switch ratio := latest.Volume / v; {
		case ratio >= 2.5:
			score += 20
		case ratio >= 2.0:
			score += 15
		}
	}

	if prior := maxClose(s.bars, n-51, n-1); prior > 0 {
		if latest.Close > prior*1.03 {
			score += 25
		} else if latest.Close > prior {
			score += 20
		}
	}

	ma, sl := s.ma50[n-1], s.slope[n-1]
	aboveMA := !math.IsNaN(ma) && latest.Close > ma
	switch {
	case aboveMA && sl > 0.002:
		score += 20
	case aboveMA || sl > 0.002:
		score += 10
	}

	if m := s.atrMultiple(n - 1); m >= 2.0 && m < 4.0 {
		score += 15
	} else if m >= 1.0 && m < 2.0 {
		score += 10
	}

	confirmed := s.breakoutConfirmed()
	switch {
	case score >= 85:
		return transition{score, "A (Strong)", "Ideal breakout. Consider entry."}
	case confirmed && score >= 70:
		return transition{score, "B (Confirmed)", "Consider entry, manage risk."}
	case score >= 75:
		return transition{score, "B- (Promising)", fmt.Sprintf("High score (%d), but unconfirmed. Cautious entry.", score)}
	default:
		return transition{score, "C (Setup)", fmt.Sprintf("Wait for confirmation (score %d).", score)}
	}
}

// breakoutConfirmed looks back up to 15 bars for a close over its prior
// 50-day closing high that then held: at least 80% of the closes since stayed
// within 2% of the breakout level.
func (s *series) breakoutConfirmed() bool {
	n := len(s.bars)
	for i := 1; i <= 15; i++ {
		if n < 51+i {
			continue
		}
		day := s.bars[n-i]
		level := maxClose(s.bars, n-i-50, n-i)
		if day.Close <= level {
			continue
		}
		daysSince := i - 1
		if daysSince < 2 {
			continue
		}
		held := 0
		for _, b := range s.bars[n-daysSince:] {
			if b.Close > level*0.98 {
				held++
			}
		}
		if float64(held)/float64(daysSince) >= 0.8 {
			return true
		}
	}
	return false
}

// scoreTopping grades stage 2 -> 3 distribution risk: extreme ATR stretch,
// high-volume down days, long upper wicks, and a stalling 50-day MA.
func (s *series) scoreTopping() transition {
	n := len(s.bars)
	score := 0

	if m := s.atrMultiple(n - 1); m >= 7.0 {
		score += 30
	} else if m >= 5.0 {
		score += 15
	}

	downHighVol := 0
	start := n - 20
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		if s.bars[i].Close < s.bars[i-1].Close &&
			!math.IsNaN(s.volMA50[i]) && s.bars[i].Volume > s.volMA50[i]*1.5 {
			downHighVol++
		}
	}
	if downHighVol >= 2 {
		score += 25
	} else if downHighVol == 1 {
		score += 10
	}

	for i := n - 5; i < n; i++ {
		b := s.bars[i]
		if b.High-max(b.Open, b.Close) > (b.High-b.Low)*0.5 {
			score += 20
			break
		}
	}

	if math.Abs(s.slope[n-1]) < 0.001 {
		score += 15
	}

	switch {
	case score >= 75:
		return transition{score, "Danger (Likely Stage 3)", "Strongly consider taking profits."}
	case score >= 50:
		return transition{score, "Warning (Trend stalling)", "Avoid new buys, consider partial profit."}
	default:
		return transition{score, "Safe (Stage 2 continues)", "Hold position."}
	}
}

// atrMultiple is the distance from the 50-day MA in ATR units.
func (s *series) atrMultiple(i int) float64 {
	if math.IsNaN(s.atr[i]) || s.atr[i] <= 0 || math.IsNaN(s.ma50[i]) {
		return 0
	}
	return math.Abs(s.bars[i].Close-s.ma50[i]) / s.atr[i]
}

func maxHigh(bars []model.Bar) float64 {
	var m float64
	for _, b := range bars {
		m = max(m, b.High)
	}
	return m
}

func maxClose(bars []model.Bar, lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	var m float64
	for _, b := range bars[lo:hi] {
		m = max(m, b.Close)
	}
	return m
}

package strategy

import (
	"math"

	"BandScanner/internal/model"
)

// Scoring weights. The exact mix is a documented tunable; what is contractual
// is monotonicity: a tighter setup zone, a larger gap, or a stronger breakout
// never lowers the score.
const (
	zoneScoreMax       = 30.0
	zoneWidthPenalty   = 2000.0
	gapScoreMax        = 40.0
	gapScoreScale      = 50.0
	breakoutScoreMax   = 30.0
	breakoutScoreScale = 20.0
)

// Score rates a pattern 0-100: setup zone tightness contributes up to 30,
// gap size up to 40, and breakout strength up to 30. Candidates without a
// confirmed breakout are scored with the breakout component at zero.
func Score(setup model.Setup, fvg model.FVG, signal *model.Signal) int {
	zoneWidth := (setup.ZoneUpper - setup.ZoneLower) / setup.Candle.Close
	score := math.Max(0, zoneScoreMax-zoneWidth*zoneWidthPenalty)
	score += math.Min(gapScoreMax, fvg.GapPercentage*gapScoreScale)
	if signal != nil {
		score += math.Min(breakoutScoreMax, signal.BreakoutPercentage*breakoutScoreScale)
	}
	return int(math.Min(score, 100))
}

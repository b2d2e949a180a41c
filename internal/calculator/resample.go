package calculator

import (
	"BandScanner/internal/model"
)

// ResampleWeekly aggregates daily bars into calendar weeks starting Monday:
// open from the first bar, close from the last, high/low over the week, volume
// summed. Input must be ordered by date ascending. The most recent week is
// included even when incomplete; it gets overwritten on the next resample.
func ResampleWeekly(daily []model.Bar) []model.Bar {
	if len(daily) == 0 {
		return nil
	}
	var weekly []model.Bar
	cur := model.Bar{}
	haveCur := false
	for _, b := range daily {
		ws := model.WeekStart(b.Date)
		if !haveCur || !cur.Date.Equal(ws) {
			if haveCur {
				weekly = append(weekly, cur)
			}
			cur = model.Bar{
				Symbol: b.Symbol,
				Date:   ws,
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			}
			haveCur = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	weekly = append(weekly, cur)
	return weekly
}

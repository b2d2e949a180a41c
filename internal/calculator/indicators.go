package calculator

import (
	"BandScanner/internal/model"
)

// Period is the moving-average window used by every indicator in the scanner.
const Period = 200

// smoothing is the standard EMA constant 2/(period+1).
const smoothing = 2.0 / (Period + 1)

// ComputeDaily returns a copy of bars annotated with the 200-day SMA and EMA.
// Indicators stay nil for bars with fewer than 200 bars of trailing history.
// The EMA is seeded with the SMA of the first 200 closes.
//
// The computation is deterministic: identical input always yields bit-identical
// values, which the incremental path below relies on.
func ComputeDaily(bars []model.Bar) []model.Bar {
	out := cloneBars(bars)
	annotateFrom(out, Period-1, true)
	return out
}

// ComputeDailyIncremental annotates only bars[firstNew:], assuming everything
// before firstNew is already annotated. The EMA recurrence is seeded from the
// last previously-known value, so the result is identical to a full recompute.
// Falls back to a full recompute when the seed is unavailable.
func ComputeDailyIncremental(bars []model.Bar, firstNew int) []model.Bar {
	if firstNew <= Period-1 || firstNew > len(bars) || bars[firstNew-1].EMA200 == nil {
		return ComputeDaily(bars)
	}
	out := cloneBars(bars)
	annotateFrom(out, firstNew, true)
	return out
}

// ComputeWeekly returns a copy of bars annotated with the 200-week SMA.
// Weekly bars carry no EMA.
func ComputeWeekly(bars []model.Bar) []model.Bar {
	out := cloneBars(bars)
	annotateFrom(out, Period-1, false)
	return out
}

// annotateFrom fills indicators for indices >= from. The SMA at each index is
// summed over its own window in a fixed order so that full and incremental
// recomputes agree exactly.
func annotateFrom(bars []model.Bar, from int, withEMA bool) {
	if from < Period-1 {
		from = Period - 1
	}
	for i := from; i < len(bars); i++ {
		sum := 0.0
		for j := i - Period + 1; j <= i; j++ {
			sum += bars[j].Close
		}
		sma := sum / Period
		bars[i].SMA200 = &sma

		if !withEMA {
			continue
		}
		var ema float64
		if i == Period-1 || bars[i-1].EMA200 == nil {
			ema = sma // seed
		} else {
			ema = bars[i].Close*smoothing + *bars[i-1].EMA200*(1-smoothing)
		}
		bars[i].EMA200 = &ema
	}
}

func cloneBars(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	return out
}

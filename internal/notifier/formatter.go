package notifier

import (
	"fmt"
	"strings"

	"BandScanner/internal/model"
)

// maxListed caps how many entries a report lists per section.
const maxListed = 10

// FormatScanReport formats a completed scan summary into a Telegram message.
func FormatScanReport(sum *model.DailySummary) string {
	var b strings.Builder

	icon := "✅"
	if sum.Status != model.RunCompleted {
		icon = "⚠️"
	}
	b.WriteString(fmt.Sprintf("%s <b>BandScanner Daily Scan</b> | %s %s\n\n", icon, sum.ScanDate, sum.ScanTime))
	b.WriteString(fmt.Sprintf("Scanned: %d | Failed: %d | Status: %s\n", sum.TotalScanned, sum.FailedCount, sum.Status))
	b.WriteString(fmt.Sprintf("Duration: %.1fs (%.0fms/symbol)\n\n", sum.DurationSeconds, sum.Performance.AvgTimePerSymbolMS))

	b.WriteString(fmt.Sprintf("🚀 <b>Breakout signals: %d</b>\n", sum.Summary.SignalsCount))
	for i, e := range sum.Summary.Signals {
		if i == maxListed {
			b.WriteString(fmt.Sprintf("  … and %d more\n", len(sum.Summary.Signals)-maxListed))
			break
		}
		b.WriteString(fmt.Sprintf("  %s  score %d  (%s)\n", e.Symbol, e.Score, e.SignalDate))
	}

	b.WriteString(fmt.Sprintf("\n👀 <b>Active candidates: %d</b>\n", sum.Summary.CandidatesCount))
	for i, e := range sum.Summary.Candidates {
		if i == maxListed {
			b.WriteString(fmt.Sprintf("  … and %d more\n", len(sum.Summary.Candidates)-maxListed))
			break
		}
		b.WriteString(fmt.Sprintf("  %s  score %d  (gap %s)\n", e.Symbol, e.Score, e.FVGDate))
	}

	return b.String()
}

// FormatSymbolResult formats a single symbol's analysis for a command reply.
func FormatSymbolResult(res *model.ScanResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> | scanned %s\n\n", res.Symbol, res.LastScan))

	if res.TrendCheck != nil {
		if res.TrendCheck.Passed {
			b.WriteString("Trend: above long-term averages ✅\n")
		} else {
			b.WriteString("Trend: below long-term averages ❌\n")
		}
	}
	if res.Stage != nil {
		b.WriteString(fmt.Sprintf("Stage: %d %s | %s\n", res.Stage.Stage, res.Stage.StageName, res.Stage.Judgment))
	}
	b.WriteString(fmt.Sprintf("Setups: %d | Gaps: %d | Signals: %d\n", len(res.Setups), len(res.FVGs), len(res.Signals)))

	active := 0
	for _, f := range res.FVGs {
		if f.Status == model.FVGActive {
			active++
		}
	}
	if active > 0 {
		b.WriteString(fmt.Sprintf("Active gaps awaiting breakout: %d\n", active))
	}
	if n := len(res.Signals); n > 0 {
		last := res.Signals[n-1]
		b.WriteString(fmt.Sprintf("\nLast signal: %s, score %d, resistance %.2f\n", last.SignalDate, last.Score, last.ResistancePrice))
	}
	return b.String()
}

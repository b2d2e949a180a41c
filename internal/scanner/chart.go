package scanner

import (
	"time"

	"BandScanner/internal/model"
)

// Zone and marker styling expected by the lightweight-charts frontend.
const (
	setupFillColor   = "rgba(255, 215, 0, 0.2)"
	setupBorderColor = "#FFD700"
	fvgFillColor     = "rgba(0, 200, 83, 0.2)"
	fvgBorderColor   = "#00C853"
	markerColor      = "#2962FF"
)

// buildChartData assembles the chart-ready payload for a symbol: recent
// candles, indicator lines, setup/FVG zone overlays, and signal markers.
func buildChartData(doc *model.ScanResult, daily, weekly []model.Bar, tail int, now time.Time) *model.ChartData {
	plot := daily
	if len(plot) > tail {
		plot = plot[len(plot)-tail:]
	}

	chart := &model.ChartData{
		Candles:      make([]model.CandlePoint, 0, len(plot)),
		SMA200:       []model.LinePoint{},
		EMA200:       []model.LinePoint{},
		WeeklySMA200: []model.LinePoint{},
		Zones:        []model.ChartZone{},
		Markers:      []model.ChartMarker{},
	}

	wi := 0
	var weeklyVal *float64
	for _, b := range plot {
		chart.Candles = append(chart.Candles, model.CandlePoint{
			Time: b.DateKey(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
		})
		if b.SMA200 != nil {
			chart.SMA200 = append(chart.SMA200, model.LinePoint{Time: b.DateKey(), Value: *b.SMA200})
		}
		if b.EMA200 != nil {
			chart.EMA200 = append(chart.EMA200, model.LinePoint{Time: b.DateKey(), Value: *b.EMA200})
		}
		// Forward-fill the weekly SMA onto daily dates.
		for wi < len(weekly) && !weekly[wi].Date.After(b.Date) {
			if weekly[wi].SMA200 != nil {
				weeklyVal = weekly[wi].SMA200
			}
			wi++
		}
		if weeklyVal != nil {
			chart.WeeklySMA200 = append(chart.WeeklySMA200, model.LinePoint{Time: b.DateKey(), Value: *weeklyVal})
		}
	}

	endTime := now.Format("2006-01-02")
	for _, st := range doc.Setups {
		chart.Zones = append(chart.Zones, model.ChartZone{
			Type: "setup", ID: st.ID,
			StartTime: st.Date, EndTime: endTime,
			TopValue: st.ZoneUpper, BottomValue: st.ZoneLower,
			FillColor: setupFillColor, BorderColor: setupBorderColor,
		})
	}
	for _, f := range doc.FVGs {
		chart.Zones = append(chart.Zones, model.ChartZone{
			Type: "fvg", ID: f.ID,
			StartTime: f.FormationDate, EndTime: endTime,
			TopValue: f.UpperBound, BottomValue: f.LowerBound,
			FillColor: fvgFillColor, BorderColor: fvgBorderColor,
		})
	}
	for _, sig := range doc.Signals {
		chart.Markers = append(chart.Markers, model.ChartMarker{
			Time: sig.SignalDate, Position: "belowBar", Color: markerColor,
			Shape: "arrowUp", Text: "B", Size: 2, ID: sig.ID,
		})
	}
	return chart
}

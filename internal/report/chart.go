package report

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"quorum/internal/shadow"
	"quorum/internal/store"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorWin           = "#34d399"
	colorLoss          = "#f87171"
	colorAvoided       = "#a78bfa"

	chartWidthPx  = 1400
	chartHeightPx = 480
)

// Input carries everything one report page needs: the aggregate numbers and
// the closed trades they were computed from.
type Input struct {
	Title  string
	Report *shadow.Report
	Closed []store.ShadowTradeRecord
}

// BuildHTML renders the shadow report page: an equity curve over executed
// counterfactuals and an avoided-loss breakdown per rejection code.
func BuildHTML(input Input) ([]byte, error) {
	if input.Report == nil {
		return nil, fmt.Errorf("report input missing aggregate stats")
	}
	trades := append([]store.ShadowTradeRecord(nil), input.Closed...)
	sort.Slice(trades, func(i, j int) bool { return trades[i].CreatedAt.Before(trades[j].CreatedAt) })

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildEquityChart(input.Title, trades),
		buildShieldChart(input.Report.Shield),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEquityChart(title string, trades []store.ShadowTradeRecord) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.TrimSpace("Shadow equity " + title),
			Subtitle:      "cumulative virtual pnl of executed decisions",
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, 0, len(trades))
	data := make([]opts.LineData, 0, len(trades))
	equity := 0.0
	for _, tr := range trades {
		if tr.Vetoed() {
			continue
		}
		equity += tr.VirtualPnL
		xAxis = append(xAxis, tr.CreatedAt.UTC().Format("01-02 15:04"))
		data = append(data, opts.LineData{Value: round(equity, 2)})
	}
	if len(data) == 0 {
		xAxis = []string{time.Now().UTC().Format("01-02 15:04")}
		data = []opts.LineData{{Value: 0.0}}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func buildShieldChart(shield shadow.ShieldReport) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Avoided loss by rejection code",
			Subtitle: fmt.Sprintf("vetoes=%d correct=%d avoided=%.2f missed=%.2f",
				shield.TotalVetoes, shield.CorrectVetoes, shield.TotalAvoidedLoss, shield.MissedProfit),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	codes := make([]string, 0, len(shield.AvoidedByCode))
	for code := range shield.AvoidedByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	data := make([]opts.BarData, 0, len(codes))
	for _, code := range codes {
		data = append(data, opts.BarData{
			Value:     round(shield.AvoidedByCode[code], 2),
			ItemStyle: &opts.ItemStyle{Color: colorAvoided, Opacity: opts.Float(0.8)},
		})
	}
	if len(codes) == 0 {
		codes = []string{"none"}
		data = []opts.BarData{{Value: 0.0}}
	}
	bar.SetXAxis(codes)
	bar.AddSeries("Avoided", data)
	return bar
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

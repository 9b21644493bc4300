// Package chart renders price histories as standalone HTML line charts.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"github.com/dyike/CortexReport/internal/models"
)

const (
	dateLayout = "2006-01-02"

	defaultTitle  = "Stock Performance"
	defaultWidth  = "1200px"
	defaultHeight = "600px"
)

type Options struct {
	Title    string
	Subtitle string
	// SMAPeriod adds a simple moving average per symbol when above 1.
	SMAPeriod int
	Width     string
	Height    string
}

// RenderLine writes one close-price series per history, on a shared date
// axis. Dates a symbol has no bar for are left as gaps.
func RenderLine(w io.Writer, histories []*models.PriceHistory, o Options) error {
	histories = nonEmpty(histories)
	if len(histories) == 0 {
		return errors.New("no price history to chart")
	}
	if o.Title == "" {
		o.Title = defaultTitle
	}
	if o.Width == "" {
		o.Width = defaultWidth
	}
	if o.Height == "" {
		o.Height = defaultHeight
	}

	dates := dateAxis(histories)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: o.Title,
			Theme:     types.ThemeWesteros,
			Width:     o.Width,
			Height:    o.Height,
		}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: o.Subtitle, Left: "left"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(dates)

	for _, h := range histories {
		line.AddSeries(h.Symbol, closeSeries(h, dates),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), ConnectNulls: opts.Bool(false)}))
		if o.SMAPeriod > 1 && h.Len() >= o.SMAPeriod {
			line.AddSeries(fmt.Sprintf("%s SMA(%d)", h.Symbol, o.SMAPeriod), smaSeries(h, dates, o.SMAPeriod),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
				charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed", Width: 1}))
		}
	}
	return line.Render(w)
}

func nonEmpty(histories []*models.PriceHistory) []*models.PriceHistory {
	out := make([]*models.PriceHistory, 0, len(histories))
	for _, h := range histories {
		if h.Len() > 0 {
			out = append(out, h)
		}
	}
	return out
}

func dateAxis(histories []*models.PriceHistory) []string {
	seen := map[string]struct{}{}
	var dates []string
	for _, h := range histories {
		for _, b := range h.Bars {
			d := b.Date.Format(dateLayout)
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates
}

func closeSeries(h *models.PriceHistory, dates []string) []opts.LineData {
	values := make(map[string]float64, h.Len())
	for _, b := range h.Bars {
		values[b.Date.Format(dateLayout)] = b.Close
	}
	return align(values, dates)
}

func smaSeries(h *models.PriceHistory, dates []string, period int) []opts.LineData {
	sma := talib.Sma(h.Closes(), period)
	values := make(map[string]float64, len(sma))
	for i := period - 1; i < len(sma) && i < h.Len(); i++ {
		if math.IsNaN(sma[i]) {
			continue
		}
		values[h.Bars[i].Date.Format(dateLayout)] = sma[i]
	}
	return align(values, dates)
}

func align(values map[string]float64, dates []string) []opts.LineData {
	data := make([]opts.LineData, len(dates))
	for i, d := range dates {
		if v, ok := values[d]; ok {
			data[i] = opts.LineData{Value: round(v, 4)}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	return data
}

func round(val float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(val*p) / p
}

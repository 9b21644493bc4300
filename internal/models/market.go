package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceLookback is the number of samples between the two closes
// compared by PercentChange.
const PerformanceLookback = 30

const NotAvailable = "N/A"

// Bar is one trading day.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceHistory holds daily bars ordered by strictly increasing date.
type PriceHistory struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// NewPriceHistory sorts bars ascending by date. When two bars share a date
// the later one in the input wins.
func NewPriceHistory(symbol string, bars []Bar) *PriceHistory {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]Bar, 0, len(sorted))
	for _, bar := range sorted {
		if n := len(out); n > 0 && out[n-1].Date.Equal(bar.Date) {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return &PriceHistory{Symbol: symbol, Bars: out}
}

func (h *PriceHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Bars)
}

func (h *PriceHistory) Closes() []float64 {
	closes := make([]float64, 0, h.Len())
	if h == nil {
		return closes
	}
	for _, bar := range h.Bars {
		closes = append(closes, bar.Close)
	}
	return closes
}

// Latest returns the most recent bar.
func (h *PriceHistory) Latest() (Bar, bool) {
	if h.Len() == 0 {
		return Bar{}, false
	}
	return h.Bars[len(h.Bars)-1], true
}

// PercentChange compares the latest close with the close lookback bars
// earlier: (close[t] - close[t-lookback]) / close[t-lookback] * 100.
func (h *PriceHistory) PercentChange(lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	n := h.Len()
	if n < lookback+1 {
		return 0, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientHistory, n, lookback+1)
	}

	start := decimal.NewFromFloat(h.Bars[n-1-lookback].Close)
	end := decimal.NewFromFloat(h.Bars[n-1].Close)
	if start.IsZero() {
		return 0, fmt.Errorf("zero close on %s", h.Bars[n-1-lookback].Date.Format("2006-01-02"))
	}
	return end.Sub(start).Div(start).Mul(decimal.NewFromInt(100)).InexactFloat64(), nil
}

// CompanyInfo is the subset of company fundamentals fed to the researcher.
type CompanyInfo struct {
	Name      string `json:"name"`
	Sector    string `json:"sector"`
	MarketCap string `json:"market_cap"`
	Summary   string `json:"summary"`
}

// NewCompanyInfo fills absent fields with their sentinels: the symbol for the
// name and "N/A" for everything else.
func NewCompanyInfo(symbol, name, sector, marketCap, summary string) CompanyInfo {
	return CompanyInfo{
		Name:      orDefault(name, symbol),
		Sector:    orDefault(sector, NotAvailable),
		MarketCap: orDefault(marketCap, NotAvailable),
		Summary:   orDefault(summary, NotAvailable),
	}
}

// UnavailableCompanyInfo is used when fundamentals could not be fetched.
func UnavailableCompanyInfo(symbol string) CompanyInfo {
	return CompanyInfo{
		Name:      symbol,
		Sector:    NotAvailable,
		MarketCap: NotAvailable,
		Summary:   "Information temporarily unavailable",
	}
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "None" {
		return def
	}
	return v
}

// NewsItem is an upstream feed entry kept as raw JSON.
type NewsItem struct {
	Raw json.RawMessage
}

func (n NewsItem) MarshalJSON() ([]byte, error) {
	if len(n.Raw) == 0 {
		return []byte("null"), nil
	}
	return n.Raw, nil
}

// FormatNews renders items as a JSON array for embedding in a prompt.
func FormatNews(items []NewsItem) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// StockData is the memoized result of a combined history and overview fetch.
// InfoErr is set when the overview call failed and Info holds sentinels.
type StockData struct {
	History *PriceHistory `json:"history"`
	Info    CompanyInfo   `json:"info"`
	InfoErr error         `json:"-"`
}

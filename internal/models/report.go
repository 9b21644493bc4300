package models

import (
	"fmt"
	"strings"
	"time"
)

// Performance maps a symbol to its percent change over PerformanceLookback samples.
type Performance map[string]float64

// Format renders one "SYMBOL: +x.xx%" line per symbol, following order and
// skipping symbols without a figure.
func (p Performance) Format(order []string) string {
	var b strings.Builder
	for _, sym := range UniqueSymbols(order) {
		v, ok := p[sym]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %+.2f%%", sym, v)
	}
	return b.String()
}

// Warning records a per-symbol failure that was absorbed.
type Warning struct {
	Symbol  string `json:"symbol"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func NewWarning(symbol, stage, format string, args ...any) Warning {
	return Warning{Symbol: symbol, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func (w Warning) String() string {
	if w.Symbol == "" {
		return fmt.Sprintf("[%s] %s", w.Stage, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Stage, w.Symbol, w.Message)
}

type CompanyAnalysis struct {
	Symbol   string `json:"symbol"`
	Analysis string `json:"analysis"`
}

// Report is the outcome of one pipeline run. Final is the team lead's prose
// and the text shown to the user.
type Report struct {
	ID              string                 `json:"id"`
	Symbols         []string               `json:"symbols"`
	Performance     Performance            `json:"performance"`
	Companies       map[string]CompanyInfo `json:"companies,omitempty"`
	MarketAnalysis  string                 `json:"market_analysis"`
	CompanyAnalyses []CompanyAnalysis      `json:"company_analyses"`
	Recommendations string                 `json:"recommendations"`
	Final           string                 `json:"final"`
	Warnings        []Warning              `json:"warnings,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
}

func (r *Report) AddWarnings(ws ...Warning) {
	r.Warnings = append(r.Warnings, ws...)
}

// Markdown renders the report for saving to disk.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Investment Report: %s\n\n", strings.Join(r.Symbols, ", "))
	fmt.Fprintf(&b, "_Generated %s (run %s)_\n\n", r.FinishedAt.Format(time.RFC1123), r.ID)
	if len(r.Performance) > 0 {
		b.WriteString("## Performance (last 30 samples)\n\n")
		for _, line := range strings.Split(r.Performance.Format(r.Symbols), "\n") {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}
	if len(r.Companies) > 0 {
		b.WriteString("## Companies\n\n")
		for _, s := range r.Symbols {
			if info, ok := r.Companies[s]; ok {
				fmt.Fprintf(&b, "- %s: %s (%s, market cap %s)\n", s, info.Name, info.Sector, info.MarketCap)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(r.Final)
	b.WriteString("\n")
	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

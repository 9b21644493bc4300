package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/internal/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	reportStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2)

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// RenderReport formats a finished report for the terminal.
func RenderReport(r *models.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Investment Report: "+strings.Join(r.Symbols, ", ")) + "\n\n")

	if len(r.Performance) > 0 {
		b.WriteString(headerStyle.Render("30-day performance") + "\n")
		for _, sym := range performanceOrder(r) {
			pct := r.Performance[sym]
			style := gainStyle
			if pct < 0 {
				style = lossStyle
			}
			b.WriteString(fmt.Sprintf("  %-8s %s\n", sym, style.Render(fmt.Sprintf("%+.2f%%", pct))))
		}
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString(headerStyle.Render("Warnings") + "\n")
		for _, w := range r.Warnings {
			b.WriteString(warningStyle.Render("  "+w.String()) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(reportStyle.Render(strings.TrimSpace(r.Final)) + "\n")

	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		took := r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Run %s finished in %s", r.ID, took)) + "\n")
	}
	return b.String()
}

// performanceOrder lists the compared symbols in request order, followed by
// anything else in the map alphabetically.
func performanceOrder(r *models.Report) []string {
	seen := make(map[string]bool, len(r.Performance))
	var order []string
	for _, sym := range r.Symbols {
		if _, ok := r.Performance[sym]; ok && !seen[sym] {
			seen[sym] = true
			order = append(order, sym)
		}
	}
	var rest []string
	for sym := range r.Performance {
		if !seen[sym] {
			rest = append(rest, sym)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// RenderHistory shows the last days bars of h as a table, newest first.
func RenderHistory(h *models.PriceHistory, days int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(h.Symbol+" daily prices") + "\n")

	if pct, err := h.PercentChange(models.PerformanceLookback); err == nil {
		style := gainStyle
		if pct < 0 {
			style = lossStyle
		}
		b.WriteString(fmt.Sprintf("30-day change: %s\n", style.Render(fmt.Sprintf("%+.2f%%", pct))))
	}

	if days <= 0 || days > len(h.Bars) {
		days = len(h.Bars)
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("Date", "Open", "High", "Low", "Close", "Volume")
	for i := len(h.Bars) - 1; i >= len(h.Bars)-days; i-- {
		bar := h.Bars[i]
		t.Row(
			bar.Date.Format("2006-01-02"),
			humanize.FormatFloat("#,###.##", bar.Open),
			humanize.FormatFloat("#,###.##", bar.High),
			humanize.FormatFloat("#,###.##", bar.Low),
			humanize.FormatFloat("#,###.##", bar.Close),
			humanize.Comma(int64(bar.Volume)),
		)
	}
	b.WriteString(t.String() + "\n")
	return b.String()
}

// RenderConfig lists the effective configuration. Secrets are only reported
// as configured or not.
func RenderConfig(cfg *config.Config) string {
	var b strings.Builder
	row := func(name string, value any) {
		b.WriteString(fmt.Sprintf("%-22s %v\n", name+":", value))
	}
	configured := func(v string) string {
		if v == "" {
			return lossStyle.Render("not configured")
		}
		return gainStyle.Render("configured")
	}

	b.WriteString(titleStyle.Render("Current CortexReport Configuration") + "\n")
	row("Project Directory", cfg.ProjectDir)
	row("Results Directory", cfg.ResultsDir)
	b.WriteString("\n")
	row("LLM Provider", cfg.LLMProvider)
	row("Model", cfg.QuickThinkLLM)
	row("Backend URL", cfg.BackendURL)
	row("Max Tokens", cfg.MaxTokens)
	row("LLM API Key", configured(cfg.LLMAPIKey()))
	b.WriteString("\n")
	row("Alpha Vantage URL", cfg.AlphaVantageBaseURL)
	row("Alpha Vantage Key", configured(cfg.AlphaVantageAPIKey))
	row("Call Interval", cfg.CallInterval)
	row("Company Pacing", cfg.CompanyPacing)
	row("Cache TTL", cfg.CacheTTL)
	row("HTTP Timeout", cfg.HTTPTimeout)
	b.WriteString("\n")
	row("Recompute Strategy", cfg.RecomputeStrategyInputs)
	row("Company Concurrency", cfg.CompanyConcurrency)
	row("Server Address", cfg.ServerAddr)
	row("Debug Mode", cfg.Debug)
	row("Tracing", cfg.TracingEnabled)
	row("Eino Debug", cfg.EinoDebugEnabled)
	if cfg.EinoDebugEnabled {
		row("Eino Debug URL", fmt.Sprintf("http://localhost:%d", cfg.EinoDebugPort))
	}
	return b.String()
}

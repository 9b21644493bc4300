package graph

import (
	"fmt"
	"strings"

	"github.com/dyike/CortexReport/internal/models"
)

func marketPrompt(perf models.Performance, symbols []string) string {
	return "Compare these stock performances:\n" + perf.Format(symbols)
}

func companyPrompt(info models.CompanyInfo, news []models.NewsItem) string {
	return fmt.Sprintf("Provide an analysis for %s in the %s sector.\nMarket Cap: %s\nSummary: %s\nLatest News: %s",
		info.Name, info.Sector, info.MarketCap, info.Summary, models.FormatNews(news))
}

func strategyPrompt(marketAnalysis string, companies []models.CompanyAnalysis) string {
	return fmt.Sprintf("Based on the market analysis: %s, and company news %s, which stocks would you recommend for investment?",
		marketAnalysis, companyBlock(companies))
}

func synthesisPrompt(marketAnalysis string, companies []models.CompanyAnalysis, recommendations string) string {
	return fmt.Sprintf("Market Analysis:\n%s\n\nCompany Analyses:\n%s\n\nStock Recommendations:\n%s\n\n"+
		"Provide the full analysis of each stock with Fundamentals and market news. "+
		"Generate a final ranked list in ascending order on which should I buy.",
		marketAnalysis, companyList(companies), recommendations)
}

// companyBlock keys analyses by symbol: a repeated symbol keeps its last
// analysis at its first position.
func companyBlock(companies []models.CompanyAnalysis) string {
	latest := make(map[string]string, len(companies))
	order := make([]string, 0, len(companies))
	for _, c := range companies {
		if _, ok := latest[c.Symbol]; !ok {
			order = append(order, c.Symbol)
		}
		latest[c.Symbol] = c.Analysis
	}

	parts := make([]string, 0, len(order))
	for _, sym := range order {
		parts = append(parts, sym+": "+latest[sym])
	}
	return strings.Join(parts, "\n\n")
}

// companyList keeps every analysis, duplicates included, in input order.
func companyList(companies []models.CompanyAnalysis) string {
	parts := make([]string, 0, len(companies))
	for _, c := range companies {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", c.Symbol, c.Analysis))
	}
	return strings.Join(parts, "\n\n")
}

// Package analysis turns raw market data into the figures the report is built on.
package analysis

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dyike/CortexReport/internal/models"
)

const stageName = "market"

// StockFetcher is the slice of the market data client the comparator needs.
type StockFetcher interface {
	FetchStock(ctx context.Context, symbol string) (*models.StockData, error)
}

// Comparison holds the per-symbol results of one Compare call.
type Comparison struct {
	// Symbols lists symbols with a figure, first-seen order.
	Symbols     []string
	Performance models.Performance
	Info        map[string]models.CompanyInfo
	Warnings    []models.Warning
}

func (c *Comparison) Empty() bool {
	return len(c.Performance) == 0
}

type Comparator struct {
	fetcher  StockFetcher
	lookback int
	logger   *zap.Logger
}

func NewComparator(fetcher StockFetcher, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{fetcher: fetcher, lookback: models.PerformanceLookback, logger: logger}
}

// Compare computes the percent change over the lookback window for each
// symbol. Symbols whose data cannot be fetched, or whose history is too
// short, are skipped with a warning.
func (c *Comparator) Compare(ctx context.Context, symbols []string) (*Comparison, error) {
	out := &Comparison{
		Symbols:     []string{},
		Performance: models.Performance{},
		Info:        map[string]models.CompanyInfo{},
	}

	for _, raw := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		symbol := models.NormalizeSymbol(raw)

		data, err := c.fetcher.FetchStock(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			c.warn(out, models.NewWarning(symbol, stageName, "skipped: %v", err))
			continue
		}
		if data == nil || data.History == nil {
			c.warn(out, models.NewWarning(symbol, stageName, "skipped: %v", models.ErrNoData))
			continue
		}

		pct, err := data.History.PercentChange(c.lookback)
		if err != nil {
			c.warn(out, models.NewWarning(symbol, stageName, "skipped: %v", err))
			continue
		}
		if data.InfoErr != nil {
			c.warn(out, models.NewWarning(symbol, stageName, "company overview unavailable: %v", data.InfoErr))
		}

		if _, seen := out.Performance[symbol]; !seen {
			out.Symbols = append(out.Symbols, symbol)
		}
		out.Performance[symbol] = pct
		out.Info[symbol] = data.Info
	}
	return out, nil
}

func (c *Comparator) warn(out *Comparison, w models.Warning) {
	c.logger.Warn(w.Message, zap.String("symbol", w.Symbol), zap.String("stage", w.Stage))
	out.Warnings = append(out.Warnings, w)
}

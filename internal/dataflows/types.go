package dataflows

import (
	"context"

	"github.com/dyike/CortexReport/internal/models"
)

// MarketData is the upstream surface used by the comparator and the report
// pipeline.
type MarketData interface {
	FetchHistory(ctx context.Context, symbol string) (*models.PriceHistory, error)
	FetchOverview(ctx context.Context, symbol string) (models.CompanyInfo, error)
	FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error)
	FetchStock(ctx context.Context, symbol string) (*models.StockData, error)
}

// HistorySource yields daily bars for charting.
type HistorySource interface {
	History(ctx context.Context, symbol string) (*models.PriceHistory, error)
}

// HistoryFunc adapts a function to HistorySource.
type HistoryFunc func(ctx context.Context, symbol string) (*models.PriceHistory, error)

func (f HistoryFunc) History(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	return f(ctx, symbol)
}

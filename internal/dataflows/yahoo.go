package dataflows

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/CortexReport/internal/models"
)

// YahooHistory reads daily bars from Yahoo Finance. It backs charts only.
type YahooHistory struct {
	// Days is the window ending now.
	Days int
	now  func() time.Time
}

func NewYahooHistory(days int) *YahooHistory {
	if days <= 0 {
		days = 100
	}
	return &YahooHistory{Days: days, now: time.Now}
}

func (y *YahooHistory) History(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)
	end := y.now()
	start := end.AddDate(0, 0, -y.Days)

	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	bars := make([]models.Bar, 0, y.Days)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars = append(bars, barFromChart(iter.Bar()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo history for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo history for %s: %w", symbol, models.ErrNoData)
	}
	return models.NewPriceHistory(symbol, bars), nil
}

func barFromChart(b *finance.ChartBar) models.Bar {
	ts := time.Unix(int64(b.Timestamp), 0).UTC()
	return models.Bar{
		Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: float64(b.Volume),
	}
}

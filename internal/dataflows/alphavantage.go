package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/internal/cache"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/ratelimit"
)

const (
	DefaultBaseURL      = "https://www.alphavantage.co"
	DefaultCallInterval = 12 * time.Second
	DefaultCacheTTL     = 600 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second

	// NewsLimit caps the feed items kept per symbol.
	NewsLimit = 5

	dailySeriesKey = "Time Series (Daily)"
)

// upstream keys carrying a human readable reason for an empty answer
var noticeKeys = []string{"Error Message", "Note", "Information"}

// ErrMissingAPIKey is returned by NewAlphaVantageClient when no key is set.
var ErrMissingAPIKey = errors.New("alpha vantage api key is required")

type Options struct {
	APIKey      string
	BaseURL     string
	Limiter     ratelimit.Limiter
	Cache       *cache.TTL[string, *models.StockData]
	Clock       ratelimit.Clock
	HTTPTimeout time.Duration
	Logger      *zap.Logger
}

// AlphaVantageClient fetches daily prices, fundamentals and news from the
// Alpha Vantage query API.
type AlphaVantageClient struct {
	client  *resty.Client
	apiKey  string
	limiter ratelimit.Limiter
	memo    *cache.TTL[string, *models.StockData]
	logger  *zap.Logger
}

var _ MarketData = (*AlphaVantageClient)(nil)

// NewAlphaVantageClient creates a client. Unset options fall back to a 12s
// call spacer on wall time, a 600s memo and a 30s HTTP timeout.
func NewAlphaVantageClient(opts Options) (*AlphaVantageClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Clock == nil {
		opts.Clock = ratelimit.RealClock()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewSpacer(opts.Clock, DefaultCallInterval)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewTTL[string, *models.StockData](DefaultCacheTTL, opts.Clock)
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = DefaultHTTPTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetTimeout(opts.HTTPTimeout)

	return &AlphaVantageClient{
		client:  client,
		apiKey:  opts.APIKey,
		limiter: opts.Limiter,
		memo:    opts.Cache,
		logger:  opts.Logger,
	}, nil
}

// FetchHistory returns the compact daily series for symbol.
func (c *AlphaVantageClient) FetchHistory(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	symbol = models.NormalizeSymbol(symbol)
	body, err := c.query(ctx, map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": "compact",
	})
	if err != nil {
		return nil, fmt.Errorf("daily series for %s: %w", symbol, err)
	}

	series, ok := topLevel(body, dailySeriesKey)
	if !ok || !series.IsObject() {
		return nil, fmt.Errorf("daily series for %s: %w", symbol, noDataError(body))
	}

	bars := make([]models.Bar, 0, 100)
	var parseErr error
	series.ForEach(func(key, value gjson.Result) bool {
		bar, err := parseBar(key.String(), value)
		if err != nil {
			parseErr = fmt.Errorf("daily series for %s: %w", symbol, err)
			return false
		}
		bars = append(bars, bar)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("daily series for %s: %w", symbol, models.ErrNoData)
	}
	return models.NewPriceHistory(symbol, bars), nil
}

// FetchOverview returns company fundamentals. On failure the sentinel info is
// returned together with the error.
func (c *AlphaVantageClient) FetchOverview(ctx context.Context, symbol string) (models.CompanyInfo, error) {
	symbol = models.NormalizeSymbol(symbol)
	body, err := c.query(ctx, map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	})
	if err != nil {
		return models.UnavailableCompanyInfo(symbol), fmt.Errorf("overview for %s: %w", symbol, err)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return models.UnavailableCompanyInfo(symbol), fmt.Errorf("overview for %s: unexpected payload", symbol)
	}
	// Throttle notices and unknown tickers come back as 200 with no company
	// fields at all.
	if hasNotice(body) || (!doc.Get("Symbol").Exists() && !doc.Get("Name").Exists()) {
		return models.UnavailableCompanyInfo(symbol), fmt.Errorf("overview for %s: %w", symbol, noDataError(body))
	}
	return models.NewCompanyInfo(symbol,
		doc.Get("Name").String(),
		doc.Get("Sector").String(),
		doc.Get("MarketCapitalization").String(),
		doc.Get("Description").String(),
	), nil
}

// FetchNews returns up to NewsLimit feed entries mentioning symbol.
func (c *AlphaVantageClient) FetchNews(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	symbol = models.NormalizeSymbol(symbol)
	body, err := c.query(ctx, map[string]string{
		"function": "NEWS_SENTIMENT",
		"tickers":  symbol,
		"limit":    strconv.Itoa(NewsLimit),
	})
	if err != nil {
		return []models.NewsItem{}, fmt.Errorf("news for %s: %w", symbol, err)
	}

	feed := gjson.GetBytes(body, "feed")
	if !feed.Exists() {
		return []models.NewsItem{}, nil
	}
	if !feed.IsArray() {
		return []models.NewsItem{}, fmt.Errorf("news for %s: feed is not an array", symbol)
	}

	items := make([]models.NewsItem, 0, NewsLimit)
	feed.ForEach(func(_, value gjson.Result) bool {
		items = append(items, models.NewsItem{Raw: json.RawMessage(value.Raw)})
		return len(items) < NewsLimit
	})
	return items, nil
}

// FetchStock returns history and overview for symbol, served from the memo
// when a complete pair was fetched within the cache TTL.
func (c *AlphaVantageClient) FetchStock(ctx context.Context, symbol string) (*models.StockData, error) {
	symbol = models.NormalizeSymbol(symbol)
	if data, ok := c.memo.Get(symbol); ok {
		c.logger.Debug("stock data served from cache", zap.String("symbol", symbol))
		return data, nil
	}

	history, err := c.FetchHistory(ctx, symbol)
	if err != nil {
		return nil, err
	}

	info, infoErr := c.FetchOverview(ctx, symbol)
	data := &models.StockData{History: history, Info: info, InfoErr: infoErr}
	if infoErr != nil {
		c.logger.Warn("company overview unavailable",
			zap.String("symbol", symbol), zap.Error(infoErr))
		return data, nil
	}

	c.memo.Put(symbol, data)
	return data, nil
}

// Invalidate drops the memoized pair for symbol.
func (c *AlphaVantageClient) Invalidate(symbol string) {
	c.memo.Invalidate(models.NormalizeSymbol(symbol))
}

func (c *AlphaVantageClient) query(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := make(map[string]string, len(params)+1)
	for k, v := range params {
		query[k] = v
	}
	query["apikey"] = c.apiKey

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", params["function"], err)
	}
	c.logger.Debug("alpha vantage call",
		zap.String("function", params["function"]),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("request %s: unexpected status %d", params["function"], resp.StatusCode())
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("request %s: invalid JSON response", params["function"])
	}
	return body, nil
}

// topLevel looks up a key verbatim; gjson paths would need the spaces and
// parentheses in Alpha Vantage key names escaped.
func topLevel(body []byte, name string) (gjson.Result, bool) {
	var found gjson.Result
	ok := false
	gjson.ParseBytes(body).ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			found, ok = value, true
			return false
		}
		return true
	})
	return found, ok
}

func hasNotice(body []byte) bool {
	for _, key := range noticeKeys {
		if _, ok := topLevel(body, key); ok {
			return true
		}
	}
	return false
}

func noDataError(body []byte) error {
	for _, key := range noticeKeys {
		if v, ok := topLevel(body, key); ok && v.String() != "" {
			return fmt.Errorf("%w: %s", models.ErrNoData, v.String())
		}
	}
	return models.ErrNoData
}

func parseBar(date string, value gjson.Result) (models.Bar, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return models.Bar{}, fmt.Errorf("bad date %q: %w", date, err)
	}
	bar := models.Bar{Date: day}
	fields := []struct {
		path string
		dst  *float64
	}{
		{`1\. open`, &bar.Open},
		{`2\. high`, &bar.High},
		{`3\. low`, &bar.Low},
		{`4\. close`, &bar.Close},
		{`5\. volume`, &bar.Volume},
	}
	for _, f := range fields {
		raw := value.Get(f.path)
		if !raw.Exists() {
			return models.Bar{}, fmt.Errorf("%s: missing %q", date, strings.ReplaceAll(f.path, `\`, ""))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw.String()), 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("%s: %s: %w", date, strings.ReplaceAll(f.path, `\`, ""), err)
		}
		*f.dst = v
	}
	return bar, nil
}

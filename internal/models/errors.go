package models

import "errors"

var (
	// ErrNoData means the upstream answered without the expected payload.
	ErrNoData = errors.New("no data returned")

	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrNoMarketData aborts a report: no symbol produced a performance figure.
	ErrNoMarketData = errors.New("no valid stock data found for the given symbols")

	ErrNoSymbols = errors.New("at least one stock symbol is required")
)

// Package market defines the data and trading contracts the bot depends on,
// plus the concrete vendor adapters that satisfy them.
package market

import (
	"context"
	"time"
)

// Bar is one OHLCV record for a fixed interval. Timestamps are always UTC;
// aggregation and indicator math rely on that.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Side enumerates order directions accepted by trading clients.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderRequest is a placement request forwarded to a trading client.
type OrderRequest struct {
	Symbol      string
	Qty         float64
	Side        Side
	TimeInForce string
}

// Position is a broker-reported holding, used during reconciliation.
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	AssetID       string
}

// DataProvider supplies historical bars and a live 1-minute bar stream.
// Implementations must deliver bars per symbol in non-decreasing timestamp
// order; consumers drop anything older than their current window.
type DataProvider interface {
	// ActiveSymbols returns up to limit tickers ranked by activity descending.
	ActiveSymbols(ctx context.Context, limit int) ([]string, error)
	// HistoricalBars fetches OHLCV bars for one symbol at the given timeframe.
	HistoricalBars(ctx context.Context, symbol string, timeframeMinutes int, start, end time.Time) ([]Bar, error)
	// Subscribe registers fn for live bar updates. Setup only; the stream is
	// started by Stream.
	Subscribe(symbols []string, fn func(Bar))
	// Stream runs the blocking event loop until ctx is canceled.
	Stream(ctx context.Context) error
}

// TradingClient submits orders and reports broker-held positions.
type TradingClient interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	Positions(ctx context.Context) ([]Position, error)
}

// Package paper simulates broker order execution against marked prices so
// the bot can run replays and tests without touching a real venue.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
)

const epsilon = 1e-9

// Fill is one simulated execution.
type Fill struct {
	OrderID string      `json:"order_id"`
	Symbol  string      `json:"symbol"`
	Side    market.Side `json:"side"`
	Qty     float64     `json:"qty"`
	Price   float64     `json:"price"`
	Ts      time.Time   `json:"ts"`
}

// FillRecorder captures simulated fills for later inspection.
type FillRecorder interface {
	Record(Fill)
}

type positionState struct {
	qty     float64
	avgCost float64
}

// Client implements market.TradingClient with virtual cash and positions.
// Market orders fill immediately at the latest marked price for the symbol.
type Client struct {
	log      zerolog.Logger
	recorder FillRecorder

	mu          sync.Mutex
	cash        float64
	realizedPnL float64
	marks       map[string]float64
	positions   map[string]positionState
}

// NewClient constructs a paper client with starting cash. recorder may be
// nil.
func NewClient(startingCash float64, recorder FillRecorder, log zerolog.Logger) *Client {
	return &Client{
		log:       log.With().Str("component", "paper").Logger(),
		recorder:  recorder,
		cash:      startingCash,
		marks:     make(map[string]float64),
		positions: make(map[string]positionState),
	}
}

// MarkPrice records the latest traded price for a symbol; subsequent market
// orders for it fill at this level.
func (c *Client) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.marks[symbol] = price
	c.mu.Unlock()
}

// SubmitOrder fills a market order at the current mark, mutating balances.
func (c *Client) SubmitOrder(_ context.Context, req market.OrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", errors.New("quantity must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	price, ok := c.marks[req.Symbol]
	if !ok || price <= 0 {
		return "", fmt.Errorf("no mark price for %s", req.Symbol)
	}
	state := c.positions[req.Symbol]
	notional := req.Qty * price

	switch req.Side {
	case market.Buy:
		if notional > c.cash+epsilon {
			return "", errors.New("insufficient cash for buy")
		}
		newQty := state.qty + req.Qty
		newAvg := price
		if newQty > 0 {
			newAvg = (state.avgCost*state.qty + notional) / newQty
		}
		c.cash -= notional
		c.positions[req.Symbol] = positionState{qty: newQty, avgCost: newAvg}

	case market.Sell:
		if state.qty <= 0 || state.qty+epsilon < req.Qty {
			return "", errors.New("insufficient position to sell")
		}
		c.realizedPnL += (price - state.avgCost) * req.Qty
		c.cash += notional
		newQty := state.qty - req.Qty
		if newQty <= epsilon {
			delete(c.positions, req.Symbol)
		} else {
			c.positions[req.Symbol] = positionState{qty: newQty, avgCost: state.avgCost}
		}

	default:
		return "", errors.New("unknown order side")
	}

	id := uuid.NewString()
	fill := Fill{OrderID: id, Symbol: req.Symbol, Side: req.Side, Qty: req.Qty, Price: price, Ts: time.Now().UTC()}
	if c.recorder != nil {
		c.recorder.Record(fill)
	}
	c.log.Info().
		Str("order_id", id).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Qty).
		Float64("price", price).
		Msg("paper fill")
	return id, nil
}

// Positions reports the simulated holdings in the broker schema.
func (c *Client) Positions(_ context.Context) ([]market.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]market.Position, 0, len(c.positions))
	for symbol, state := range c.positions {
		out = append(out, market.Position{
			Symbol:        symbol,
			Qty:           state.qty,
			AvgEntryPrice: state.avgCost,
		})
	}
	return out, nil
}

// Cash returns free cash available for new longs.
func (c *Client) Cash() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cash
}

// RealizedPnL returns total closed-trade profit and loss.
func (c *Client) RealizedPnL() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.realizedPnL
}

// Equity marks every open position to its latest price and adds cash.
func (c *Client) Equity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	equity := c.cash
	for symbol, state := range c.positions {
		equity += state.qty * c.marks[symbol]
	}
	return equity
}

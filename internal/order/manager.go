// Package order turns signals into risk-sized, protected orders and tracks
// them until an exit condition fires or broker state is reconciled.
package order

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
	"buildabot-go/internal/signal"
)

// Notifier receives trade lifecycle events. Delivery is best-effort; the
// manager never depends on it succeeding.
type Notifier interface {
	Trade(action, symbol string, price, qty float64, reason string)
	Error(context, msg string)
}

type nopNotifier struct{}

func (nopNotifier) Trade(string, string, float64, float64, string) {}
func (nopNotifier) Error(string, string) {}

// Active is one tracked position with its protective levels. Mutated only by
// trailing-stop updates and destroyed when an exit fires.
type Active struct {
	ID         string
	Symbol     string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
}

// Manager exclusively owns the active-order table. All access is serialized
// behind its mutex so exit checks and placements from different symbol
// workers never race.
type Manager struct {
	client market.TradingClient
	params signal.OrderParams
	notify Notifier
	log    zerolog.Logger

	mu     sync.Mutex
	orders map[string]*Active
	// Recent closes per symbol, bounded to the long SMA period, feeding the
	// trailing-stop crossover check.
	closeHistory map[string][]float64
}

// NewManager builds a manager bound to a trading client and the strategy's
// order parameters. A nil notifier disables notifications.
func NewManager(client market.TradingClient, params signal.OrderParams, notify Notifier, log zerolog.Logger) *Manager {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Manager{
		client:       client,
		params:       params,
		notify:       notify,
		log:          log.With().Str("component", "order_manager").Logger(),
		orders:       make(map[string]*Active),
		closeHistory: make(map[string][]float64),
	}
}

// Place submits a market buy sized from capital and the configured risk
// percentage. Degenerate inputs (zero price, non-positive quantity) are a
// no-op. Nothing is tracked unless submission succeeds.
func (m *Manager) Place(ctx context.Context, sig signal.Signal, capital float64) (string, bool) {
	if sig.Price == 0 {
		m.log.Warn().Str("symbol", sig.Symbol).Msg("zero entry price, skipping order")
		return "", false
	}
	qty := capital * m.params.RiskPercentage / sig.Price
	if qty <= 0 {
		m.log.Warn().
			Str("symbol", sig.Symbol).
			Float64("capital", capital).
			Float64("qty", qty).
			Msg("non-positive quantity, skipping order")
		return "", false
	}
	stopLoss, takeProfit := m.protectiveLevels(sig.Price)

	id, err := m.client.SubmitOrder(ctx, market.OrderRequest{
		Symbol:      sig.Symbol,
		Qty:         qty,
		Side:        market.Buy,
		TimeInForce: "gtc",
	})
	if err != nil {
		m.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("order submission failed")
		m.notify.Error("order submission", err.Error())
		return "", false
	}

	m.mu.Lock()
	m.orders[id] = &Active{
		ID:         id,
		Symbol:     sig.Symbol,
		EntryPrice: sig.Price,
		Quantity:   qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	open := len(m.orders)
	m.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(market.Buy), "signal").Inc()
	metrics.OpenPositions.Set(float64(open))
	m.log.Info().
		Str("order_id", id).
		Str("symbol", sig.Symbol).
		Float64("qty", qty).
		Float64("entry", sig.Price).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Msg("order placed")
	m.notify.Trade(string(signal.Buy), sig.Symbol, sig.Price, qty, "entry signal")
	return id, true
}

// Monitor checks every tracked order whose symbol has a fresh price. Exit
// precedence is stop-loss, then take-profit, then the trailing-stop ratchet.
// A failure on one order never prevents the rest from being checked.
func (m *Manager) Monitor(ctx context.Context, prices map[string]float64) {
	m.recordCloses(prices)

	m.mu.Lock()
	snapshot := make([]Active, 0, len(m.orders))
	for _, o := range m.orders {
		snapshot = append(snapshot, *o)
	}
	m.mu.Unlock()

	for _, o := range snapshot {
		price, ok := prices[o.Symbol]
		if !ok {
			continue
		}
		switch {
		case price <= o.StopLoss:
			m.exit(ctx, o, price, "stop-loss")
		case price >= o.TakeProfit:
			m.exit(ctx, o, price, "take-profit")
		default:
			m.maybeRaiseStop(o.ID, price)
		}
	}
}

// SyncPositions adopts broker-held positions that are not already tracked,
// recomputing protective levels from the broker's average entry price.
// Idempotent: a symbol already tracked is left untouched.
func (m *Manager) SyncPositions(ctx context.Context) error {
	positions, err := m.client.Positions(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	tracked := make(map[string]bool, len(m.orders))
	for _, o := range m.orders {
		tracked[o.Symbol] = true
	}
	adopted := 0
	for _, pos := range positions {
		if tracked[pos.Symbol] || pos.Qty == 0 {
			continue
		}
		stopLoss, takeProfit := m.protectiveLevels(pos.AvgEntryPrice)
		id := uuid.NewString()
		m.orders[id] = &Active{
			ID:         id,
			Symbol:     pos.Symbol,
			EntryPrice: pos.AvgEntryPrice,
			Quantity:   pos.Qty,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
		}
		tracked[pos.Symbol] = true
		adopted++
		m.log.Info().
			Str("order_id", id).
			Str("symbol", pos.Symbol).
			Float64("entry", pos.AvgEntryPrice).
			Float64("qty", pos.Qty).
			Msg("adopted broker position")
	}
	open := len(m.orders)
	m.mu.Unlock()

	metrics.OpenPositions.Set(float64(open))
	if adopted > 0 {
		m.log.Info().Int("adopted", adopted).Msg("position reconciliation complete")
	}
	return nil
}

// Open returns a snapshot of the tracked orders.
func (m *Manager) Open() []Active {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Active, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *Manager) protectiveLevels(entry float64) (stopLoss, takeProfit float64) {
	return entry * m.params.SLMultiplier, entry * m.params.TPMultiplier
}

func (m *Manager) exit(ctx context.Context, o Active, price float64, reason string) {
	_, err := m.client.SubmitOrder(ctx, market.OrderRequest{
		Symbol:      o.Symbol,
		Qty:         o.Quantity,
		Side:        market.Sell,
		TimeInForce: "gtc",
	})
	if err != nil {
		// Keep the order tracked; the exit retries on the next tick.
		m.log.Error().Err(err).
			Str("order_id", o.ID).
			Str("symbol", o.Symbol).
			Str("reason", reason).
			Msg("exit submission failed")
		m.notify.Error("exit submission", err.Error())
		return
	}

	m.mu.Lock()
	delete(m.orders, o.ID)
	open := len(m.orders)
	m.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(o.Symbol, string(market.Sell), reason).Inc()
	metrics.OpenPositions.Set(float64(open))
	m.log.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Float64("price", price).
		Float64("entry", o.EntryPrice).
		Str("reason", reason).
		Msg("position closed")
	m.notify.Trade(string(signal.Sell), o.Symbol, price, o.Quantity, reason)
}

// maybeRaiseStop ratchets the stop-loss upward when the trailing-stop SMA
// precondition holds. The stop only ever rises.
func (m *Manager) maybeRaiseStop(id string, price float64) {
	if !m.params.UseTrailingStop {
		return
	}
	if m.params.SMAShortPeriod <= 0 || m.params.SMALongPeriod <= m.params.SMAShortPeriod || m.params.CrossoverDirection == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return
	}
	shortSMA, longSMA, ok := m.trailingSMAs(o.Symbol)
	if !ok {
		return
	}

	aligned := (m.params.CrossoverDirection == signal.CrossLong && shortSMA > longSMA) ||
		(m.params.CrossoverDirection == signal.CrossShort && shortSMA < longSMA)
	if !aligned {
		return
	}

	if next := price * m.params.SLMultiplier; next > o.StopLoss {
		m.log.Info().
			Str("order_id", o.ID).
			Str("symbol", o.Symbol).
			Float64("old_stop", o.StopLoss).
			Float64("new_stop", next).
			Msg("trailing stop raised")
		o.StopLoss = next
	}
}

// trailingSMAs computes rolling short/long SMAs over the recorded closes.
// Both windows must be full before a comparison is meaningful; until then
// the ratchet stays idle.
func (m *Manager) trailingSMAs(symbol string) (shortSMA, longSMA float64, ok bool) {
	window := m.closeHistory[symbol]
	if len(window) < m.params.SMALongPeriod {
		return 0, 0, false
	}
	return mean(window[len(window)-m.params.SMAShortPeriod:]),
		mean(window[len(window)-m.params.SMALongPeriod:]),
		true
}

func (m *Manager) recordCloses(prices map[string]float64) {
	if !m.params.UseTrailingStop || m.params.SMALongPeriod <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol, price := range prices {
		window := append(m.closeHistory[symbol], price)
		if len(window) > m.params.SMALongPeriod {
			window = window[len(window)-m.params.SMALongPeriod:]
		}
		m.closeHistory[symbol] = window
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

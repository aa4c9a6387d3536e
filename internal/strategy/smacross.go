package strategy

import (
	"math"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
	"buildabot-go/internal/signal"
)

// SMACross emits a BUY when the fast simple moving average crosses above the
// slow one. Stateless across calls; the cross is read off the last two
// candles of the supplied history.
type SMACross struct {
	fastPeriod int
	slowPeriod int
	order      signal.OrderParams
	log        zerolog.Logger
}

// NewSMACross builds the crossover strategy with defaults for degenerate
// periods.
func NewSMACross(params Params, log zerolog.Logger) *SMACross {
	s := &SMACross{
		fastPeriod: params.FastPeriod,
		slowPeriod: params.SlowPeriod,
		order:      params.Order,
		log:        log.With().Str("strategy", "SMACross").Logger(),
	}
	if s.fastPeriod <= 0 {
		s.fastPeriod = 10
	}
	if s.slowPeriod <= s.fastPeriod {
		s.slowPeriod = 50
	}
	if s.order == (signal.OrderParams{}) {
		s.order = signal.OrderParams{RiskPercentage: 0.02, TPMultiplier: 1.5, SLMultiplier: 0.9}
	}
	return s
}

// Name returns the identifier for the strategy implementation.
func (s *SMACross) Name() string { return "SMACross" }

// OrderParams returns the risk parameters this strategy trades with.
func (s *SMACross) OrderParams() signal.OrderParams { return s.order }

// WarmupPeriod reports the candle count needed for a defined slow SMA on two
// consecutive candles.
func (s *SMACross) WarmupPeriod() int { return s.slowPeriod + 1 }

// Analyze checks for a bullish cross on the latest candle.
func (s *SMACross) Analyze(symbol string, history []market.Bar) []signal.Signal {
	if len(history) < s.WarmupPeriod() {
		return nil
	}

	cl := closes(history)
	fast := sma(cl, s.fastPeriod)
	slow := sma(cl, s.slowPeriod)

	last := len(cl) - 1
	prevFast, prevSlow := fast[last-1], slow[last-1]
	curFast, curSlow := fast[last], slow[last]
	if math.IsNaN(prevFast) || math.IsNaN(prevSlow) || math.IsNaN(curFast) || math.IsNaN(curSlow) {
		return nil
	}
	if !(prevFast < prevSlow && curFast > curSlow) {
		return nil
	}

	price := cl[last]
	s.log.Info().
		Str("symbol", symbol).
		Float64("fast", curFast).
		Float64("slow", curSlow).
		Float64("price", price).
		Msg("buy signal: bullish sma cross")
	metrics.SignalsTotal.WithLabelValues(symbol, s.Name()).Inc()
	return []signal.Signal{{
		Type:   signal.Buy,
		Symbol: symbol,
		Price:  price,
		Ts:     history[last].Timestamp,
	}}
}

package strategy

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
	"buildabot-go/internal/signal"
)

// RSIBBands is a staged mean-reversion detector. Stage 1 arms when price
// closes below the lower Bollinger band while RSI is deeply oversold; stage 2
// confirms on recovering RSI, expanding bands, and a bullish engulfing
// candle, emitting a BUY. A setup that goes stale (RSI drifting too high
// while armed) is abandoned without a signal.
type RSIBBands struct {
	bbPeriod    int
	bbStdDev    float64
	rsiPeriod   int
	rocPeriod   int
	stage1RSI   float64
	stage2Entry float64
	stage2Exit  float64
	resetMargin float64
	minROC      float64
	order       signal.OrderParams
	log         zerolog.Logger

	mu     sync.Mutex
	staged map[string]bool
}

// NewRSIBBands builds the staged RSI/Bollinger strategy, clamping degenerate
// parameters to the defaults inherited from the reference configuration.
func NewRSIBBands(params Params, log zerolog.Logger) *RSIBBands {
	s := &RSIBBands{
		bbPeriod:    params.BBPeriod,
		bbStdDev:    params.BBStdDev,
		rsiPeriod:   params.RSIPeriod,
		rocPeriod:   params.ROCPeriod,
		stage1RSI:   params.Stage1RSI,
		stage2Entry: params.Stage2Entry,
		stage2Exit:  params.Stage2Exit,
		resetMargin: params.ResetMargin,
		minROC:      params.MinROC,
		order:       params.Order,
		log:         log.With().Str("strategy", "RSIBBands").Logger(),
		staged:      make(map[string]bool),
	}
	if s.bbPeriod <= 1 {
		s.bbPeriod = 20
	}
	if s.bbStdDev <= 0 {
		s.bbStdDev = 2
	}
	if s.rsiPeriod < 2 {
		s.rsiPeriod = 14
	}
	if s.rocPeriod <= 0 {
		s.rocPeriod = 9
	}
	if s.stage1RSI <= 0 {
		s.stage1RSI = 25
	}
	if s.stage2Entry <= 0 {
		s.stage2Entry = 30
	}
	if s.stage2Exit <= s.stage2Entry {
		s.stage2Exit = 35
	}
	if s.resetMargin <= 0 {
		s.resetMargin = 5
	}
	if s.minROC == 0 {
		s.minROC = 0.15
	}
	if s.order == (signal.OrderParams{}) {
		s.order = signal.OrderParams{RiskPercentage: 0.02, TPMultiplier: 1.5, SLMultiplier: 0.9}
	}
	return s
}

// Name returns the identifier for the strategy implementation.
func (s *RSIBBands) Name() string { return "RSIBBands" }

// OrderParams returns the risk parameters this strategy trades with.
func (s *RSIBBands) OrderParams() signal.OrderParams { return s.order }

// WarmupPeriod reports the minimum candle count before analysis is
// meaningful: the bandwidth ROC needs a full band period plus its own lag.
func (s *RSIBBands) WarmupPeriod() int {
	warmup := s.bbPeriod + s.rocPeriod
	if rsiWarmup := s.rsiPeriod + 1; rsiWarmup > warmup {
		warmup = rsiWarmup
	}
	return warmup
}

// Analyze evaluates the staged state machine for one symbol over its candle
// history and returns at most one BUY signal.
func (s *RSIBBands) Analyze(symbol string, history []market.Bar) []signal.Signal {
	if len(history) < s.WarmupPeriod() {
		return nil
	}

	cl := closes(history)
	upper, _, lower := bollinger(cl, s.bbPeriod, s.bbStdDev)
	rsiSeries := rsi(cl, s.rsiPeriod)

	bandwidth := make([]float64, len(cl))
	for i := range bandwidth {
		bandwidth[i] = upper[i] - lower[i]
	}
	bandwidthROC := roc(bandwidth, s.rocPeriod)

	last := len(cl) - 1
	price := cl[last]
	lowerBand := lower[last]
	rsiValue := rsiSeries[last]
	rocValue := bandwidthROC[last]

	if math.IsNaN(lowerBand) || math.IsNaN(rsiValue) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.staged[symbol] {
		if price < lowerBand && rsiValue <= s.stage1RSI {
			s.staged[symbol] = true
			s.log.Info().
				Str("symbol", symbol).
				Float64("price", price).
				Float64("lower_band", lowerBand).
				Float64("rsi", rsiValue).
				Msg("stage 1 triggered: oversold below lower band")
		}
		return nil
	}

	if rsiValue > s.stage2Exit+s.resetMargin {
		s.staged[symbol] = false
		s.log.Info().Str("symbol", symbol).Float64("rsi", rsiValue).Msg("stale setup abandoned")
		return nil
	}

	confirmed := rsiValue >= s.stage2Entry && rsiValue < s.stage2Exit &&
		!math.IsNaN(rocValue) && rocValue > s.minROC &&
		isBullishEngulfing(history)
	if !confirmed {
		s.log.Debug().
			Str("symbol", symbol).
			Float64("rsi", rsiValue).
			Float64("bandwidth_roc", rocValue).
			Msg("stage 2 not confirmed")
		return nil
	}

	s.staged[symbol] = false
	s.log.Info().Str("symbol", symbol).Float64("price", price).Msg("buy signal: stage 2 confirmed")
	metrics.SignalsTotal.WithLabelValues(symbol, s.Name()).Inc()
	return []signal.Signal{{
		Type:   signal.Buy,
		Symbol: symbol,
		Price:  price,
		Ts:     history[last].Timestamp,
	}}
}

// isBullishEngulfing reports whether the last two candles form the reversal
// pattern: a red candle followed by a green candle whose body contains the
// prior body.
func isBullishEngulfing(history []market.Bar) bool {
	if len(history) < 2 {
		return false
	}
	prev := history[len(history)-2]
	cur := history[len(history)-1]
	return prev.Close < prev.Open &&
		cur.Close > cur.Open &&
		cur.Close > prev.Open &&
		cur.Open < prev.Close
}

// Package strategy contains the signal-generation logic evaluated over
// aggregated candle histories.
package strategy

import (
	"strings"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/signal"
)

// Strategy defines behaviour shared by strategy implementations used by the
// bot. Analyze is called once per completed candle with the full retained
// history for that symbol; implementations keep any cross-call state strictly
// per symbol.
type Strategy interface {
	Analyze(symbol string, history []market.Bar) []signal.Signal
	OrderParams() signal.OrderParams
	WarmupPeriod() int
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	// RSI + Bollinger mean reversion.
	BBPeriod    int
	BBStdDev    float64
	RSIPeriod   int
	ROCPeriod   int
	Stage1RSI   float64
	Stage2Entry float64
	Stage2Exit  float64
	ResetMargin float64
	MinROC      float64

	// SMA crossover.
	FastPeriod int
	SlowPeriod int

	Order signal.OrderParams
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params, log zerolog.Logger) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "rsi_bollinger", "rsi_bbands":
		return NewRSIBBands(params, log)
	case "sma_crossover", "sma_cross":
		return NewSMACross(params, log)
	default:
		return NewRSIBBands(params, log)
	}
}

func closes(history []market.Bar) []float64 {
	out := make([]float64, len(history))
	for i, b := range history {
		out[i] = b.Close
	}
	return out
}

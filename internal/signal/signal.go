// Package signal standardizes payloads shared between the strategy and order
// management layers.
package signal

import "time"

// Type labels the direction of a trade signal.
type Type string

const (
	Buy  Type = "BUY"
	Sell Type = "SELL"
)

// Signal expresses a trade intent produced by a strategy implementation.
// Signals are consumed once by the order manager and never persisted.
type Signal struct {
	Type   Type
	Symbol string
	Price  float64
	Ts     time.Time
}

// CrossoverDirection selects which SMA relationship arms the trailing stop.
type CrossoverDirection string

const (
	CrossLong  CrossoverDirection = "long"
	CrossShort CrossoverDirection = "short"
)

// OrderParams bundles the risk knobs a strategy hands to the order manager.
// Owned by the strategy, read-only everywhere else.
type OrderParams struct {
	RiskPercentage  float64
	TPMultiplier    float64
	SLMultiplier    float64
	UseTrailingStop bool

	// Trailing stop tuning, only consulted when UseTrailingStop is set.
	SMAShortPeriod     int
	SMALongPeriod      int
	CrossoverDirection CrossoverDirection
}

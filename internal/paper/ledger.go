package paper

import (
	"sync"

	"buildabot-go/internal/market"
)

// Ledger accumulates fills in memory and answers summary queries once a
// replay run finishes.
type Ledger struct {
	mu     sync.Mutex
	fills  []Fill
	bought float64
	sold   float64
}

// NewLedger creates an empty ledger, pre-sizing storage when capacity is
// positive.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]Fill, 0, capacity)}
}

// Record appends a fill and folds its notional into the side totals.
func (l *Ledger) Record(fill Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills = append(l.fills, fill)
	notional := fill.Qty * fill.Price
	switch fill.Side {
	case market.Buy:
		l.bought += notional
	case market.Sell:
		l.sold += notional
	}
}

// Snapshot returns a copy of the recorded fills in execution order.
func (l *Ledger) Snapshot() []Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Volume reports the total notional traded on each side.
func (l *Ledger) Volume() (bought, sold float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bought, l.sold
}

// Reset drops all recorded fills and zeroes the side totals.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills = l.fills[:0]
	l.bought, l.sold = 0, 0
}

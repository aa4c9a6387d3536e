// Package aggregate converts an irregular stream of 1-minute bars into a
// continuous series of clock-aligned higher-timeframe candles.
package aggregate

import (
	"time"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
)

const defaultHistoryLimit = 240

// Aggregator buffers base-interval bars for one symbol and emits a completed
// candle whenever the clock window rolls over. The retained history is
// evenly spaced: feed outages are bridged with flat volume-0 candles so
// indicator math never sees a gap.
type Aggregator struct {
	symbol       string
	timeframe    time.Duration
	historyLimit int
	log          zerolog.Logger

	windowStart time.Time
	buffer      []market.Bar
	history     []market.Bar
}

// New builds an aggregator for one (symbol, timeframe) pair. historyLimit
// bounds the retained candle count; non-positive values fall back to the
// default.
func New(symbol string, timeframeMinutes int, historyLimit int, log zerolog.Logger) *Aggregator {
	if timeframeMinutes <= 0 {
		timeframeMinutes = 5
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Aggregator{
		symbol:       symbol,
		timeframe:    time.Duration(timeframeMinutes) * time.Minute,
		historyLimit: historyLimit,
		log:          log.With().Str("symbol", symbol).Int("timeframe_min", timeframeMinutes).Logger(),
	}
}

// Add folds one base-interval bar into the open window. When the bar belongs
// to a later window the buffered bars are reduced into a candle stamped at
// the old window start, any skipped windows are forward-filled, and the
// completed candle is returned with closed=true. Bars older than the open
// window are dropped.
func (a *Aggregator) Add(bar market.Bar) (market.Bar, bool) {
	ts := bar.Timestamp.UTC()
	window := ts.Truncate(a.timeframe)

	if a.windowStart.IsZero() {
		a.windowStart = window
		a.buffer = append(a.buffer, bar)
		return market.Bar{}, false
	}

	switch {
	case window.Equal(a.windowStart):
		a.buffer = append(a.buffer, bar)
		return market.Bar{}, false

	case window.After(a.windowStart):
		candle := a.reduce()
		a.appendHistory(candle)
		a.fillGap(candle, window)
		a.buffer = a.buffer[:0]
		a.buffer = append(a.buffer, bar)
		a.windowStart = window
		metrics.CandlesTotal.WithLabelValues(a.symbol).Inc()
		return candle, true

	default:
		// Late bar from an already-closed window. Including it would corrupt
		// the continuous series, so it is dropped rather than reordered.
		a.log.Warn().
			Time("bar_ts", ts).
			Time("window_start", a.windowStart).
			Msg("dropping out-of-order bar")
		metrics.LateBarsTotal.WithLabelValues(a.symbol).Inc()
		return market.Bar{}, false
	}
}

// History returns the retained candles, oldest first. The slice is shared
// with the aggregator and must be treated as read-only by callers.
func (a *Aggregator) History() []market.Bar {
	return a.history
}

// WindowStart reports the start of the currently open window; zero before
// the first bar arrives.
func (a *Aggregator) WindowStart() time.Time {
	return a.windowStart
}

// reduce collapses the buffer into one candle stamped at the open window
// start: open=first, high=max, low=min, close=last, volume=sum.
func (a *Aggregator) reduce() market.Bar {
	candle := market.Bar{
		Symbol:    a.symbol,
		Timestamp: a.windowStart,
		Open:      a.buffer[0].Open,
		High:      a.buffer[0].High,
		Low:       a.buffer[0].Low,
		Close:     a.buffer[len(a.buffer)-1].Close,
	}
	for _, b := range a.buffer {
		if b.High > candle.High {
			candle.High = b.High
		}
		if b.Low < candle.Low {
			candle.Low = b.Low
		}
		candle.Volume += b.Volume
	}
	return candle
}

// fillGap synthesizes flat candles for every window strictly between the
// just-closed candle and next, priced at the last known close.
func (a *Aggregator) fillGap(closed market.Bar, next time.Time) {
	missing := int(next.Sub(closed.Timestamp)/a.timeframe) - 1
	if missing <= 0 {
		return
	}
	a.log.Warn().
		Int("missing_windows", missing).
		Time("after", closed.Timestamp).
		Msg("gap in bar stream, forward-filling flat candles")
	for i := 1; i <= missing; i++ {
		fill := market.Bar{
			Symbol:    a.symbol,
			Timestamp: closed.Timestamp.Add(time.Duration(i) * a.timeframe),
			Open:      closed.Close,
			High:      closed.Close,
			Low:       closed.Close,
			Close:     closed.Close,
			Volume:    0,
		}
		a.appendHistory(fill)
		metrics.GapFillsTotal.WithLabelValues(a.symbol).Inc()
	}
}

func (a *Aggregator) appendHistory(candle market.Bar) {
	a.history = append(a.history, candle)
	if len(a.history) > a.historyLimit {
		a.history = a.history[len(a.history)-a.historyLimit:]
	}
}

package aggregate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
)

func bar(ts time.Time, o, h, l, c, v float64) market.Bar {
	return market.Bar{Symbol: "TEST", Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func flatBar(ts time.Time, price float64) market.Bar {
	return bar(ts, price, price, price, price, 100)
}

func TestWindowFlooring(t *testing.T) {
	agg := New("TEST", 5, 0, zerolog.Nop())

	ts := time.Date(2025, 6, 2, 12, 34, 17, 0, time.UTC)
	agg.Add(flatBar(ts, 100))
	want := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)
	if !agg.WindowStart().Equal(want) {
		t.Fatalf("window start = %v, want %v", agg.WindowStart(), want)
	}

	// An exact boundary floors to itself.
	agg = New("TEST", 5, 0, zerolog.Nop())
	agg.Add(flatBar(want, 100))
	if !agg.WindowStart().Equal(want) {
		t.Fatalf("boundary window start = %v, want %v", agg.WindowStart(), want)
	}
}

func TestAggregationReduce(t *testing.T) {
	agg := New("TEST", 5, 0, zerolog.Nop())
	w := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	agg.Add(bar(w, 1, 5, 0, 3, 10))
	agg.Add(bar(w.Add(time.Minute), 3, 4, 2, 2, 20))

	candle, closed := agg.Add(flatBar(w.Add(5*time.Minute), 2))
	if !closed {
		t.Fatalf("expected window to close")
	}
	if !candle.Timestamp.Equal(w) {
		t.Fatalf("candle timestamp = %v, want %v", candle.Timestamp, w)
	}
	if candle.Open != 1 || candle.High != 5 || candle.Low != 0 || candle.Close != 2 || candle.Volume != 30 {
		t.Fatalf("unexpected candle: %+v", candle)
	}
	if len(agg.History()) != 1 {
		t.Fatalf("expected candle in history, got %d", len(agg.History()))
	}
}

func TestGapFillContinuity(t *testing.T) {
	agg := New("TEST", 5, 0, zerolog.Nop())
	w := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	agg.Add(flatBar(w, 50))
	// Next real bar lands three windows ahead.
	candle, closed := agg.Add(flatBar(w.Add(15*time.Minute), 51))
	if !closed {
		t.Fatalf("expected window to close")
	}
	if candle.Close != 50 {
		t.Fatalf("closed candle close = %.2f, want 50", candle.Close)
	}

	history := agg.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 candles (1 real + 2 fills), got %d", len(history))
	}
	for i, c := range history {
		want := w.Add(time.Duration(i) * 5 * time.Minute)
		if !c.Timestamp.Equal(want) {
			t.Fatalf("candle %d timestamp = %v, want %v", i, c.Timestamp, want)
		}
	}
	for _, fill := range history[1:] {
		if fill.Open != 50 || fill.High != 50 || fill.Low != 50 || fill.Close != 50 {
			t.Fatalf("fill candle not flat at last close: %+v", fill)
		}
		if fill.Volume != 0 {
			t.Fatalf("fill candle volume = %.2f, want 0", fill.Volume)
		}
	}
}

func TestLateBarRejected(t *testing.T) {
	agg := New("TEST", 5, 0, zerolog.Nop())
	w := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	agg.Add(bar(w, 1, 5, 0, 3, 10))

	// A bar from the previous window must not disturb buffer or history.
	if _, closed := agg.Add(bar(w.Add(-2*time.Minute), 9, 9, 9, 9, 999)); closed {
		t.Fatalf("late bar must not close a window")
	}
	if len(agg.History()) != 0 {
		t.Fatalf("late bar must not enter history")
	}

	candle, closed := agg.Add(flatBar(w.Add(5*time.Minute), 3))
	if !closed {
		t.Fatalf("expected window to close")
	}
	if candle.Volume != 10 {
		t.Fatalf("late bar leaked into buffer: volume = %.2f", candle.Volume)
	}
}

func TestHistoryBounded(t *testing.T) {
	agg := New("TEST", 5, 4, zerolog.Nop())
	w := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		agg.Add(flatBar(w.Add(time.Duration(i)*5*time.Minute), 100+float64(i)))
	}

	history := agg.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	// Nine windows closed; the last four retained are windows 5..8.
	want := w.Add(5 * 5 * time.Minute)
	if !history[0].Timestamp.Equal(want) {
		t.Fatalf("oldest retained candle = %v, want %v", history[0].Timestamp, want)
	}
	for i := 1; i < len(history); i++ {
		if got := history[i].Timestamp.Sub(history[i-1].Timestamp); got != 5*time.Minute {
			t.Fatalf("history not contiguous: gap %v at %d", got, i)
		}
	}
}

func TestSameWindowAccumulates(t *testing.T) {
	agg := New("TEST", 5, 0, zerolog.Nop())
	w := time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, closed := agg.Add(flatBar(w.Add(time.Duration(i)*time.Minute), 100)); closed {
			t.Fatalf("window closed early at minute %d", i)
		}
	}
	candle, closed := agg.Add(flatBar(w.Add(5*time.Minute), 100))
	if !closed {
		t.Fatalf("expected close on next window")
	}
	if candle.Volume != 500 {
		t.Fatalf("candle volume = %.2f, want 500", candle.Volume)
	}
}

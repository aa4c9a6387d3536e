package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/signal"
)

func barsFromCloses(closes []float64) []market.Bar {
	base := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Symbol:    "TEST",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 100,
		}
	}
	return bars
}

func TestSMACrossBuyOnBullishCross(t *testing.T) {
	strat := NewSMACross(Params{FastPeriod: 2, SlowPeriod: 3}, zerolog.Nop())

	// fast(2) sits below slow(3) on the penultimate candle and jumps above it
	// on the last: 8.5 < 9, then 10 > 9.67.
	bars := barsFromCloses([]float64{10, 9, 8, 12})
	sigs := strat.Analyze("TEST", bars)
	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %v", sigs)
	}
	if sigs[0].Type != signal.Buy || sigs[0].Price != 12 {
		t.Fatalf("unexpected signal %+v", sigs[0])
	}
}

func TestSMACrossNoSignalWhenAlreadyAbove(t *testing.T) {
	strat := NewSMACross(Params{FastPeriod: 2, SlowPeriod: 3}, zerolog.Nop())

	// Monotonic uptrend: fast is above slow the whole time, so there is no
	// cross event to trade.
	bars := barsFromCloses([]float64{1, 2, 3, 4})
	if sigs := strat.Analyze("TEST", bars); len(sigs) != 0 {
		t.Fatalf("expected no signal, got %v", sigs)
	}
}

func TestSMACrossBelowWarmup(t *testing.T) {
	strat := NewSMACross(Params{FastPeriod: 2, SlowPeriod: 3}, zerolog.Nop())
	bars := barsFromCloses([]float64{10, 9, 8})
	if sigs := strat.Analyze("TEST", bars); sigs != nil {
		t.Fatalf("expected nil below warmup, got %v", sigs)
	}
}

func TestBuildSelectsStrategy(t *testing.T) {
	log := zerolog.Nop()
	cases := []struct {
		mode string
		want string
	}{
		{"rsi_bollinger", "RSIBBands"},
		{"RSI_BBANDS", "RSIBBands"},
		{"sma_crossover", "SMACross"},
		{"SMA_Cross", "SMACross"},
		{"", "RSIBBands"},
		{"unknown", "RSIBBands"},
	}
	for _, tc := range cases {
		strat := Build(tc.mode, Params{}, log)
		if got := strat.Name(); got != tc.want {
			t.Fatalf("Build(%q) = %s, want %s", tc.mode, got, tc.want)
		}
	}
}

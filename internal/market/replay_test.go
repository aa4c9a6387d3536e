package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func replayBar(symbol string, ts time.Time, close, volume float64) Bar {
	return Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      close, High: close, Low: close, Close: close,
		Volume: volume,
	}
}

func TestLoadReplayCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	content := "symbol,timestamp,open,high,low,close,volume\n" +
		"AAPL,2025-01-02T14:30:00Z,100,101,99,100.5,1000\n" +
		"AAPL,bad-timestamp,1,1,1,1,1\n" +
		"AAPL,2025-01-02T14:31:00Z,100.5,102,100,not-a-number,500\n" +
		"MSFT,2025-01-02T14:30:00Z,400,401,399,400.5,200\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	provider, err := LoadReplayCSV(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadReplayCSV: %v", err)
	}
	if len(provider.bars) != 2 {
		t.Fatalf("expected 2 valid bars, got %d", len(provider.bars))
	}
	if provider.bars[0].Symbol != "AAPL" || provider.bars[0].Close != 100.5 {
		t.Fatalf("unexpected first bar %+v", provider.bars[0])
	}
}

func TestLoadReplayCSVMissingFile(t *testing.T) {
	if _, err := LoadReplayCSV("/nonexistent/bars.csv", zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReplayActiveSymbolsRankedByVolume(t *testing.T) {
	base := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	provider := NewReplay([]Bar{
		replayBar("LOW", base, 1, 100),
		replayBar("HIGH", base, 1, 900),
		replayBar("MID", base, 1, 500),
		replayBar("HIGH", base.Add(time.Minute), 1, 100),
	}, 0, zerolog.Nop())

	symbols, err := provider.ActiveSymbols(context.Background(), 2)
	if err != nil {
		t.Fatalf("ActiveSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "HIGH" || symbols[1] != "MID" {
		t.Fatalf("symbols = %v, want [HIGH MID]", symbols)
	}
}

func TestReplayHistoricalBarsRange(t *testing.T) {
	base := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	provider := NewReplay([]Bar{
		replayBar("AAPL", base, 1, 10),
		replayBar("AAPL", base.Add(time.Minute), 2, 10),
		replayBar("AAPL", base.Add(2*time.Minute), 3, 10),
		replayBar("MSFT", base.Add(time.Minute), 9, 10),
	}, 0, zerolog.Nop())

	// End is exclusive, so the bar at +2m stays out.
	bars, err := provider.HistoricalBars(context.Background(), "AAPL", 1, base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("HistoricalBars: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 1 || bars[1].Close != 2 {
		t.Fatalf("bars = %+v", bars)
	}
}

func TestReplayStreamSkipsWarmupBars(t *testing.T) {
	base := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	provider := NewReplay([]Bar{
		replayBar("AAPL", base, 1, 10),
		replayBar("AAPL", base.Add(time.Minute), 2, 10),
		replayBar("AAPL", base.Add(2*time.Minute), 3, 10),
	}, 0, zerolog.Nop())

	// Warmup consumes the first two bars.
	if _, err := provider.HistoricalBars(context.Background(), "AAPL", 1, base, base.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	var streamed []Bar
	provider.Subscribe([]string{"AAPL"}, func(b Bar) { streamed = append(streamed, b) })
	if err := provider.Stream(context.Background()); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(streamed) != 1 || streamed[0].Close != 3 {
		t.Fatalf("streamed = %+v, want only the bar after warmup", streamed)
	}
}

func TestReplayStreamFiltersSubscription(t *testing.T) {
	base := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	provider := NewReplay([]Bar{
		replayBar("AAPL", base, 1, 10),
		replayBar("MSFT", base, 2, 10),
	}, 0, zerolog.Nop())

	var streamed []Bar
	provider.Subscribe([]string{"AAPL"}, func(b Bar) { streamed = append(streamed, b) })
	if err := provider.Stream(context.Background()); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(streamed) != 1 || streamed[0].Symbol != "AAPL" {
		t.Fatalf("streamed = %+v, want AAPL only", streamed)
	}
}

func TestReplayStreamHonorsCancellation(t *testing.T) {
	base := time.Date(2025, 1, 2, 14, 30, 0, 0, time.UTC)
	provider := NewReplay([]Bar{replayBar("AAPL", base, 1, 10)}, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := provider.Stream(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReplayProvider feeds recorded 1-minute bars through the DataProvider
// contract, letting the full bot run against historical data with no
// network. Bars replay in timestamp order; a zero delay replays as fast as
// the consumer can process.
type ReplayProvider struct {
	bars  []Bar
	delay time.Duration
	log   zerolog.Logger

	mu        sync.Mutex
	symbols   map[string]bool
	callbacks []func(Bar)
	// Latest timestamp served through HistoricalBars per symbol; Stream
	// skips these so warmup bars are not replayed twice.
	served map[string]time.Time
}

// NewReplay builds a provider over an in-memory bar slice (sorted by
// timestamp on construction).
func NewReplay(bars []Bar, delay time.Duration, log zerolog.Logger) *ReplayProvider {
	sorted := append([]Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &ReplayProvider{
		bars:    sorted,
		delay:   delay,
		log:     log.With().Str("component", "replay").Logger(),
		symbols: make(map[string]bool),
		served:  make(map[string]time.Time),
	}
}

// LoadReplayCSV reads bars from a CSV file with columns
// symbol,timestamp,open,high,low,close,volume. A header row is skipped if
// the timestamp column does not parse.
func LoadReplayCSV(path string, log zerolog.Logger) (*ReplayProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 7

	var bars []Bar
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read replay csv: %w", err)
		}
		line++

		ts, err := time.Parse(time.RFC3339, record[1])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			log.Warn().Str("timestamp", record[1]).Int("line", line).Msg("skipping row with bad timestamp")
			continue
		}
		values := make([]float64, 5)
		bad := false
		for i, raw := range record[2:7] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				log.Warn().Str("field", raw).Int("line", line).Msg("skipping row with non-numeric field")
				bad = true
				break
			}
			values[i] = v
		}
		if bad {
			continue
		}
		bars = append(bars, Bar{
			Symbol:    record[0],
			Timestamp: ts.UTC(),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return NewReplay(bars, 0, log), nil
}

// ActiveSymbols ranks the recorded symbols by total volume descending.
func (r *ReplayProvider) ActiveSymbols(_ context.Context, limit int) ([]string, error) {
	totals := make(map[string]float64)
	for _, b := range r.bars {
		totals[b.Symbol] += b.Volume
	}
	symbols := make([]string, 0, len(totals))
	for s := range totals {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if totals[symbols[i]] != totals[symbols[j]] {
			return totals[symbols[i]] > totals[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})
	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}
	return symbols, nil
}

// HistoricalBars serves recorded bars for the symbol inside [start, end).
// Only the base 1-minute timeframe is recorded; coarser requests return the
// base bars and leave aggregation to the caller.
func (r *ReplayProvider) HistoricalBars(_ context.Context, symbol string, _ int, start, end time.Time) ([]Bar, error) {
	var out []Bar
	for _, b := range r.bars {
		if b.Symbol != symbol {
			continue
		}
		if b.Timestamp.Before(start) || !b.Timestamp.Before(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) > 0 {
		r.mu.Lock()
		if last := out[len(out)-1].Timestamp; last.After(r.served[symbol]) {
			r.served[symbol] = last
		}
		r.mu.Unlock()
	}
	return out, nil
}

// Subscribe registers fn for bars of the given symbols.
func (r *ReplayProvider) Subscribe(symbols []string, fn func(Bar)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range symbols {
		r.symbols[s] = true
	}
	r.callbacks = append(r.callbacks, fn)
}

// Stream replays every recorded bar for the subscribed symbols in timestamp
// order, then returns nil. Cancellation stops the replay between bars.
func (r *ReplayProvider) Stream(ctx context.Context) error {
	r.mu.Lock()
	callbacks := make([]func(Bar), len(r.callbacks))
	copy(callbacks, r.callbacks)
	subscribed := make(map[string]bool, len(r.symbols))
	for s := range r.symbols {
		subscribed[s] = true
	}
	served := make(map[string]time.Time, len(r.served))
	for s, ts := range r.served {
		served[s] = ts
	}
	r.mu.Unlock()

	replayed := 0
	for _, bar := range r.bars {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(subscribed) > 0 && !subscribed[bar.Symbol] {
			continue
		}
		if !bar.Timestamp.After(served[bar.Symbol]) {
			continue
		}
		for _, fn := range callbacks {
			fn(bar)
		}
		replayed++
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	r.log.Info().Int("bars", replayed).Msg("replay complete")
	return nil
}

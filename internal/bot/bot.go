// Package bot wires the data provider, aggregators, strategy, and order
// manager into the per-symbol processing pipeline.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"buildabot-go/internal/aggregate"
	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
	"buildabot-go/internal/order"
	"buildabot-go/internal/signal"
	"buildabot-go/internal/strategy"
)

// Notifier receives bot lifecycle events.
type Notifier interface {
	Startup(symbols []string)
	Error(context, msg string)
}

type nopNotifier struct{}

func (nopNotifier) Startup([]string) {}
func (nopNotifier) Error(string, string) {}

// Options bundles Bot dependencies and tuning.
type Options struct {
	Provider market.DataProvider
	Orders   *order.Manager
	Strategy strategy.Strategy
	Notifier Notifier
	Log      zerolog.Logger

	SymbolLimit      int
	TimeframeMinutes int
	HistoryLimit     int
	WarmupDays       int
	ChannelBuffer    int
	Capital          float64
}

// Bot owns one aggregator and one worker goroutine per symbol. Each bar is
// processed to completion (exit check, aggregation, strategy, placement)
// before the next bar for that symbol; symbols run independently.
type Bot struct {
	provider market.DataProvider
	orders   *order.Manager
	strat    strategy.Strategy
	notify   Notifier
	log      zerolog.Logger

	symbolLimit      int
	timeframeMinutes int
	historyLimit     int
	warmupDays       int
	channelBuffer    int
	capital          float64

	mu      sync.RWMutex
	workers map[string]*symbolWorker
	wg      sync.WaitGroup
}

type symbolWorker struct {
	symbol string
	agg    *aggregate.Aggregator
	bars   chan market.Bar
}

// New constructs a Bot, clamping degenerate tuning values.
func New(opts Options) *Bot {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.SymbolLimit <= 0 {
		opts.SymbolLimit = 10
	}
	if opts.TimeframeMinutes <= 0 {
		opts.TimeframeMinutes = 5
	}
	if opts.WarmupDays <= 0 {
		opts.WarmupDays = 2
	}
	if opts.ChannelBuffer <= 0 {
		opts.ChannelBuffer = 256
	}
	return &Bot{
		provider:         opts.Provider,
		orders:           opts.Orders,
		strat:            opts.Strategy,
		notify:           opts.Notifier,
		log:              opts.Log.With().Str("component", "bot").Logger(),
		symbolLimit:      opts.SymbolLimit,
		timeframeMinutes: opts.TimeframeMinutes,
		historyLimit:     opts.HistoryLimit,
		warmupDays:       opts.WarmupDays,
		channelBuffer:    opts.ChannelBuffer,
		capital:          opts.Capital,
		workers:          make(map[string]*symbolWorker),
	}
}

// Run executes the full lifecycle: reconcile broker positions, discover
// symbols, warm up from history, then stream live bars until ctx is
// canceled. Returns nil on clean cancellation.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.orders.SyncPositions(ctx); err != nil {
		b.notify.Error("position reconciliation", err.Error())
		return fmt.Errorf("sync positions: %w", err)
	}

	symbols, err := b.provider.ActiveSymbols(ctx, b.symbolLimit)
	if err != nil {
		b.notify.Error("symbol discovery", err.Error())
		return fmt.Errorf("active symbols: %w", err)
	}
	if len(symbols) == 0 {
		return errors.New("no active symbols returned")
	}
	b.log.Info().Strs("symbols", symbols).Str("strategy", b.strat.Name()).Msg("starting")

	b.startWorkers(ctx, symbols)
	b.warmup(ctx, symbols)

	b.notify.Startup(symbols)
	b.provider.Subscribe(symbols, b.enqueue)

	err = b.provider.Stream(ctx)

	b.mu.Lock()
	for _, w := range b.workers {
		close(w.bars)
	}
	b.mu.Unlock()
	b.wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}

// History exposes a symbol's aggregated candle history (tests, status
// logging).
func (b *Bot) History(symbol string) []market.Bar {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.workers[symbol]
	if !ok {
		return nil
	}
	return w.agg.History()
}

func (b *Bot) startWorkers(ctx context.Context, symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, symbol := range symbols {
		w := &symbolWorker{
			symbol: symbol,
			agg:    aggregate.New(symbol, b.timeframeMinutes, b.historyLimit, b.log),
			bars:   make(chan market.Bar, b.channelBuffer),
		}
		b.workers[symbol] = w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for bar := range w.bars {
				b.process(ctx, w, bar)
			}
		}()
	}
}

// warmup seeds every aggregator from historical 1-minute bars so strategies
// have a full indicator window before the first live candle closes.
func (b *Bot) warmup(ctx context.Context, symbols []string) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -b.warmupDays)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, symbol := range symbols {
		bars, err := b.provider.HistoricalBars(ctx, symbol, 1, start, end)
		if err != nil {
			// Transient fetch failure: the symbol trades without warmup and
			// the strategy simply waits out its warmup period live.
			b.log.Error().Err(err).Str("symbol", symbol).Msg("warmup fetch failed")
			continue
		}
		if len(bars) == 0 {
			b.log.Warn().Str("symbol", symbol).Msg("no historical data, skipping warmup")
			continue
		}
		w := b.workers[symbol]
		for _, bar := range bars {
			w.agg.Add(bar)
		}
		b.log.Info().
			Str("symbol", symbol).
			Int("bars", len(bars)).
			Int("candles", len(w.agg.History())).
			Msg("warmup complete")
	}
}

// enqueue routes a live bar to its symbol worker, preserving per-symbol
// ordering. Bars for unknown symbols are dropped. Counting happens here so
// the ingest metric covers every provider, not just the live feed.
func (b *Bot) enqueue(bar market.Bar) {
	metrics.BarsTotal.WithLabelValues(bar.Symbol).Inc()
	b.mu.RLock()
	w, ok := b.workers[bar.Symbol]
	b.mu.RUnlock()
	if !ok {
		b.log.Warn().Str("symbol", bar.Symbol).Msg("bar for unsubscribed symbol dropped")
		return
	}
	w.bars <- bar
}

// process handles one bar to completion: exit monitoring first so a
// stop-loss breach is caught on the earliest tick, then aggregation, then
// strategy evaluation on a completed candle.
func (b *Bot) process(ctx context.Context, w *symbolWorker, bar market.Bar) {
	b.orders.Monitor(ctx, map[string]float64{bar.Symbol: bar.Close})

	candle, closed := w.agg.Add(bar)
	if !closed {
		return
	}

	history := w.agg.History()
	if len(history) < b.strat.WarmupPeriod() {
		b.log.Debug().
			Str("symbol", w.symbol).
			Int("have", len(history)).
			Int("need", b.strat.WarmupPeriod()).
			Msg("insufficient history, skipping analysis")
		return
	}

	for _, sig := range b.strat.Analyze(w.symbol, history) {
		if sig.Type != signal.Buy {
			continue
		}
		if _, ok := b.orders.Place(ctx, sig, b.capital); ok {
			b.log.Info().
				Str("symbol", sig.Symbol).
				Float64("price", sig.Price).
				Time("candle", candle.Timestamp).
				Msg("signal executed")
		}
	}
}

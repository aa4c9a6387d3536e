// Binary replay drives the trading engine over recorded 1-minute bars with
// simulated order execution, printing a fill summary at the end.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"buildabot-go/internal/bot"
	"buildabot-go/internal/config"
	"buildabot-go/internal/market"
	"buildabot-go/internal/order"
	"buildabot-go/internal/paper"
	"buildabot-go/internal/signal"
	"buildabot-go/internal/strategy"
	"buildabot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	barsPath := flag.String("bars", "", "CSV of 1-minute bars: symbol,timestamp,open,high,low,close,volume")
	fillsPath := flag.String("fills", "", "optional JSONL output for simulated fills")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if *barsPath == "" {
		log.Fatal().Msg("-bars is required")
	}
	provider, err := market.LoadReplayCSV(*barsPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load replay bars")
	}

	ledger := paper.NewLedger(64)
	var recorder paper.FillRecorder = ledger
	if *fillsPath != "" {
		jsonl, err := paper.NewJSONLRecorder(*fillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fills output")
		}
		defer jsonl.Close()
		recorder = multiRecorder{ledger, jsonl}
	}

	client := paper.NewClient(cfg.Bot.Capital, recorder, log)
	// Marks must move with the tape so simulated fills price off the bar
	// being replayed.
	provider.Subscribe(nil, func(b market.Bar) {
		client.MarkPrice(b.Symbol, b.Close)
	})

	strat := strategy.Build(cfg.Strategy.Mode, strategyParams(cfg), log)
	orders := order.NewManager(client, strat.OrderParams(), nil, log)

	engine := bot.New(bot.Options{
		Provider:         provider,
		Orders:           orders,
		Strategy:         strat,
		Log:              log,
		SymbolLimit:      cfg.Bot.SymbolLimit,
		TimeframeMinutes: cfg.Bot.TimeframeMinutes,
		HistoryLimit:     cfg.Bot.HistoryLimit,
		WarmupDays:       cfg.Bot.WarmupDays,
		ChannelBuffer:    cfg.Bot.ChannelBuffer,
		Capital:          cfg.Bot.Capital,
	})

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	fills := ledger.Snapshot()
	bought, sold := ledger.Volume()
	log.Info().
		Int("fills", len(fills)).
		Int("open_positions", len(orders.Open())).
		Float64("bought_notional", bought).
		Float64("sold_notional", sold).
		Float64("cash", client.Cash()).
		Float64("equity", client.Equity()).
		Float64("realized_pnl", client.RealizedPnL()).
		Msg("replay summary")
	for _, fill := range fills {
		log.Info().
			Str("symbol", fill.Symbol).
			Str("side", string(fill.Side)).
			Float64("qty", fill.Qty).
			Float64("price", fill.Price).
			Msg("fill")
	}
}

type multiRecorder []paper.FillRecorder

func (m multiRecorder) Record(fill paper.Fill) {
	for _, r := range m {
		r.Record(fill)
	}
}

func strategyParams(cfg *config.Config) strategy.Params {
	return strategy.Params{
		BBPeriod:    cfg.Strategy.Params.BBPeriod,
		BBStdDev:    cfg.Strategy.Params.BBStdDev,
		RSIPeriod:   cfg.Strategy.Params.RSIPeriod,
		ROCPeriod:   cfg.Strategy.Params.ROCPeriod,
		Stage1RSI:   cfg.Strategy.Params.Stage1RSI,
		Stage2Entry: cfg.Strategy.Params.Stage2Entry,
		Stage2Exit:  cfg.Strategy.Params.Stage2Exit,
		ResetMargin: cfg.Strategy.Params.ResetMargin,
		MinROC:      cfg.Strategy.Params.MinROC,
		FastPeriod:  cfg.Strategy.Params.FastPeriod,
		SlowPeriod:  cfg.Strategy.Params.SlowPeriod,
		Order: signal.OrderParams{
			RiskPercentage:     cfg.Order.RiskPercentage,
			TPMultiplier:       cfg.Order.TPMultiplier,
			SLMultiplier:       cfg.Order.SLMultiplier,
			UseTrailingStop:    cfg.Order.UseTrailingStop,
			SMAShortPeriod:     cfg.Order.SMAShortPeriod,
			SMALongPeriod:      cfg.Order.SMALongPeriod,
			CrossoverDirection: signal.CrossoverDirection(cfg.Order.CrossoverDirection),
		},
	}
}

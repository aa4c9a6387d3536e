// Binary bot runs the live trading engine against Alpaca.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"buildabot-go/internal/bot"
	"buildabot-go/internal/config"
	"buildabot-go/internal/market"
	"buildabot-go/internal/metrics"
	"buildabot-go/internal/notify"
	"buildabot-go/internal/order"
	"buildabot-go/internal/signal"
	"buildabot-go/internal/strategy"
	"buildabot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	apiKey := os.Getenv("ALPACA_API_KEY")
	apiSecret := os.Getenv("ALPACA_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Fatal().Msg("ALPACA_API_KEY and ALPACA_API_SECRET must be set")
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier := notify.NewDiscord(os.Getenv("DISCORD_WEBHOOK_URL"), log)

	alpaca := market.NewAlpaca(apiKey, apiSecret, cfg.Alpaca.Paper, log,
		market.WithFeed(cfg.Alpaca.Feed),
		market.WithDataBaseURL(cfg.Alpaca.DataBaseURL),
		market.WithTradeBaseURL(cfg.Alpaca.TradeURL),
		market.WithStreamURL(cfg.Alpaca.StreamURL),
	)

	strat := strategy.Build(cfg.Strategy.Mode, strategyParams(cfg), log)
	orders := order.NewManager(alpaca, strat.OrderParams(), notifier, log)

	engine := bot.New(bot.Options{
		Provider:         alpaca,
		Orders:           orders,
		Strategy:         strat,
		Notifier:         notifier,
		Log:              log,
		SymbolLimit:      cfg.Bot.SymbolLimit,
		TimeframeMinutes: cfg.Bot.TimeframeMinutes,
		HistoryLimit:     cfg.Bot.HistoryLimit,
		WarmupDays:       cfg.Bot.WarmupDays,
		ChannelBuffer:    cfg.Bot.ChannelBuffer,
		Capital:          cfg.Bot.Capital,
	})

	if err := engine.Run(ctx); err != nil {
		notifier.Error("bot run", err.Error())
		log.Fatal().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("shutdown complete")
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
		Order:       orderParams(cfg),
	}
}

func orderParams(cfg *config.Config) signal.OrderParams {
	return signal.OrderParams{
		RiskPercentage:     cfg.Order.RiskPercentage,
		TPMultiplier:       cfg.Order.TPMultiplier,
		SLMultiplier:       cfg.Order.SLMultiplier,
		UseTrailingStop:    cfg.Order.UseTrailingStop,
		SMAShortPeriod:     cfg.Order.SMAShortPeriod,
		SMALongPeriod:      cfg.Order.SMALongPeriod,
		CrossoverDirection: signal.CrossoverDirection(cfg.Order.CrossoverDirection),
	}
}

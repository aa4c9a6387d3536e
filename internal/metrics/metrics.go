package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Count of 1-minute bars ingested"},
		[]string{"symbol"},
	)
	LateBarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "late_bars_total", Help: "Out-of-order bars dropped by the aggregator"},
		[]string{"symbol"},
	)
	GapFillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gap_fills_total", Help: "Synthetic flat candles inserted to bridge feed gaps"},
		[]string{"symbol"},
	)
	CandlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "candles_total", Help: "Higher-timeframe candles completed"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Trade signals emitted by strategies"},
		[]string{"symbol", "strategy"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Active orders currently tracked"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, LateBarsTotal, GapFillsTotal, CandlesTotal, SignalsTotal, OrdersTotal, OpenPositions)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

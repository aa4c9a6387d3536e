package order

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"buildabot-go/internal/market"
	"buildabot-go/internal/signal"
)

type fakeClient struct {
	submitted []market.OrderRequest
	submitErr error
	positions []market.Position
	posErr    error
	nextID    int
}

func (c *fakeClient) SubmitOrder(_ context.Context, req market.OrderRequest) (string, error) {
	if c.submitErr != nil {
		return "", c.submitErr
	}
	c.submitted = append(c.submitted, req)
	c.nextID++
	return "order-" + string(rune('0'+c.nextID)), nil
}

func (c *fakeClient) Positions(context.Context) ([]market.Position, error) {
	return c.positions, c.posErr
}

type notification struct {
	action string
	symbol string
	reason string
}

type fakeNotifier struct {
	trades []notification
	errors []string
}

func (n *fakeNotifier) Trade(action, symbol string, _, _ float64, reason string) {
	n.trades = append(n.trades, notification{action: action, symbol: symbol, reason: reason})
}

func (n *fakeNotifier) Error(_, msg string) { n.errors = append(n.errors, msg) }

func defaultParams() signal.OrderParams {
	return signal.OrderParams{
		RiskPercentage: 0.02,
		TPMultiplier:   1.5,
		SLMultiplier:   0.9,
	}
}

func buySignal(symbol string, price float64) signal.Signal {
	return signal.Signal{Type: signal.Buy, Symbol: symbol, Price: price, Ts: time.Now()}
}

func TestPlaceSizesAndProtects(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())

	id, ok := m.Place(context.Background(), buySignal("AAPL", 50), 100000)
	if !ok || id == "" {
		t.Fatalf("expected placement to succeed, id=%q ok=%v", id, ok)
	}
	if len(client.submitted) != 1 {
		t.Fatalf("expected one submitted order, got %d", len(client.submitted))
	}
	req := client.submitted[0]
	if req.Side != market.Buy || req.TimeInForce != "gtc" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Qty != 40 {
		t.Fatalf("qty = %v, want 40 (2%% of 100000 at 50)", req.Qty)
	}

	open := m.Open()
	if len(open) != 1 {
		t.Fatalf("expected one tracked order, got %d", len(open))
	}
	if open[0].StopLoss != 45 || open[0].TakeProfit != 75 {
		t.Fatalf("protective levels = %v/%v, want 45/75", open[0].StopLoss, open[0].TakeProfit)
	}
}

func TestPlaceRejectsDegenerateInput(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())

	if _, ok := m.Place(context.Background(), buySignal("AAPL", 0), 100000); ok {
		t.Fatal("zero price must not place an order")
	}
	if _, ok := m.Place(context.Background(), buySignal("AAPL", 50), 0); ok {
		t.Fatal("zero capital must not place an order")
	}
	if len(client.submitted) != 0 {
		t.Fatalf("client must not be called, got %d submissions", len(client.submitted))
	}
}

func TestPlaceSubmitFailureTracksNothing(t *testing.T) {
	client := &fakeClient{submitErr: errors.New("rejected")}
	notifier := &fakeNotifier{}
	m := NewManager(client, defaultParams(), notifier, zerolog.Nop())

	if _, ok := m.Place(context.Background(), buySignal("AAPL", 50), 100000); ok {
		t.Fatal("expected placement to fail")
	}
	if len(m.Open()) != 0 {
		t.Fatal("failed placement must not be tracked")
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("expected one error notification, got %d", len(notifier.errors))
	}
}

func TestMonitorStopLoss(t *testing.T) {
	client := &fakeClient{}
	notifier := &fakeNotifier{}
	m := NewManager(client, defaultParams(), notifier, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	m.Monitor(context.Background(), map[string]float64{"AAPL": 44})

	if len(m.Open()) != 0 {
		t.Fatal("stop-loss breach must close the order")
	}
	last := client.submitted[len(client.submitted)-1]
	if last.Side != market.Sell || last.Qty != 40 {
		t.Fatalf("unexpected exit request %+v", last)
	}
	exit := notifier.trades[len(notifier.trades)-1]
	if exit.action != string(signal.Sell) || exit.reason != "stop-loss" {
		t.Fatalf("unexpected exit notification %+v", exit)
	}
}

func TestMonitorTakeProfit(t *testing.T) {
	client := &fakeClient{}
	notifier := &fakeNotifier{}
	m := NewManager(client, defaultParams(), notifier, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	m.Monitor(context.Background(), map[string]float64{"AAPL": 76})

	if len(m.Open()) != 0 {
		t.Fatal("take-profit breach must close the order")
	}
	exit := notifier.trades[len(notifier.trades)-1]
	if exit.reason != "take-profit" {
		t.Fatalf("reason = %q, want take-profit", exit.reason)
	}
}

func TestMonitorIgnoresSymbolsWithoutPrice(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	m.Monitor(context.Background(), map[string]float64{"MSFT": 1})

	if len(m.Open()) != 1 {
		t.Fatal("order without a fresh price must stay tracked")
	}
}

func TestExitFailureKeepsOrderForRetry(t *testing.T) {
	client := &fakeClient{}
	notifier := &fakeNotifier{}
	m := NewManager(client, defaultParams(), notifier, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	client.submitErr = errors.New("broker down")
	m.Monitor(context.Background(), map[string]float64{"AAPL": 44})
	if len(m.Open()) != 1 {
		t.Fatal("failed exit must keep the order tracked")
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("expected one error notification, got %d", len(notifier.errors))
	}

	client.submitErr = nil
	m.Monitor(context.Background(), map[string]float64{"AAPL": 44})
	if len(m.Open()) != 0 {
		t.Fatal("exit must succeed on retry")
	}
}

func TestTrailingStopRatchet(t *testing.T) {
	params := defaultParams()
	params.UseTrailingStop = true
	params.SMAShortPeriod = 2
	params.SMALongPeriod = 3
	params.CrossoverDirection = signal.CrossLong

	client := &fakeClient{}
	m := NewManager(client, params, nil, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	// Window fills over the first three ticks; on the third the short SMA
	// (53) sits above the long SMA (52), so the stop ratchets to 54*0.9.
	for _, price := range []float64{50, 52, 54} {
		m.Monitor(context.Background(), map[string]float64{"AAPL": price})
	}
	open := m.Open()
	if len(open) != 1 {
		t.Fatalf("expected one open order, got %d", len(open))
	}
	if got := open[0].StopLoss; math.Abs(got-48.6) > 1e-9 {
		t.Fatalf("stop = %v, want 48.6 after ratchet", got)
	}
	raised := open[0].StopLoss

	// Pullback flips the SMAs; the stop must never go back down.
	m.Monitor(context.Background(), map[string]float64{"AAPL": 49})
	open = m.Open()
	if len(open) != 1 {
		t.Fatalf("expected the order to survive the pullback, got %d open", len(open))
	}
	if got := open[0].StopLoss; got != raised {
		t.Fatalf("stop = %v, want %v (stops only rise)", got, raised)
	}
}

func TestTrailingStopDisabledByDefault(t *testing.T) {
	client := &fakeClient{}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())
	m.Place(context.Background(), buySignal("AAPL", 50), 100000)

	for _, price := range []float64{50, 52, 54, 56} {
		m.Monitor(context.Background(), map[string]float64{"AAPL": price})
	}
	if got := m.Open()[0].StopLoss; got != 45 {
		t.Fatalf("stop = %v, want the entry stop 45 when trailing is off", got)
	}
}

func TestSyncPositionsAdoptsOnce(t *testing.T) {
	client := &fakeClient{positions: []market.Position{
		{Symbol: "AAPL", Qty: 10, AvgEntryPrice: 100},
		{Symbol: "MSFT", Qty: 5, AvgEntryPrice: 200},
		{Symbol: "FLAT", Qty: 0, AvgEntryPrice: 50},
	}}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())

	if err := m.SyncPositions(context.Background()); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if err := m.SyncPositions(context.Background()); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	open := m.Open()
	if len(open) != 2 {
		t.Fatalf("expected 2 adopted positions, got %d", len(open))
	}
	bySymbol := make(map[string]Active)
	for _, o := range open {
		bySymbol[o.Symbol] = o
	}
	aapl, ok := bySymbol["AAPL"]
	if !ok {
		t.Fatal("AAPL not adopted")
	}
	if aapl.StopLoss != 90 || aapl.TakeProfit != 150 {
		t.Fatalf("adopted levels = %v/%v, want 90/150", aapl.StopLoss, aapl.TakeProfit)
	}
	if _, ok := bySymbol["FLAT"]; ok {
		t.Fatal("zero-quantity position must not be adopted")
	}
}

func TestSyncPositionsPropagatesError(t *testing.T) {
	client := &fakeClient{posErr: errors.New("api down")}
	m := NewManager(client, defaultParams(), nil, zerolog.Nop())
	if err := m.SyncPositions(context.Background()); err == nil {
		t.Fatal("expected error from broker")
	}
}

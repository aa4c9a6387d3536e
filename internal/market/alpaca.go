package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultDataBaseURL   = "https://data.alpaca.markets"
	defaultPaperTradeURL = "https://paper-api.alpaca.markets"
	defaultLiveTradeURL  = "https://api.alpaca.markets"
	defaultStreamURL     = "wss://stream.data.alpaca.markets/v2"
	defaultFeed          = "iex"

	historicalPageLimit = 10000
)

// AlpacaClient adapts the Alpaca REST and websocket APIs to the DataProvider
// and TradingClient contracts. Nothing outside this file depends on Alpaca
// wire formats.
type AlpacaClient struct {
	apiKey    string
	apiSecret string
	feed      string

	dataBaseURL  string
	tradeBaseURL string
	streamURL    string

	http *http.Client
	log  zerolog.Logger

	mu        sync.Mutex
	symbols   []string
	callbacks []func(Bar)
}

// AlpacaOption configures client construction.
type AlpacaOption func(*AlpacaClient)

// WithDataBaseURL overrides the market-data REST host (tests point this at a
// local server).
func WithDataBaseURL(u string) AlpacaOption {
	return func(c *AlpacaClient) {
		if u != "" {
			c.dataBaseURL = u
		}
	}
}

// WithTradeBaseURL overrides the trading REST host.
func WithTradeBaseURL(u string) AlpacaOption {
	return func(c *AlpacaClient) {
		if u != "" {
			c.tradeBaseURL = u
		}
	}
}

// WithStreamURL overrides the websocket stream endpoint.
func WithStreamURL(u string) AlpacaOption {
	return func(c *AlpacaClient) {
		if u != "" {
			c.streamURL = u
		}
	}
}

// WithFeed selects the market data feed (iex or sip).
func WithFeed(feed string) AlpacaOption {
	return func(c *AlpacaClient) {
		if feed != "" {
			c.feed = feed
		}
	}
}

// NewAlpaca builds a client for the given credentials. paper selects the
// paper-trading host for order endpoints.
func NewAlpaca(apiKey, apiSecret string, paper bool, log zerolog.Logger, opts ...AlpacaOption) *AlpacaClient {
	tradeURL := defaultLiveTradeURL
	if paper {
		tradeURL = defaultPaperTradeURL
	}
	c := &AlpacaClient{
		apiKey:       apiKey,
		apiSecret:    apiSecret,
		feed:         defaultFeed,
		dataBaseURL:  defaultDataBaseURL,
		tradeBaseURL: tradeURL,
		streamURL:    defaultStreamURL,
		http:         &http.Client{Timeout: 15 * time.Second},
		log:          log.With().Str("component", "alpaca").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ── DataProvider ────────────────────────────────────────────────────────

type mostActivesResponse struct {
	MostActives []struct {
		Symbol string `json:"symbol"`
	} `json:"most_actives"`
}

// ActiveSymbols returns the most-active tickers by volume, descending.
func (c *AlpacaClient) ActiveSymbols(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint := fmt.Sprintf("%s/v1beta1/screener/stocks/most-actives?by=volume&top=%d", c.dataBaseURL, limit)

	var resp mostActivesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("most actives: %w", err)
	}
	symbols := make([]string, 0, len(resp.MostActives))
	for _, row := range resp.MostActives {
		symbols = append(symbols, row.Symbol)
	}
	return symbols, nil
}

type alpacaBar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type barsResponse struct {
	Bars          []alpacaBar `json:"bars"`
	NextPageToken *string     `json:"next_page_token"`
}

// HistoricalBars fetches OHLCV bars, following page tokens until exhausted.
func (c *AlpacaClient) HistoricalBars(ctx context.Context, symbol string, timeframeMinutes int, start, end time.Time) ([]Bar, error) {
	if timeframeMinutes <= 0 {
		timeframeMinutes = 1
	}
	query := url.Values{}
	query.Set("timeframe", fmt.Sprintf("%dMin", timeframeMinutes))
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(historicalPageLimit))
	query.Set("feed", c.feed)
	query.Set("adjustment", "raw")

	var bars []Bar
	for {
		endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataBaseURL, url.PathEscape(symbol), query.Encode())
		var page barsResponse
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("historical bars %s: %w", symbol, err)
		}
		for _, raw := range page.Bars {
			bars = append(bars, Bar{
				Symbol:    symbol,
				Timestamp: raw.Timestamp.UTC(),
				Open:      raw.Open,
				High:      raw.High,
				Low:       raw.Low,
				Close:     raw.Close,
				Volume:    raw.Volume,
			})
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return bars, nil
		}
		query.Set("page_token", *page.NextPageToken)
	}
}

// Subscribe registers fn for live bar updates. Setup only; Stream starts the
// event loop.
func (c *AlpacaClient) Subscribe(symbols []string, fn func(Bar)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = append(c.symbols[:0], symbols...)
	c.callbacks = append(c.callbacks, fn)
	c.log.Info().Strs("symbols", symbols).Msg("subscribed to live bars")
}

// Stream runs the websocket loop, reconnecting with backoff until the
// context is canceled.
func (c *AlpacaClient) Stream(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.consumeStream(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Msg("stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

type streamMessage struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
	Timestamp time.Time `json:"t"`
	Msg       string    `json:"msg"`
}

func (c *AlpacaClient) consumeStream(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s", c.streamURL, c.feed)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	auth := map[string]string{"action": "auth", "key": c.apiKey, "secret": c.apiSecret}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth write: %w", err)
	}

	c.mu.Lock()
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()
	sub := map[string]any{"action": "subscribe", "bars": symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe write: %w", err)
	}

	c.log.Info().Str("url", streamURL).Strs("symbols", symbols).Msg("connected market data stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(70 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(70 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Warn().Err(err).Msg("stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(70 * time.Second))

		var msgs []streamMessage
		if err := json.Unmarshal(message, &msgs); err != nil {
			c.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}
		for _, msg := range msgs {
			switch msg.Type {
			case "b":
				c.dispatch(Bar{
					Symbol:    msg.Symbol,
					Timestamp: msg.Timestamp.UTC(),
					Open:      msg.Open,
					High:      msg.High,
					Low:       msg.Low,
					Close:     msg.Close,
					Volume:    msg.Volume,
				})
			case "error":
				c.log.Error().Str("msg", msg.Msg).Msg("stream error message")
			case "success", "subscription":
				// Handshake acknowledgements, nothing to forward.
			}
		}
	}
}

func (c *AlpacaClient) dispatch(bar Bar) {
	c.mu.Lock()
	callbacks := make([]func(Bar), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(bar)
	}
}

// ── TradingClient ───────────────────────────────────────────────────────

type orderResponse struct {
	ID string `json:"id"`
}

// SubmitOrder places a market order and returns the broker order id.
func (c *AlpacaClient) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	tif := req.TimeInForce
	if tif == "" {
		tif = "gtc"
	}
	payload := map[string]string{
		"symbol":        req.Symbol,
		"qty":           strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"side":          string(req.Side),
		"type":          "market",
		"time_in_force": tif,
	}
	var resp orderResponse
	if err := c.postJSON(ctx, c.tradeBaseURL+"/v2/orders", payload, &resp); err != nil {
		return "", fmt.Errorf("submit order %s: %w", req.Symbol, err)
	}
	return resp.ID, nil
}

type alpacaPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	AssetID       string `json:"asset_id"`
}

// Positions lists broker-held positions.
func (c *AlpacaClient) Positions(ctx context.Context) ([]Position, error) {
	var raw []alpacaPosition
	if err := c.getJSON(ctx, c.tradeBaseURL+"/v2/positions", &raw); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		qty, err := strconv.ParseFloat(p.Qty, 64)
		if err != nil {
			c.log.Warn().Str("symbol", p.Symbol).Str("qty", p.Qty).Msg("skipping position with non-numeric qty")
			continue
		}
		avg, err := strconv.ParseFloat(p.AvgEntryPrice, 64)
		if err != nil {
			c.log.Warn().Str("symbol", p.Symbol).Str("avg_entry_price", p.AvgEntryPrice).Msg("skipping position with non-numeric entry price")
			continue
		}
		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Qty:           qty,
			AvgEntryPrice: avg,
			AssetID:       p.AssetID,
		})
	}
	return positions, nil
}

// ── HTTP helpers ────────────────────────────────────────────────────────

func (c *AlpacaClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *AlpacaClient) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AlpacaClient) do(req *http.Request, out any) error {
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Package notify delivers trade lifecycle events to a Discord webhook.
// Delivery is best-effort: failures are logged and never propagated.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Discord embed colors, decimal-encoded.
const (
	colorGreen  = 5763719
	colorRed    = 15548997
	colorBlue   = 3447003
	colorYellow = 16776960
	colorGrey   = 9807270
)

// Discord posts embed messages to a webhook URL. An empty URL disables the
// notifier entirely.
type Discord struct {
	webhookURL string
	client     *http.Client
	log        zerolog.Logger
}

// NewDiscord builds a notifier for the given webhook URL.
func NewDiscord(webhookURL string, log zerolog.Logger) *Discord {
	d := &Discord{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		log:        log.With().Str("component", "notify").Logger(),
	}
	if webhookURL == "" {
		d.log.Warn().Msg("no webhook URL configured, notifications disabled")
	}
	return d
}

// Startup announces the bot going live with its target symbols.
func (d *Discord) Startup(symbols []string) {
	d.send("Bot Started",
		fmt.Sprintf("Trading engine is live.\n**Targets:** %s", strings.Join(symbols, ", ")),
		colorBlue)
}

// Trade reports an executed order.
func (d *Discord) Trade(action, symbol string, price, qty float64, reason string) {
	color := colorGreen
	if action != "BUY" {
		color = colorRed
	}
	desc := fmt.Sprintf(
		"**Symbol:** %s\n**Price:** $%.2f\n**Qty:** %.4f\n**Total:** $%.2f\n**Reason:** %s",
		symbol, price, qty, price*qty, reason)
	d.send(fmt.Sprintf("%s EXECUTED", action), desc, color)
}

// Error reports an unrecoverable failure with its context.
func (d *Discord) Error(context, msg string) {
	d.send("Critical Error",
		fmt.Sprintf("**Context:** %s\n**Error:** %s", context, msg),
		colorGrey)
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
	Footer      footer `json:"footer"`
}

type footer struct {
	Text string `json:"text"`
}

func (d *Discord) send(title, description string, color int) {
	if d.webhookURL == "" {
		return
	}

	payload := map[string][]embed{
		"embeds": {{
			Title:       title,
			Description: description,
			Color:       color,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Footer:      footer{Text: "buildabot"},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		d.log.Error().Err(err).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		d.log.Error().Int("status", resp.StatusCode).Msg("webhook rejected")
	}
}

// Package alert pushes operator notifications to a Telegram chat.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

// Notifier sends tender alerts through the Telegram Bot API. With missing
// credentials every alert degrades to a logged no-op.
type Notifier struct {
	BotToken string
	ChatID   string
	// APIBase is overridable for tests; empty means api.telegram.org.
	APIBase string

	http   *http.Client
	logger *slog.Logger
}

func NewNotifier(botToken, chatID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		BotToken: botToken,
		ChatID:   chatID,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Alert sends a multi-line tender notification. Send failures are logged,
// never propagated: alerting must not fail the pipeline.
func (n *Notifier) Alert(ctx context.Context, tender *model.Tender, message string) {
	if n.BotToken == "" || n.ChatID == "" {
		n.logger.Error("telegram credentials not configured")
		return
	}

	text := fmt.Sprintf(
		"Тендер: %s\nНазвание: %s\nСостояние: %s\nСообщение: %s\nKontur Link: %s",
		tender.ExternalID, tender.Title, tender.State, message, tender.KonturLink,
	)

	base := n.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, n.BotToken)

	payload, _ := json.Marshal(map[string]string{
		"chat_id":    n.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error("failed to build telegram request", "tender_id", tender.ExternalID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		n.logger.Error("failed to send telegram alert", "tender_id", tender.ExternalID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		n.logger.Error("telegram alert rejected", "tender_id", tender.ExternalID, "status", resp.StatusCode, "body", string(body))
		return
	}
	n.logger.Info("telegram alert sent", "tender_id", tender.ExternalID, "message", message)
}

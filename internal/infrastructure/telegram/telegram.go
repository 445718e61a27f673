package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const BotAPIBaseURL = "https://api.telegram.org"

// Client posts alert messages through the Telegram Bot API. Delivery is
// best effort: every failure path reports false instead of an error, so
// a Telegram outage can never block a trade transition.
type Client struct {
	http    *resty.Client
	token   string
	chatID  string
	enabled bool
	logger  *zap.Logger
}

func NewClient(token, chatID, baseURL string, enabled bool, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = BotAPIBaseURL
	}
	http := resty.New()
	http.SetBaseURL(baseURL)
	http.SetTimeout(timeout)

	return &Client{
		http:    http,
		token:   token,
		chatID:  chatID,
		enabled: enabled,
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to the configured chat. Markdown first; if the API
// rejects the message (usually unbalanced markup in a symbol name) it
// retries once as plain text with the bold markers stripped. Underscores
// stay so trade IDs survive readable.
func (c *Client) Send(ctx context.Context, text string) bool {
	if !c.enabled {
		c.logger.Debug("telegram disabled, dropping message", zap.Int("length", len(text)))
		return true
	}
	if c.token == "" || c.chatID == "" {
		c.logger.Warn("telegram credentials missing, message not sent")
		return false
	}

	// Tilde and backtick are never intentional in our templates.
	text = strings.NewReplacer("~", "", "`", "").Replace(text)

	if err := c.post(ctx, text, "Markdown"); err == nil {
		return true
	} else {
		c.logger.Warn("telegram markdown send failed, retrying plain", zap.Error(err))
	}

	plain := strings.ReplaceAll(text, "*", "")
	if err := c.post(ctx, plain, ""); err != nil {
		c.logger.Error("telegram send failed", zap.Error(err))
		return false
	}
	return true
}

// SendWithRetry retries Send with exponential backoff (1s, 2s, 4s...).
func (c *Client) SendWithRetry(ctx context.Context, text string, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if c.Send(ctx, text) {
			return true
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(1<<i) * time.Second):
		}
	}
	return false
}

func (c *Client) post(ctx context.Context, text, parseMode string) error {
	body := sendMessageRequest{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: parseMode,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/bot" + c.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return fmt.Errorf("telegram response parse (%d): %w", resp.StatusCode(), err)
	}
	if resp.StatusCode() != 200 || !out.OK {
		return fmt.Errorf("telegram API error %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

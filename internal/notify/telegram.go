package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/httputil"
	"github.com/wonny/eodsignals/pkg/logger"
)

// ErrDisabled is returned by Send when the bot is not configured
var ErrDisabled = errors.New("telegram notifier disabled")

// Sender delivers a plain-text message
type Sender interface {
	Send(ctx context.Context, text string) error
	Enabled() bool
}

// Telegram sends messages through the Bot API sendMessage method
// ⭐ SSOT: 외부 알림 발송은 여기서만
type Telegram struct {
	client  *httputil.Client
	logger  *logger.Logger
	cfg     config.TelegramConfig
	baseURL string
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegram creates a notifier; the client gets a 1 msg/s local limit.
// The bot token is part of the request path, so the client redacts it from logs and errors.
func NewTelegram(cfg config.TelegramConfig, client *httputil.Client, log *logger.Logger) *Telegram {
	client.WithLocalLimit(rate.NewLimiter(rate.Every(time.Second), 1)).
		WithRedaction(cfg.BotToken)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Telegram{
		client:  client,
		logger:  log,
		cfg:     cfg,
		baseURL: baseURL,
	}
}

// Enabled reports whether messages will actually be sent
func (t *Telegram) Enabled() bool {
	return t.cfg.Enabled && t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// Send posts text to the configured chat
func (t *Telegram) Send(ctx context.Context, text string) error {
	if !t.Enabled() {
		return ErrDisabled
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.cfg.BotToken)
	resp, err := t.client.PostJSON(ctx, url, telegramMessage{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("failed to decode telegram response (status %d): %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API error %d: %s", tr.ErrorCode, tr.Description)
	}

	t.logger.WithField("chat_id", t.cfg.ChatID).Debug("Telegram message sent")
	return nil
}

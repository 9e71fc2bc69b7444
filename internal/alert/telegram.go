package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trading-bot-backend/internal/config"
)

// Telegram rejects sendMessage text longer than this.
const telegramMaxText = 4096

// TelegramNotifier posts alerts to a single chat through the Bot API.
type TelegramNotifier struct {
	enabled  bool
	token    string
	chatID   string
	endpoint string
	http     *http.Client
}

func NewTelegramNotifier(enabled bool, botToken, chatID, baseURL string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		enabled:  enabled,
		token:    botToken,
		chatID:   chatID,
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + botToken + "/sendMessage",
		http:     &http.Client{Timeout: timeout},
	}
}

func NewTelegramNotifierFromConfig(cfg config.TelegramConfig) *TelegramNotifier {
	return NewTelegramNotifier(cfg.Enabled, cfg.BotToken, cfg.ChatID, cfg.APIBaseURL, time.Duration(cfg.TimeoutSec)*time.Second)
}

func (t *TelegramNotifier) Enabled() bool {
	return t != nil && t.enabled
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg string) error {
	if !t.Enabled() {
		return nil
	}
	if len(msg) > telegramMaxText {
		msg = msg[:telegramMaxText]
	}
	payload, err := json.Marshal(telegramMessage{ChatID: t.chatID, Text: msg, DisableWebPagePreview: true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return t.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", t.redact(err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var reply telegramReply
	decodeErr := json.Unmarshal(raw, &reply)
	switch {
	case resp.StatusCode/100 != 2 && decodeErr == nil && reply.Description != "":
		return fmt.Errorf("telegram status=%d: %s", resp.StatusCode, reply.Description)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("telegram status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	case decodeErr != nil || len(raw) == 0:
		// Some proxies answer 2xx with an empty or non-JSON body.
		return nil
	case !reply.OK:
		return fmt.Errorf("telegram api error code=%d: %s", reply.ErrorCode, reply.Description)
	}
	return nil
}

// redact strips the bot token, which is part of the request URL, from
// transport errors.
func (t *TelegramNotifier) redact(err error) error {
	if err == nil || t.token == "" || !strings.Contains(err.Error(), t.token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), t.token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }

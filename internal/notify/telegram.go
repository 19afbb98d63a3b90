package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender posts auction alerts to a chat through the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// telegramText renders the alert as HTML with the title in bold. Both parts
// are escaped; bidder ids may contain markup characters.
func telegramText(title, message string) string {
	text := "<b>" + html.EscapeString(title) + "</b>"
	if message != "" {
		text += "\n" + html.EscapeString(message)
	}
	return text
}

// Send delivers one alert. The Bot API can answer 200 with ok=false, which is
// reported as an error too.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(title, message),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	var out telegramResponse
	if err := json.Unmarshal(raw, &out); err == nil && !out.OK {
		return fmt.Errorf("telegram: sendMessage rejected: %s", out.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

package notify

import (
	"context"
	"fmt"
	"net/http"
)

// TelegramSender posts signal alerts to a Telegram chat through the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

var _ Sender = (*TelegramSender)(nil)

// NewTelegramSender creates a sender for the given bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: senderTimeout},
	}
}

type telegramMessage struct {
	ChatID         string `json:"chat_id"`
	Text           string `json:"text"`
	ParseMode      string `json:"parse_mode"`
	DisablePreview bool   `json:"disable_web_page_preview"`
}

// Send posts the alert with the rule name bolded as the first line. Link
// previews are disabled so dashboard URLs in the body stay one line.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	return postJSON(ctx, t.client, "telegram", url, telegramMessage{
		ChatID:         t.chatID,
		Text:           fmt.Sprintf("*%s*\n%s", title, message),
		ParseMode:      "Markdown",
		DisablePreview: true,
	})
}

// Name identifies the channel in logs and transport records.
func (t *TelegramSender) Name() string { return "telegram" }

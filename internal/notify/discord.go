package notify

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordSender posts signal alerts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

var _ Sender = (*DiscordSender)(nil)

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

type discordMessage struct {
	Content string `json:"content"`
}

// Send posts the alert as one webhook message, rule name bolded on the first
// line. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordMessage{
		Content: fmt.Sprintf("**%s**\n%s", title, message),
	})
}

// Name identifies the channel in logs and transport records.
func (d *DiscordSender) Name() string { return "discord" }

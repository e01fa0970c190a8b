package deliver

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Discord delivers through per-pair webhooks using a single bot session for
// the REST transport. The gateway connection is never opened; webhook calls
// are plain REST.
type Discord struct {
	session  *discordgo.Session
	username string
}

// NewDiscord builds a Discord deliverer from a bot token. The username is
// shown as the webhook author on delivered messages.
func NewDiscord(botToken, username string) (*Discord, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &Discord{session: session, username: username}, nil
}

func (d *Discord) Deliver(ctx context.Context, target Target, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	// wait=true makes Discord return the created message, which carries
	// the id the mapping store needs.
	msg, err := d.session.WebhookExecute(target.WebhookID, target.WebhookToken, true,
		&discordgo.WebhookParams{
			Content:  content,
			Username: d.username,
		},
		discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord webhook execute: %w", err)
	}
	if msg == nil {
		return "", fmt.Errorf("discord webhook returned no message")
	}
	return msg.ID, nil
}

func (d *Discord) Edit(ctx context.Context, target Target, messageID, content string) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	_, err := d.session.WebhookMessageEdit(target.WebhookID, target.WebhookToken, messageID,
		&discordgo.WebhookEdit{Content: &content},
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook edit: %w", err)
	}
	return nil
}

func (d *Discord) Delete(ctx context.Context, target Target, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	if err := d.session.WebhookMessageDelete(target.WebhookID, target.WebhookToken, messageID,
		discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook delete: %w", err)
	}
	return nil
}

var _ Deliverer = (*Discord)(nil)

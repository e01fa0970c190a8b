package deliver

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Slack delivers to Slack channels with a bot token. The message timestamp
// doubles as the destination message id for edit/delete correlation.
type Slack struct {
	client *slack.Client
}

func NewSlack(botToken string) *Slack {
	return &Slack{client: slack.New(botToken)}
}

func (s *Slack) Deliver(ctx context.Context, target Target, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	_, ts, err := s.client.PostMessageContext(ctx, target.ChannelID,
		slack.MsgOptionText(content, false),
		slack.MsgOptionDisableLinkUnfurl())
	if err != nil {
		return "", fmt.Errorf("slack post message: %w", err)
	}
	return ts, nil
}

func (s *Slack) Edit(ctx context.Context, target Target, messageID, content string) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	_, _, _, err := s.client.UpdateMessageContext(ctx, target.ChannelID, messageID,
		slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack update message: %w", err)
	}
	return nil
}

func (s *Slack) Delete(ctx context.Context, target Target, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	if _, _, err := s.client.DeleteMessageContext(ctx, target.ChannelID, messageID); err != nil {
		return fmt.Errorf("slack delete message: %w", err)
	}
	return nil
}

var _ Deliverer = (*Slack)(nil)

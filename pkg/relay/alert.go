package relay

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/deliver"
)

// WebhookAlerter posts trap notifications to an operator Discord webhook.
type WebhookAlerter struct {
	deliverer deliver.Deliverer
	target    deliver.Target
}

// NewWebhookAlerter builds an alerter from a bare Discord webhook URL.
func NewWebhookAlerter(d deliver.Deliverer, webhookURL string) (*WebhookAlerter, error) {
	target, err := deliver.ParseTarget("discord:" + webhookURL)
	if err != nil {
		return nil, fmt.Errorf("alert webhook: %w", err)
	}
	return &WebhookAlerter{deliverer: d, target: target}, nil
}

func (a *WebhookAlerter) TrapAlert(ctx context.Context, pairName, trapKind string, ev bus.SourceEvent) error {
	content := fmt.Sprintf("🚨 Trap detected (%s) in pair %s — source message %s on %s",
		trapKind, pairName, ev.MessageID, ev.Channel.Identifier)
	_, err := a.deliverer.Deliver(ctx, a.target, content)
	return err
}

var _ Alerter = (*WebhookAlerter)(nil)

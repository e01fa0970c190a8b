// Package deliver sends relayed content to destination platforms. Each
// destination target is parsed once from the pair's destination string; the
// platform implementations share the Deliverer interface so the pipeline
// stays platform-agnostic.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinyland-inc/relayx/pkg/config"
)

// Per-attempt delivery timeout. There is no retry; a failed or timed-out
// delivery drops the message.
const Timeout = 30 * time.Second

// Destination platform message size handling: messages longer than maxLen
// runes are cut at truncateAt runes and marked.
const (
	maxLen         = 4000
	truncateAt     = 3900
	truncateMarker = "... (message truncated)"
)

var ErrUnsupportedTarget = errors.New("unsupported destination target")

// Target is a parsed destination.
type Target struct {
	Kind string // config.DestDiscord or config.DestSlack

	// Discord webhook coordinates.
	WebhookID    string
	WebhookToken string

	// Slack channel id.
	ChannelID string
}

// ParseTarget parses a pair destination string, e.g.
// "discord:https://discord.com/api/webhooks/<id>/<token>" or "slack:C024BE91L".
func ParseTarget(destination string) (Target, error) {
	kind, rest, ok := strings.Cut(destination, ":")
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedTarget, destination)
	}

	switch kind {
	case config.DestDiscord:
		id, token, err := parseWebhookURL(rest)
		if err != nil {
			return Target{}, err
		}
		return Target{Kind: kind, WebhookID: id, WebhookToken: token}, nil
	case config.DestSlack:
		if rest == "" {
			return Target{}, fmt.Errorf("%w: empty slack channel", ErrUnsupportedTarget)
		}
		return Target{Kind: kind, ChannelID: rest}, nil
	default:
		return Target{}, fmt.Errorf("%w: platform %q", ErrUnsupportedTarget, kind)
	}
}

// parseWebhookURL extracts the webhook id and token from a Discord webhook
// URL of the form https://discord.com/api/webhooks/<id>/<token>.
func parseWebhookURL(raw string) (id, token string, err error) {
	marker := "/webhooks/"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return "", "", fmt.Errorf("%w: not a webhook URL: %q", ErrUnsupportedTarget, raw)
	}
	parts := strings.Split(strings.Trim(raw[idx+len(marker):], "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: webhook URL missing id/token", ErrUnsupportedTarget)
	}
	return parts[0], parts[1], nil
}

// Deliverer is the destination platform capability used by the pipeline.
type Deliverer interface {
	// Deliver posts content and returns the destination message id.
	Deliver(ctx context.Context, target Target, content string) (string, error)
	// Edit replaces the content of a previously delivered message.
	Edit(ctx context.Context, target Target, messageID, content string) error
	// Delete removes a previously delivered message.
	Delete(ctx context.Context, target Target, messageID string) error
}

// Set maps destination kinds to their deliverer.
type Set map[string]Deliverer

// For returns the deliverer for a target kind.
func (s Set) For(kind string) (Deliverer, bool) {
	d, ok := s[kind]
	return d, ok
}

// PrepareContent normalizes relayed text for the destination platform:
// source decorations are flattened, broadcast mentions are stripped and
// overlong content is truncated with an explicit marker.
func PrepareContent(content string) string {
	content = strings.ReplaceAll(content, "**From ", "From ")
	content = strings.ReplaceAll(content, ":**\n", ":\n")

	content = strings.ReplaceAll(content, "@everyone", "")
	content = strings.ReplaceAll(content, "@here", "")

	if runes := []rune(content); len(runes) > maxLen {
		content = string(runes[:truncateAt]) + truncateMarker
	}

	return strings.TrimSpace(content)
}

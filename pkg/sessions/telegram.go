package sessions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/logger"
)

// flagEmoji is the reaction placed on trapped source messages. It must be
// one of the emoji Telegram allows as a reaction.
const flagEmoji = "👀"

// TelegramSession reads channel posts from one Telegram bot account via
// long polling and publishes them on the bus.
type TelegramSession struct {
	name    string
	token   string
	bus     *bus.EventBus
	bot     *telego.Bot
	running atomic.Bool
	cancel  context.CancelFunc
}

func NewTelegramSession(name, token string, eb *bus.EventBus) *TelegramSession {
	return &TelegramSession{name: name, token: token, bus: eb}
}

func (s *TelegramSession) Name() string { return s.name }

func (s *TelegramSession) IsRunning() bool { return s.running.Load() }

// Start authenticates the bot and begins the long-polling read loop. An
// authentication failure is returned to the caller; it isolates this
// session only.
func (s *TelegramSession) Start(ctx context.Context) error {
	bot, err := telego.NewBot(s.token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("session %s: creating bot: %w", s.name, err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("session %s: auth: %w", s.name, err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"channel_post", "edited_channel_post"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("session %s: subscribing updates: %w", s.name, err)
	}

	s.bot = bot
	s.cancel = cancel
	s.running.Store(true)

	logger.InfoCF("sessions", "Telegram session authenticated", map[string]any{
		"session": s.name,
		"bot":     me.Username,
	})

	go s.readLoop(pollCtx, updates)
	return nil
}

func (s *TelegramSession) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.running.Store(false)
}

func (s *TelegramSession) readLoop(ctx context.Context, updates <-chan telego.Update) {
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				logger.WarnCF("sessions", "Update stream closed", map[string]any{"session": s.name})
				return
			}
			s.handleUpdate(ctx, update)
		}
	}
}

func (s *TelegramSession) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.ChannelPost != nil:
		s.publish(ctx, bus.EventNew, update.ChannelPost)
	case update.EditedChannelPost != nil:
		s.publish(ctx, bus.EventEdited, update.EditedChannelPost)
	}
}

func (s *TelegramSession) publish(ctx context.Context, kind bus.EventKind, msg *telego.Message) {
	ref := channelRef(msg.Chat)
	if !ref.Supported() {
		logger.DebugCF("sessions", "Skipping event from unidentifiable chat", map[string]any{
			"session": s.name,
			"chat_id": msg.Chat.ID,
		})
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	ev := bus.SourceEvent{
		Kind:       kind,
		Session:    s.name,
		Channel:    ref,
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:  strconv.Itoa(msg.MessageID),
		Text:       text,
		ReceivedAt: time.Now(),
	}

	if err := s.bus.Publish(ctx, ev); err != nil {
		logger.ErrorCF("sessions", "Failed to publish event", map[string]any{
			"session": s.name,
			"error":   err.Error(),
		})
	}
}

// channelRef decides the channel identity variant once, at ingestion.
func channelRef(chat telego.Chat) bus.ChannelRef {
	if chat.Username != "" {
		return bus.ChannelRef{
			Kind:       bus.ChannelByHandle,
			Identifier: "@" + strings.ToLower(chat.Username),
		}
	}
	if chat.Title != "" {
		return bus.ChannelRef{
			Kind:       bus.ChannelByTitle,
			Identifier: strings.ToLower(chat.Title),
		}
	}
	return bus.ChannelRef{Kind: bus.ChannelUnknown}
}

// Flag reacts to the original message so operators can see it was trapped.
func (s *TelegramSession) Flag(ctx context.Context, chatID, messageID string) error {
	if s.bot == nil {
		return fmt.Errorf("session %s not started", s.name)
	}

	chat, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("bad message id %q: %w", messageID, err)
	}

	return s.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    telego.ChatID{ID: chat},
		MessageID: msgID,
		Reaction: []telego.ReactionType{
			&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: flagEmoji},
		},
	})
}

var _ SourceSession = (*TelegramSession)(nil)

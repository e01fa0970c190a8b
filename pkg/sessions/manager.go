// Package sessions owns the long-lived source platform connections. Each
// session subscribes to the full event stream of its account and fans every
// event into the shared bus; channel-level routing happens downstream in the
// pipeline, so adding a pair never requires touching a session.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/config"
	"github.com/tinyland-inc/relayx/pkg/logger"
)

// ErrNoSessions is the fatal startup condition: not a single configured
// session came up.
var ErrNoSessions = errors.New("no source sessions started")

// SourceSession is one independent authenticated connection to the source
// platform.
type SourceSession interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	// Flag marks a source message with an operator-visible reaction.
	Flag(ctx context.Context, chatID, messageID string) error
}

// Manager starts and supervises the configured sessions. A session that
// fails to start is logged and excluded; it never takes siblings down.
type Manager struct {
	sessions []SourceSession
}

// NewManager builds a Telegram session per active configured session.
// A session without its own token_file uses the default Telegram credential.
func NewManager(cfg *config.Config, secrets *config.Secrets, eb *bus.EventBus) (*Manager, error) {
	names := make([]string, 0, len(cfg.Sessions))
	for name := range cfg.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &Manager{}
	for _, name := range names {
		sc := cfg.Sessions[name]
		if !sc.Active() {
			logger.InfoCF("sessions", "Skipping inactive session", map[string]any{"session": name})
			continue
		}

		token, err := sessionToken(sc, secrets)
		if err != nil {
			return nil, err
		}
		m.sessions = append(m.sessions, NewTelegramSession(name, token, eb))
	}
	return m, nil
}

// NewManagerWith wraps pre-built sessions; used by tests and by callers
// supplying their own source implementation.
func NewManagerWith(sessions ...SourceSession) *Manager {
	return &Manager{sessions: sessions}
}

// StartAll starts every session, isolating individual failures. It returns
// ErrNoSessions when none started, and the joined per-session errors when
// only some did.
func (m *Manager) StartAll(ctx context.Context) error {
	var started int
	var failures []error
	for _, s := range m.sessions {
		if err := s.Start(ctx); err != nil {
			logger.ErrorCF("sessions", "Session failed to start", map[string]any{
				"session": s.Name(),
				"error":   err.Error(),
			})
			failures = append(failures, fmt.Errorf("session %s: %w", s.Name(), err))
			continue
		}
		started++
		logger.InfoCF("sessions", "Session connected", map[string]any{"session": s.Name()})
	}
	if started == 0 {
		return ErrNoSessions
	}
	logger.InfoCF("sessions", "Sessions running", map[string]any{"count": started})
	return errors.Join(failures...)
}

func (m *Manager) StopAll() {
	for _, s := range m.sessions {
		if s.IsRunning() {
			s.Stop()
			logger.InfoCF("sessions", "Session disconnected", map[string]any{"session": s.Name()})
		}
	}
}

// Running returns the names of the currently running sessions.
func (m *Manager) Running() []string {
	var out []string
	for _, s := range m.sessions {
		if s.IsRunning() {
			out = append(out, s.Name())
		}
	}
	return out
}

// Flag routes an operator flag back to the session that received the event.
func (m *Manager) Flag(ctx context.Context, ev bus.SourceEvent) error {
	for _, s := range m.sessions {
		if s.Name() == ev.Session {
			return s.Flag(ctx, ev.ChatID, ev.MessageID)
		}
	}
	return errors.New("unknown session: " + ev.Session)
}

func sessionToken(sc config.SessionConfig, secrets *config.Secrets) (string, error) {
	if sc.TokenFile != "" {
		return config.ReadTokenFile(sc.TokenFile)
	}
	if secrets.TelegramToken == "" {
		return "", errors.New("session has no token_file and no default telegram token is set")
	}
	return secrets.TelegramToken, nil
}

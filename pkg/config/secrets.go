package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables holding platform credentials. Each accepts a
// *_FILE companion pointing at a file containing the secret, which takes
// precedence over the plain variable.
const (
	EnvTelegramToken = "RELAYX_TELEGRAM_TOKEN"
	EnvDiscordToken  = "RELAYX_DISCORD_TOKEN"
	EnvSlackToken    = "RELAYX_SLACK_TOKEN"
)

// Secrets holds the platform credentials resolved at startup.
type Secrets struct {
	TelegramToken string
	DiscordToken  string
	SlackToken    string
}

// LoadSecrets resolves all platform credentials from the environment.
// Presence requirements are checked separately by Require, since the Slack
// token is only needed when a pair targets Slack.
func LoadSecrets() (*Secrets, error) {
	tg, err := resolveSecret(EnvTelegramToken)
	if err != nil {
		return nil, err
	}
	dc, err := resolveSecret(EnvDiscordToken)
	if err != nil {
		return nil, err
	}
	sl, err := resolveSecret(EnvSlackToken)
	if err != nil {
		return nil, err
	}
	return &Secrets{TelegramToken: tg, DiscordToken: dc, SlackToken: sl}, nil
}

// Require verifies that the credentials needed for the given config are
// present. Missing credentials are fatal at startup.
func (s *Secrets) Require(cfg *Config) error {
	if s.TelegramToken == "" {
		if !allSessionsHaveTokenFiles(cfg) {
			return fmt.Errorf("%s is not set and not every active session has a token_file", EnvTelegramToken)
		}
	}
	if s.DiscordToken == "" {
		return fmt.Errorf("%s is not set", EnvDiscordToken)
	}
	if cfg.RequiresSlack() && s.SlackToken == "" {
		return fmt.Errorf("%s is not set but an active pair targets slack", EnvSlackToken)
	}
	return nil
}

func allSessionsHaveTokenFiles(cfg *Config) bool {
	for _, sess := range cfg.Sessions {
		if sess.Active() && sess.TokenFile == "" {
			return false
		}
	}
	return len(cfg.Sessions) > 0
}

// ReadTokenFile reads a credential file, trimming surrounding whitespace.
func ReadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// resolveSecret reads NAME_FILE if set, otherwise NAME.
func resolveSecret(name string) (string, error) {
	if file := os.Getenv(name + "_FILE"); file != "" {
		data, err := os.ReadFile(ExpandHome(file))
		if err != nil {
			return "", fmt.Errorf("reading %s_FILE: %w", name, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.TrimSpace(os.Getenv(name)), nil
}

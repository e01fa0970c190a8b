package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Destination prefixes accepted in a pair's destination field.
const (
	DestDiscord = "discord"
	DestSlack   = "slack"
)

type Config struct {
	Pairs     map[string]PairConfig    `json:"pairs"`
	Sessions  map[string]SessionConfig `json:"sessions"`
	Blocklist BlocklistConfig          `json:"blocklist"`
	Relay     RelayConfig              `json:"relay"`
	Gateway   GatewayConfig            `json:"gateway"`
}

// PairConfig is one relay route from a Telegram channel to a destination
// target. Immutable after load.
type PairConfig struct {
	SourceChannel string   `json:"source_channel"`
	Destination   string   `json:"destination"`
	Session       string   `json:"session,omitempty"`
	Status        string   `json:"status"`
	Blocklist     []string `json:"blocklist,omitempty"`
}

func (p PairConfig) Active() bool { return p.Status == StatusActive }

// DestinationKind returns the platform prefix of the destination field
// ("discord" or "slack"), or "" when the field is malformed.
func (p PairConfig) DestinationKind() string {
	kind, _, ok := strings.Cut(p.Destination, ":")
	if !ok {
		return ""
	}
	return kind
}

type SessionConfig struct {
	TokenFile string `json:"token_file,omitempty"`
	Status    string `json:"status"`
}

func (s SessionConfig) Active() bool { return s.Status == StatusActive }

type BlocklistEntries struct {
	Text []string `json:"text"`
}

type BlocklistConfig struct {
	Global BlocklistEntries            `json:"global"`
	Pairs  map[string]BlocklistEntries `json:"pairs,omitempty"`
}

// PairEntries returns the configured blocklist entries for a pair: the
// entries from the blocklist section plus any inline entries on the pair.
func (c *Config) PairEntries(pairName string) []string {
	var out []string
	if e, ok := c.Blocklist.Pairs[pairName]; ok {
		out = append(out, e.Text...)
	}
	if p, ok := c.Pairs[pairName]; ok {
		out = append(out, p.Blocklist...)
	}
	return out
}

type RelayConfig struct {
	MappingFile   string `env:"RELAYX_RELAY_MAPPING_FILE"   json:"mapping_file"`
	RetentionDays int    `env:"RELAYX_RELAY_RETENTION_DAYS" json:"retention_days"`
	SweepSchedule string `env:"RELAYX_RELAY_SWEEP_SCHEDULE" json:"sweep_schedule"`
	EditThreshold int    `env:"RELAYX_RELAY_EDIT_THRESHOLD" json:"edit_threshold"`
	Workers       int    `env:"RELAYX_RELAY_WORKERS"        json:"workers"`
	AlertWebhook  string `env:"RELAYX_RELAY_ALERT_WEBHOOK"  json:"alert_webhook,omitempty"`
}

type GatewayConfig struct {
	Host string `env:"RELAYX_GATEWAY_HOST" json:"host"`
	Port int    `env:"RELAYX_GATEWAY_PORT" json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Pairs:    map[string]PairConfig{},
		Sessions: map[string]SessionConfig{},
		Blocklist: BlocklistConfig{
			Global: BlocklistEntries{Text: []string{}},
			Pairs:  map[string]BlocklistEntries{},
		},
		Relay: RelayConfig{
			MappingFile:   "~/.relayx/mappings.json",
			RetentionDays: 7,
			SweepSchedule: "0 0 * * *",
			EditThreshold: 3,
			Workers:       4,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
	}
}

// LoadConfig reads the config file at path, applies RELAYX_* environment
// overrides and validates the result. A missing file yields the defaults.
// Unknown JSON fields are ignored for forward compatibility.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults still take env overrides below.
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks pair and session references. It is a ConfigError surface:
// any failure here is fatal at startup.
func (c *Config) Validate() error {
	for name, pair := range c.Pairs {
		if !pair.Active() {
			continue
		}
		if pair.SourceChannel == "" {
			return fmt.Errorf("pair %q: source_channel is required", name)
		}
		switch pair.DestinationKind() {
		case DestDiscord, DestSlack:
		case "":
			return fmt.Errorf("pair %q: destination must be %q or %q prefixed",
				name, DestDiscord+":", DestSlack+":")
		default:
			return fmt.Errorf("pair %q: unsupported destination platform %q",
				name, pair.DestinationKind())
		}
		if pair.Session != "" {
			if _, ok := c.Sessions[pair.Session]; !ok {
				return fmt.Errorf("pair %q: unknown session %q", name, pair.Session)
			}
		}
	}
	if c.Relay.RetentionDays <= 0 {
		return errors.New("relay.retention_days must be positive")
	}
	if c.Relay.Workers <= 0 {
		return errors.New("relay.workers must be positive")
	}
	return nil
}

// RequiresSlack reports whether any active pair targets Slack.
func (c *Config) RequiresSlack() bool {
	for _, pair := range c.Pairs {
		if pair.Active() && pair.DestinationKind() == DestSlack {
			return true
		}
	}
	return false
}

// MappingFilePath returns the mapping store path with "~" expanded.
func (c *Config) MappingFilePath() string {
	return ExpandHome(c.Relay.MappingFile)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

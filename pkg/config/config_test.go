package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.RetentionDays != 7 {
		t.Errorf("expected default retention 7, got %d", cfg.Relay.RetentionDays)
	}
	if cfg.Relay.EditThreshold != 3 {
		t.Errorf("expected default edit threshold 3, got %d", cfg.Relay.EditThreshold)
	}
	if cfg.Relay.SweepSchedule != "0 0 * * *" {
		t.Errorf("unexpected default schedule %q", cfg.Relay.SweepSchedule)
	}
}

func TestLoadConfig_PairsAndSessions(t *testing.T) {
	path := writeConfig(t, `{
		"pairs": {
			"gold": {
				"source_channel": "@vip_channel",
				"destination": "discord:https://discord.com/api/webhooks/123/abc",
				"session": "reader-1",
				"status": "active"
			}
		},
		"sessions": {
			"reader-1": {"token_file": "reader-1.token", "status": "active"}
		},
		"blocklist": {"global": {"text": ["vip only"]}},
		"unknown_future_section": {"ignored": true}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	pair, ok := cfg.Pairs["gold"]
	if !ok {
		t.Fatal("pair gold not loaded")
	}
	if !pair.Active() {
		t.Error("pair should be active")
	}
	if pair.DestinationKind() != DestDiscord {
		t.Errorf("destination kind = %q", pair.DestinationKind())
	}
	if len(cfg.Blocklist.Global.Text) != 1 {
		t.Errorf("global blocklist not loaded: %+v", cfg.Blocklist.Global)
	}
}

func TestValidate_UnknownSessionReference(t *testing.T) {
	path := writeConfig(t, `{
		"pairs": {
			"gold": {
				"source_channel": "@vip",
				"destination": "discord:https://discord.com/api/webhooks/1/a",
				"session": "ghost",
				"status": "active"
			}
		}
	}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown session reference")
	}
}

func TestValidate_BadDestination(t *testing.T) {
	path := writeConfig(t, `{
		"pairs": {
			"gold": {"source_channel": "@vip", "destination": "irc:#chan", "status": "active"}
		}
	}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported destination platform")
	}
}

func TestValidate_InactivePairSkipped(t *testing.T) {
	path := writeConfig(t, `{
		"pairs": {
			"old": {"source_channel": "", "destination": "", "status": "inactive"}
		}
	}`)

	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("inactive pairs should not be validated: %v", err)
	}
}

func TestLoadConfig_BlocklistSection(t *testing.T) {
	path := writeConfig(t, `{
		"blocklist": {
			"global": {"text": ["casino", "promo code"]},
			"pairs": {"gold": {"text": ["internal only"]}}
		}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Blocklist.Global.Text) != 2 || cfg.Blocklist.Global.Text[0] != "casino" {
		t.Errorf("global entries = %v", cfg.Blocklist.Global.Text)
	}
	if got := cfg.Blocklist.Pairs["gold"].Text; len(got) != 1 || got[0] != "internal only" {
		t.Errorf("pair entries = %v", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RELAYX_RELAY_EDIT_THRESHOLD", "5")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.EditThreshold != 5 {
		t.Errorf("env override not applied, got %d", cfg.Relay.EditThreshold)
	}
}

func TestPairEntriesUnion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pairs["gold"] = PairConfig{Blocklist: []string{"inline"}}
	cfg.Blocklist.Pairs["gold"] = BlocklistEntries{Text: []string{"sectioned"}}

	entries := cfg.PairEntries("gold")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", entries)
	}
}

func TestRequiresSlack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pairs["a"] = PairConfig{Destination: "slack:C123", Status: StatusActive}
	if !cfg.RequiresSlack() {
		t.Error("expected RequiresSlack true")
	}
	cfg.Pairs["a"] = PairConfig{Destination: "slack:C123", Status: StatusInactive}
	if cfg.RequiresSlack() {
		t.Error("inactive pair should not require slack")
	}
}

func TestSecretFileOverride(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenPath, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvDiscordToken, "env-secret")
	t.Setenv(EnvDiscordToken+"_FILE", tokenPath)
	t.Setenv(EnvTelegramToken, "tg-secret")
	t.Setenv(EnvSlackToken, "")

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("load secrets: %v", err)
	}
	if s.DiscordToken != "file-secret" {
		t.Errorf("file override not honored, got %q", s.DiscordToken)
	}
}

func TestSecretsRequire(t *testing.T) {
	cfg := DefaultConfig()
	s := &Secrets{TelegramToken: "t"}
	if err := s.Require(cfg); err == nil {
		t.Error("expected error for missing discord token")
	}
	s.DiscordToken = "d"
	if err := s.Require(cfg); err != nil {
		t.Errorf("unexpected: %v", err)
	}
	cfg.Pairs["a"] = PairConfig{Destination: "slack:C1", Status: StatusActive, SourceChannel: "@a"}
	if err := s.Require(cfg); err == nil {
		t.Error("expected error for missing slack token")
	}
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tinyland-inc/relayx/cmd/relayx/internal"
	"github.com/tinyland-inc/relayx/pkg/bus"
	"github.com/tinyland-inc/relayx/pkg/config"
	"github.com/tinyland-inc/relayx/pkg/deliver"
	"github.com/tinyland-inc/relayx/pkg/filter"
	"github.com/tinyland-inc/relayx/pkg/health"
	"github.com/tinyland-inc/relayx/pkg/logger"
	"github.com/tinyland-inc/relayx/pkg/maintenance"
	"github.com/tinyland-inc/relayx/pkg/mapping"
	"github.com/tinyland-inc/relayx/pkg/pairs"
	relaypkg "github.com/tinyland-inc/relayx/pkg/relay"
	"github.com/tinyland-inc/relayx/pkg/sessions"
)

func relayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return fmt.Errorf("error loading credentials: %w", err)
	}
	if err := secrets.Require(cfg); err != nil {
		return fmt.Errorf("missing credentials: %w", err)
	}

	registry := pairs.NewRegistry(cfg)
	if registry.Len() == 0 {
		fmt.Println("⚠ Warning: no active pairs configured, nothing will be relayed")
	}
	fmt.Printf("✓ Pairs loaded: %d\n", registry.Len())

	contentFilter := filter.New(cfg.Blocklist.Global.Text)
	store := mapping.NewStore(cfg.MappingFilePath())
	fmt.Printf("✓ Mapping store: %s (%d records)\n", cfg.MappingFilePath(), store.Len())

	deliverers, err := buildDeliverers(cfg, secrets)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Destinations ready: %s\n", strings.Join(delivererKinds(deliverers), ", "))

	evBus := bus.NewEventBus()

	manager, err := sessions.NewManager(cfg, secrets, evBus)
	if err != nil {
		return fmt.Errorf("error creating sessions: %w", err)
	}

	var alerter relaypkg.Alerter
	if cfg.Relay.AlertWebhook != "" {
		discordDeliverer, ok := deliverers.For(config.DestDiscord)
		if !ok {
			return errors.New("alert webhook configured but discord deliverer unavailable")
		}
		alerter, err = relaypkg.NewWebhookAlerter(discordDeliverer, cfg.Relay.AlertWebhook)
		if err != nil {
			return fmt.Errorf("error configuring alert webhook: %w", err)
		}
		fmt.Println("✓ Trap alerts enabled")
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)

	pipeline, err := relaypkg.New(relaypkg.Options{
		Bus:           evBus,
		Registry:      registry,
		Filter:        contentFilter,
		Store:         store,
		Deliverers:    deliverers,
		Flagger:       manager,
		Alerter:       alerter,
		EditThreshold: cfg.Relay.EditThreshold,
		Workers:       cfg.Relay.Workers,
		Observer: func(r relaypkg.Result) {
			healthServer.PublishEvent("relay", r)
		},
	})
	if err != nil {
		return fmt.Errorf("error building pipeline: %w", err)
	}

	healthServer.SetStatusFunc(func() map[string]any {
		snapshot := map[string]any{
			"pairs":            registry.Len(),
			"sessions_running": len(manager.Running()),
			"mappings":         store.Len(),
		}
		for k, v := range pipeline.Stats().Snapshot() {
			snapshot["relay_"+k] = v
		}
		return snapshot
	})

	retention := time.Duration(cfg.Relay.RetentionDays) * 24 * time.Hour
	sweeper := maintenance.NewSweeper(store, cfg.Relay.SweepSchedule, retention)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()
	fmt.Printf("✓ Health endpoints available at http://%s:%d/health and /ready\n",
		cfg.Gateway.Host, cfg.Gateway.Port)

	pipeline.Run(ctx)
	sweeper.Start(ctx)
	fmt.Println("✓ Relay pipeline started")

	if err := manager.StartAll(ctx); err != nil {
		if errors.Is(err, sessions.ErrNoSessions) {
			healthServer.Stop(context.Background())
			evBus.Close()
			return fmt.Errorf("no source sessions could be started: %w", err)
		}
		fmt.Printf("⚠ Some sessions failed to start: %v\n", err)
	}
	fmt.Printf("✓ Sessions running: %s\n", strings.Join(manager.Running(), ", "))
	healthServer.SetReady(true)

	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	manager.StopAll()
	evBus.Close()
	pipeline.Wait()
	cancel()
	healthServer.Stop(context.Background())
	fmt.Println("✓ Relay stopped")

	return nil
}

// buildDeliverers creates one deliverer per destination platform the config
// references. Discord is always present; Slack only when a pair targets it.
func buildDeliverers(cfg *config.Config, secrets *config.Secrets) (deliver.Set, error) {
	set := deliver.Set{}

	discord, err := deliver.NewDiscord(secrets.DiscordToken, "relayx")
	if err != nil {
		return nil, fmt.Errorf("error creating discord client: %w", err)
	}
	set[config.DestDiscord] = discord

	if cfg.RequiresSlack() {
		set[config.DestSlack] = deliver.NewSlack(secrets.SlackToken)
	}

	return set, nil
}

func delivererKinds(set deliver.Set) []string {
	kinds := make([]string, 0, len(set))
	for kind := range set {
		kinds = append(kinds, kind)
	}
	return kinds
}

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/foremanhq/foreman/internal/agent"
	"github.com/foremanhq/foreman/internal/agent/backends"
	"github.com/foremanhq/foreman/internal/api/ws"
	"github.com/foremanhq/foreman/internal/auth"
	"github.com/foremanhq/foreman/internal/config"
	"github.com/foremanhq/foreman/internal/notify"
	"github.com/foremanhq/foreman/internal/server"
	"github.com/foremanhq/foreman/internal/store/postgres"
	redisstore "github.com/foremanhq/foreman/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("FOREMAN_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("FOREMAN_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	// API keys and websocket tickets.
	keychain, err := auth.NewKeychain(cfg.Auth.APIKeyHashes)
	if err != nil {
		return fmt.Errorf("api keychain: %w", err)
	}
	tickets := auth.NewTicketService(cfg.Auth.TicketSecret, cfg.Auth.TicketTTL)

	// Create Docker runtime for agent containers.
	dockerRuntime, err := agent.NewDockerRuntime(
		cfg.Agent.DockerHost,
		cfg.Agent.ImageDefault,
		cfg.Agent.CPULimit,
		cfg.Agent.MemLimit,
	)
	if err != nil {
		return fmt.Errorf("docker runtime: %w", err)
	}
	defer dockerRuntime.Close()

	// Create agent registry and register backends.
	registry := agent.NewRegistry()
	registry.Register("claude", backends.NewClaudeEngine)
	registry.Register("codex", backends.NewCodexEngine)

	workspaces := agent.NewWorkspaceManager(dockerRuntime.Client())

	// Create orchestrator.
	bus := agent.NewProgressBus()
	orchestrator := agent.NewOrchestrator(
		registry,
		dockerRuntime,
		workspaces,
		store.AgentSessions(),
		store.Tasks(),
		store.Projects(),
		bus,
		cfg.Agent.DefaultMaxTurns,
	)

	// Relay every progress event to Redis so any server instance can serve
	// the websocket stream.
	bus.AddTap(redisstore.SessionRelay(pubsub))

	// Optional Slack announcements for approval checkpoints and outcomes.
	if cfg.Slack.BotToken != "" {
		messengers := notify.NewRegistry()
		messengers.Register("slack", notify.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken)))
		bus.AddTap(notify.SessionTap(notify.New(messengers, cfg.Slack.Channel)))
	}

	orchestrator.StartQueueProcessor(cfg.Agent.QueueInterval)

	hub := ws.NewHub(pubsub, tickets)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, server.Deps{
		Store:        store,
		Hub:          hub,
		Orchestrator: orchestrator,
		Keychain:     keychain,
		Tickets:      tickets,
	})

	// Start server in background goroutine.
	go func() {
		if startErr := srv.Start(); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	if shutdownErr := orchestrator.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

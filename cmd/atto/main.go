// Atto - session directory and matchmaking server for multiplayer games.
//
// Atto accepts WebSocket connections from game clients and dedicated
// servers, maintains the registry of advertised sessions, matches queued
// parties into sessions with exactly the right capacity, exposes a REST
// status API, and publishes real-time telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/api"
	"github.com/slonopotamus/Atto/internal/auth"
	"github.com/slonopotamus/Atto/internal/cli"
	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/history"
	"github.com/slonopotamus/Atto/internal/matchmaker"
	"github.com/slonopotamus/Atto/internal/network"
	"github.com/slonopotamus/Atto/internal/telemetry"
	"github.com/slonopotamus/Atto/internal/util"
)

const (
	AppName    = "Atto"
	AppVersion = "1.0.0"
	Banner     = `
    ___   __  __
   /   | / /_/ /_____
  / /| |/ __/ __/ __ \
 / ___ / /_/ /_/ /_/ /
/_/  |_\__/\__/\____/  v%s
 Session Directory & Matchmaking Server
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Atto")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	localIP, _ := util.GetLocalIP()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("local_ip", localIP).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	// Match history audit log
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open history database")
		}
		store.Attach(eventBus)
	}

	// Platform-ticket verifier
	var verifier auth.Verifier
	if cfg.Auth.VerifyURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.Auth.VerifyURL, time.Duration(cfg.Auth.TimeoutSec)*time.Second)
	}

	mm := matchmaker.New(matchmaker.Options{
		MaxFindSessionsResults: int32(cfg.Matchmaker.MaxFindSessionsResults),
		SessionCooldown:        cfg.Matchmaker.SessionCooldown(),
	}, eventBus)

	gameServer := network.NewServer(cfg, mm, verifier, eventBus)
	if err := gameServer.Listen(cfg.Server.BindAddress, cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to bind matchmaking listener")
	}

	apiServer := api.NewServer(cfg, mm, gameServer, store)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	cliHandler := cli.NewCLI(cfg, eventBus, mm, gameServer, store)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Task 1: matchmaking WebSocket server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.Server.Port).Msg("starting matchmaking server")
		if err := gameServer.Serve(); err != nil {
			log.Error().Err(err).Msg("matchmaking server failed")
			errCh <- fmt.Errorf("matchmaking server: %w", err)
		}
	}()

	// Task 2: REST status API
	if cfg.API.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("API server failed (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: interactive CLI. Not part of the waitgroup: it blocks on
	// stdin and has nothing to flush on shutdown.
	go func() {
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	shutdownCh := shutdownSignal(eventBus)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from CLI")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Tell connected clients before tearing connections down.
	gameServer.BroadcastNotice("Server is shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := gameServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("matchmaking server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()

	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close history database")
		}
	}

	log.Info().Msg("Atto stopped")
}

// shutdownSignal returns a channel closed the first time a shutdown event
// fires. The bus runs handlers concurrently, so the close is once-guarded.
func shutdownSignal(bus *events.EventBus) <-chan struct{} {
	ch := make(chan struct{})
	var once sync.Once
	bus.Subscribe(events.EventShutdown, "main", func(context.Context, events.Event) error {
		once.Do(func() { close(ch) })
		return nil
	})
	return ch
}

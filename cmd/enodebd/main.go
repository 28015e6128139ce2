package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/acs"
	"github.com/lte-gateway/enodebd/internal/api"
	"github.com/lte-gateway/enodebd/internal/config"
	"github.com/lte-gateway/enodebd/internal/integration"
	"github.com/lte-gateway/enodebd/internal/mconfig"
	"github.com/lte-gateway/enodebd/internal/metrics"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
	"github.com/lte-gateway/enodebd/internal/storage"
	"github.com/lte-gateway/enodebd/pkg/crypto"
)

func main() {
	configPath := flag.String("config", "config/enodebd.yml", "config file path")
	validateOnly := flag.Bool("validate", false, "validate the config file and exit")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := crypto.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load config")
	}
	cfg.SetupLogging()
	cfg.PrintConfigSummary()

	if *validateOnly {
		if cfg.Enodebd.MconfigPath != "" {
			if _, _, err := mconfig.Load(cfg.Enodebd.MconfigPath); err != nil {
				log.Fatal().Err(err).Msg("Invalid mconfig")
			}
		}
		fmt.Println("config OK")
		return
	}

	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret, err = crypto.GenerateSecret(32)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate JWT secret")
		}
		log.Warn().Msg("No JWT secret configured, tokens will not survive a restart")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.ClientID),
		nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
		nats.ReconnectWait(cfg.NATS.ReconnectInterval),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}))
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	provider := mconfig.NewProvider(nil, store)
	if cfg.Enodebd.MconfigPath != "" {
		if err := provider.LoadFile(cfg.Enodebd.MconfigPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.Enodebd.MconfigPath).Msg("Failed to load mconfig")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(registry)
	}

	manager := acs.NewManager(nc, store, provider, acs.Options{
		DefaultDevice: cfg.Enodebd.DefaultDevice,
		SweepInterval: cfg.Enodebd.SweepInterval,
		Metrics:       collector,
		Timeouts: sm.Timeouts{
			Response:         cfg.Enodebd.Timeouts.Response,
			Idle:             cfg.Enodebd.Timeouts.Idle,
			PostRebootInform: cfg.Enodebd.Timeouts.PostRebootInform,
			RebootDelay:      cfg.Enodebd.Timeouts.RebootDelay,
		},
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := manager.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Session manager stopped")
			cancel()
		}
	}()

	if cfg.MQTT.Enabled {
		forwarder := integration.NewStatusForwarder(nc, cfg.MQTT)
		go func() {
			if err := forwarder.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Status forwarder stopped")
			}
		}()
	}

	server := api.NewRESTServer(cfg, store, manager, registry)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("REST API server failed")
			cancel()
		}
	}()

	log.Info().Str("name", cfg.Server.Name).Msg("enodebd started")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("REST API shutdown failed")
	}

	cancel()
	log.Info().Msg("enodebd stopped")
}

// openStore connects to Postgres, or keeps state in memory when no DSN is set
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Database.DSN == "" {
		log.Warn().Msg("No database configured, using in-memory store")
		return storage.NewMemoryStore(), nil
	}

	store, err := storage.NewPostgresStore(cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

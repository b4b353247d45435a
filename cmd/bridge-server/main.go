package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/api"
	"github.com/drone-bridge/drone-bridge-server/internal/bridge"
	"github.com/drone-bridge/drone-bridge-server/internal/config"
	"github.com/drone-bridge/drone-bridge-server/internal/integration"
	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/storage"
	"github.com/drone-bridge/drone-bridge-server/internal/vehicle"
	"github.com/drone-bridge/drone-bridge-server/pkg/crypto"
)

func main() {
	var (
		configFile   string
		validateOnly bool
		showConfig   bool
	)
	flag.StringVar(&configFile, "config", "config/bridge-server.yml", "path to configuration file")
	flag.BoolVar(&validateOnly, "validate", false, "validate configuration and exit")
	flag.BoolVar(&showConfig, "show-config", false, "print configuration summary and exit")
	flag.Parse()

	// Logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", configFile).Msg("Failed to load configuration")
	}

	if validateOnly {
		fmt.Println("Configuration is valid")
		return
	}
	if showConfig {
		cfg.PrintConfigSummary()
		return
	}

	// Apply configured log level
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	log.Info().
		Str("name", cfg.Server.Name).
		Str("version", cfg.Server.Version).
		Msg("Drone bridge server starting")

	// Database
	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()
	log.Info().Msg("Connected to database")

	// NATS
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("drone-bridge-server"),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("Connected to NATS")
	} else {
		log.Warn().Msg("No NATS URL configured, event publishing disabled")
	}

	// Vehicle provider
	provider, err := newProvider(&cfg.Vehicle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vehicle provider")
	}

	// Wire the bridge hub
	var credentials bridge.CredentialSource = bridge.NewStoreCredentials(store)
	if secret := os.Getenv("BRIDGE_SECRET"); secret != "" {
		// A bootstrap credential for environments without provisioning
		credentials = mergedCredentials{
			bridge.StaticFromHashes([]string{crypto.SecretHash(secret)}),
			credentials,
		}
	}

	sink := bridge.NewStoreEventSink(store)

	var pub bridge.Publisher
	if nc != nil {
		pub = integration.NewNATSPublisher(nc)
	}

	hub := bridge.NewHub(cfg.Bridge, provider, credentials, sink, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	// Initial vehicle connect happens in the background; the supervisor
	// retries until the link comes up
	go func() {
		connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Bridge.ConnectTimeout)
		defer connectCancel()
		if err := provider.Connect(connectCtx); err != nil {
			log.Warn().Err(err).Msg("Initial vehicle connect failed, supervisor will retry")
		}
	}()

	// Integration forwarder
	if nc != nil {
		forwarder := integration.NewForwarderService(nc, cfg.Integration)
		go func() {
			if err := forwarder.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Integration forwarder stopped")
			}
		}()
	}

	// REST API + websocket server
	server := api.NewRESTServer(cfg, store, hub)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := server.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	log.Info().Msg("Drone bridge server stopped")
}

// newProvider builds the vehicle provider named by the configuration
func newProvider(cfg *config.VehicleConfig) (vehicle.Provider, error) {
	switch cfg.Driver {
	case "", "sim":
		return vehicle.NewSim(), nil
	default:
		return nil, fmt.Errorf("unknown vehicle driver %q", cfg.Driver)
	}
}

// mergedCredentials concatenates several credential sources
type mergedCredentials []bridge.CredentialSource

// ActiveCredentials implements bridge.CredentialSource
func (m mergedCredentials) ActiveCredentials(ctx context.Context) ([]*models.Credential, error) {
	var out []*models.Credential
	for _, src := range m {
		creds, err := src.ActiveCredentials(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, creds...)
	}
	return out, nil
}

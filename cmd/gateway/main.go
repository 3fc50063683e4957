// Command gateway runs the speech analytics API gateway: it verifies
// bearer tokens against the identity provider's JWKS endpoint, enforces
// per-operation permissions, and serves the person and speech APIs over
// PostgreSQL with an optional object store for media downloads.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/speechlytics/speech-gateway/internal/repository"
	"github.com/speechlytics/speech-gateway/pkg/api"
	"github.com/speechlytics/speech-gateway/pkg/auth"
	minioclient "github.com/speechlytics/speech-gateway/pkg/clients/minio"
	"github.com/speechlytics/speech-gateway/pkg/clients/postgres"
	"github.com/speechlytics/speech-gateway/pkg/config"
	"github.com/speechlytics/speech-gateway/pkg/domain/person"
	"github.com/speechlytics/speech-gateway/pkg/domain/speech"
)

// gatewayConfig is the process configuration, loaded from defaults, an
// optional file (GATEWAY_CONFIG_FILE), and GATEWAY_* environment
// variables.
type gatewayConfig struct {
	LogLevel string `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	Server   api.ServerConfig    `json:"server" yaml:"server" env:"SERVER"`
	Auth     auth.VerifierConfig `json:"auth" yaml:"auth" env:"AUTH"`
	Database postgres.Config     `json:"database" yaml:"database" env:"DATABASE"`

	// MediaEnabled turns on presigned media URLs through the object
	// store. When false the Media section is ignored.
	MediaEnabled bool               `json:"media_enabled" yaml:"media_enabled" env:"MEDIA_ENABLED" envDefault:"false"`
	Media        minioclient.Config `json:"media" yaml:"media" env:"MEDIA"`
}

// Validate implements config.Validator.
func (c *gatewayConfig) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.MediaEnabled {
		return c.Media.Validate()
	}
	return nil
}

func main() {
	loader := config.New().WithEnvPrefix("GATEWAY")
	if file := os.Getenv("GATEWAY_CONFIG_FILE"); file != "" {
		loader = loader.WithFile(file)
	}
	cfg := config.MustLoad[gatewayConfig](loader)

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error("gateway terminated", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *gatewayConfig, logger *slog.Logger) error {
	db, err := postgres.NewClient(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.InitSchema(ctx, db); err != nil {
		return err
	}

	var mediaStore speech.MediaStore
	if cfg.MediaEnabled {
		media, err := minioclient.NewClient(ctx, cfg.Media)
		if err != nil {
			return err
		}
		mediaStore = media
		logger.Info("media store connected", "endpoint", cfg.Media.Endpoint, "bucket", cfg.Media.Bucket)
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	personManager := person.NewManager(repository.NewPersonRepository(db), logger)
	speechManager := speech.NewManager(repository.NewSpeechRepository(db), mediaStore, logger)

	router := api.NewRouter(verifier, personManager, speechManager, logger)
	server, err := api.NewServer(cfg.Server, router, logger)
	if err != nil {
		return err
	}

	logger.Info("gateway starting",
		"host", cfg.Server.Host, "port", cfg.Server.Port,
		"database", cfg.Database.Database, "media_enabled", cfg.MediaEnabled)
	return server.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

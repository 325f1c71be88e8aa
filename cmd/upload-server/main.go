package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/signed-upload/pkg/signedupload"
	"github.com/tendant/signed-upload/pkg/signedupload/api"
	"github.com/tendant/signed-upload/pkg/signedupload/config"
	"github.com/tendant/signed-upload/pkg/signedupload/postpolicy"
)

// ServerConfig holds settings that are specific to this binary. Signing,
// storage and ledger settings are read by config.WithEnv with EnvPrefix.
type ServerConfig struct {
	EnvPrefix     string `env:"SIGNED_UPLOAD_ENV_PREFIX" env-default:"UPLOAD_"`
	ApiKeySHA256  string `env:"API_KEY_SHA256" env-default:"1"`
	ReceiverPath  string `env:"RECEIVER_PATH" env-default:"/oss"`
	PublicURL     string `env:"RECEIVER_PUBLIC_URL"`
	MaxFieldBytes int64  `env:"RECEIVER_MAX_FIELD_BYTES" env-default:"65536"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
}

func main() {
	var serverConfig ServerConfig
	if err := cleanenv.ReadEnv(&serverConfig); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(serverConfig.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(config.WithEnv(serverConfig.EnvPrefix))
	if err != nil {
		slog.Error("Failed to load upload configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := cfg.BuildStore(ctx)
	if err != nil {
		slog.Error("Failed to initialize storage", "type", cfg.Storage.Type, "err", err)
		os.Exit(1)
	}
	uploads, closeLedger, err := cfg.BuildLedger(ctx)
	if err != nil {
		slog.Error("Failed to initialize ledger", "type", cfg.DatabaseType, "err", err)
		os.Exit(1)
	}
	defer closeLedger()

	receiver := postpolicy.NewHandler(cfg.BuildVerifier(), store,
		postpolicy.WithLedger(uploads),
		postpolicy.WithPublicURL(serverConfig.PublicURL),
		postpolicy.WithMaxFieldBytes(serverConfig.MaxFieldBytes),
		postpolicy.WithLogger(logger),
	)
	signatures := api.NewHandler(func() (*signedupload.Builder, error) {
		return cfg.BuildBuilder(signedupload.WithLogger(logger))
	}, uploads)

	apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
		APIKeys: map[string]string{
			"key1": serverConfig.ApiKeySHA256,
		},
	})
	if err != nil {
		slog.Error("Failed initialize API Key middleware", "err", err)
		os.Exit(1)
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Use(apiKeyMiddleware)
		r.Mount("/", signatures.Routes())
	})
	server.R.Mount(serverConfig.ReceiverPath, receiver.Routes())

	slog.Info("Upload server configured",
		"host", cfg.Host,
		"receiver_path", serverConfig.ReceiverPath,
		"storage", cfg.Storage.Type,
		"database", cfg.DatabaseType,
		"key_prefix", cfg.KeyPrefix)

	server.Run()
}

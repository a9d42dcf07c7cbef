package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dropDatabas3/posgate/internal/app"
	"github.com/dropDatabas3/posgate/internal/config"
	"github.com/dropDatabas3/posgate/internal/observability/logger"
)

var version = "dev"

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func main() {
	var (
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (opcional)")
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (vacío => configs/config.yaml si existe, si no sólo env)")
	)
	flag.Parse()

	if fileExists(*flagEnvFile) {
		_ = godotenv.Load(*flagEnvFile)
	}

	path := *flagConfigPath
	if path == "" && fileExists("configs/config.yaml") {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = version
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "posgate",
		Version:     cfg.App.Version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal("app_build_failed", logger.Err(err))
	}
	log.Info("posgate_starting",
		zap.String("env", cfg.App.Env),
		zap.String("storage", a.Stores.Driver),
		zap.Bool("redis", a.Redis != nil),
		zap.String("webhook_mode", cfg.WebhookMode().String()),
		zap.Bool("scheduler", cfg.Scheduler.Enabled),
	)

	if err := a.Run(ctx); err != nil {
		log.Error("server_error", logger.Err(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

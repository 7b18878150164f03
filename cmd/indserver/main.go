package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"indlink/config"
	"indlink/internal/indserver"
	"indlink/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	lg := logger.Init("indserver", cfg.LogLevel, cfg.LogFormat)
	lg.Info().
		Str("link", cfg.LinkAddr+cfg.LinkPath).
		Str("admin", cfg.AdminAddr).
		Strs("fields", cfg.Fields()).
		Bool("model", cfg.HasModel()).
		Msg("starting")

	svc, err := indserver.New(cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		lg.Fatal().Err(err).Msg("fatal")
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-courier-auth/config"
	"github.com/goliatone/go-courier-auth/internal/logger"
	"github.com/goliatone/go-courier-auth/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lgr, err := logger.New(cfg.GetEnvironment(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lgr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, lgr)
	if err != nil {
		lgr.Error("startup failed: %v", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		lgr.Error("server stopped: %v", err)
		os.Exit(1)
	}
}

// cmd/replayd serves a bar replay over HTTP and WebSocket: clients drive the
// replay clock through the REST control surface and receive candle and
// indicator updates live.
//
// Usage:
//
//	go run ./cmd/replayd --config=replay.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"barreplay/config"
	"barreplay/internal/logger"
	"barreplay/internal/service"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("REPLAY_CONFIG"), "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replayd:", err)
		os.Exit(2)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(cfg.Service, level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(cfg)
	if err != nil {
		slog.Error("replayd init failed", "error", err)
		os.Exit(1)
	}
	if err := svc.Run(ctx); err != nil {
		slog.Error("replayd failed", "error", err)
		os.Exit(1)
	}
}

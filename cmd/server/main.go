package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
	"github.com/ZanzyTHEbar/sensim/internal/server"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("SENSIM_CONFIG"), "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "sensim server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := monitoring.NewLogger(cfg.Logging)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := server.New(cfg, logger, monitoring.NewMetrics(), version)
	defer s.Close()

	if err := s.Run(ctx); err != nil {
		logger.Error("Server failed", "error", err)
		return err
	}
	return nil
}

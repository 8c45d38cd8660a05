// Command senderwatch is the multi-account dashboard stat collector.
//
// Usage:
//
//	senderwatch -config senderwatch.yaml            # run the fleet
//	senderwatch -config senderwatch.yaml -new-key ops   # mint an API key and exit
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/senderwatch"
	"github.com/hazyhaar/senderwatch/statstore"
)

func main() {
	configPath := flag.String("config", "senderwatch.yaml", "path to senderwatch.yaml config file")
	newKeyName := flag.String("new-key", "", "mint an API key with this label and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *newKeyName); err != nil {
		logger.Error("senderwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, newKeyName string) error {
	cfg, err := senderwatch.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if newKeyName != "" {
		return mintKey(ctx, cfg.DBPath, newKeyName)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	svc, err := senderwatch.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Run(ctx)
}

// mintKey creates an API key in the stat store and prints it once.
func mintKey(ctx context.Context, dbPath, name string) error {
	store, err := statstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	key := "sw_" + hex.EncodeToString(raw)

	if err := store.CreateAPIKey(ctx, key, name); err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"lobby-lab/domain"
	"lobby-lab/gateway"
	"lobby-lab/internal"
	"lobby-lab/storage"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Database collaborator terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.DatabaseConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := internal.LoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	store := storage.NewStore(db, logger)

	if config.SeedFile != "" {
		if err := seedCatalog(logger, store, config.SeedFile); err != nil {
			return exitConfig, fmt.Errorf("seeding catalog failed: %w", err)
		}
	}

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Serve until signaled
	errChan := make(chan error, 1)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := storage.NewServer(logger, address, store)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			errChan <- fmt.Errorf("database server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.DatabaseConfig, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// seedCatalog loads game entries from a JSON file so a fresh deployment
// has something to play. Existing entries are overwritten by id.
func seedCatalog(logger *slog.Logger, store *storage.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var games []domain.Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return fmt.Errorf("unreadable seed file %s: %w", path, err)
	}

	for _, game := range games {
		resp := store.Handle(gateway.Request{
			Operation: gateway.OpCreate,
			Entity:    gateway.EntityGame,
			Payload:   game,
		})
		if !resp.OK() {
			return fmt.Errorf("seeding game %s: %s", game.Name, resp.Message)
		}
	}
	logger.Info("Catalog seeded", "games", len(games), "file", path)
	return nil
}

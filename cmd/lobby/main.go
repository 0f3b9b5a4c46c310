package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"lobby-lab/auth"
	"lobby-lab/gateway"
	"lobby-lab/internal"
	"lobby-lab/runtime"
	"lobby-lab/runtime/workers"
	"lobby-lab/server"
	"lobby-lab/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lobby terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the server and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.PortRangeMin > config.PortRangeMax {
		return exitConfig, fmt.Errorf("invalid port range [%d, %d]", config.PortRangeMin, config.PortRangeMax)
	}

	logger := internal.LoggerFromString(config.LogLevel)

	// 2. Collaborators: database gateway, port pool, process launcher
	db := gateway.NewClient(logger, config.DatabaseAddr,
		config.DatabaseTimeout, config.DatabaseRetries, config.DatabaseBackoff)
	ports := runtime.NewPortAllocator(logger, config.PortRangeMin, config.PortRangeMax)
	launcher := runtime.NewExecLauncher(logger)
	tokens := auth.NewTokenIssuer(config.MatchTokenSecret, config.MatchTokenDuration)

	orchestrator := runtime.NewOrchestrator(logger, ports, launcher, db, tokens,
		config.GamesDir, config.BufferSize, config.PortWaitTimeout)

	// 3. Services & dispatcher
	registry := runtime.NewRegistry()
	authService := services.NewAuthService(logger, db, registry)
	roomService := services.NewRoomService(logger, db, registry, orchestrator)
	dispatcher := server.NewDispatcher(logger, authService, roomService, tokens, config.ReadTimeout)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewMatchEventsWorker(logger, orchestrator.Events(), roomService),
		workers.NewHealthMonitoringWorker(logger, orchestrator.Processes(), config.MetricInterval),
	)
	supDone := make(chan struct{})
	go func() {
		logger.Info("Starting workers...")
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. Lobby server
	errChan := make(chan error, 1)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := server.New(logger, address, dispatcher)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			errChan <- fmt.Errorf("lobby server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

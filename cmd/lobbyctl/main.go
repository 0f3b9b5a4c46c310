// lobbyctl is a small interactive lobby client. It logs in, forwards
// line-based commands from stdin and prints every event frame the server
// pushes, which makes it handy for poking at a running lobby.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"

	"lobby-lab/internal"
	"lobby-lab/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"LOBBY_SERVER_ADDR,default=localhost:17048"`
	Username      string `env:"LOBBY_USERNAME"`
	Password      string `env:"LOBBY_PASSWORD"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the client lifecycle: configuration loading, connection,
// the receive loop and the stdin command loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := internal.LoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Establish connection to the lobby server.
	conn, err := net.Dial("tcp", config.ServerAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	color.Greenln(">>> Connected to " + config.ServerAddress + " (Ctrl+C to quit)")

	// 4. Optional automatic login from the environment.
	if config.Username != "" {
		if err := protocol.Write(conn, map[string]string{
			"command": "login", "username": config.Username, "password": config.Password,
		}); err != nil {
			return exitRuntime, fmt.Errorf("login failed: %w", err)
		}
	}

	// 5. Reception loop: responses and pushed events share the socket.
	recvErr := make(chan error, 1)
	go func() {
		for {
			raw, readErr := protocol.Read(conn)
			if readErr != nil {
				recvErr <- readErr
				return
			}
			printFrame(raw)
		}
	}()

	// 6. Stdin loop: each line is a JSON command payload, or a bare
	// command name for payload-less commands like list_rooms.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			payload := json.RawMessage(line)
			if !json.Valid(payload) {
				payload = json.RawMessage(fmt.Sprintf(`{"command":%q}`, line))
			}
			if writeErr := protocol.Write(conn, payload); writeErr != nil {
				log.Error("Write failed", "error", writeErr)
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Stopping client...")
		return exitOK, nil
	case err := <-recvErr:
		if ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, fmt.Errorf("connection lost: %w", err)
	}
}

func printFrame(raw json.RawMessage) {
	var frame struct {
		Status string `json:"status"`
		Event  string `json:"event"`
	}
	_ = json.Unmarshal(raw, &frame)

	switch frame.Status {
	case "event":
		color.Yellowln("<< event " + frame.Event + " " + string(raw))
	case "error":
		color.Redln("<< " + string(raw))
	default:
		color.Greenln("<< " + string(raw))
	}
}

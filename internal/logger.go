package internal

import (
	"log/slog"
	"os"
	"strings"
)

// LoggerFromString builds the process-wide logger for the given level
// name. Unknown levels fall back to INFO rather than failing the boot.
func LoggerFromString(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

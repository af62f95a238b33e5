// Package logging wires up the daemon's structured logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/biometria-se/async-messaged/internal/config"
)

// New creates the process-wide structured logger. Level comes from
// GRIZZLY_EXTRAS_LOGLEVEL (DEBUG|INFO|WARNING|ERROR, default INFO). When
// GRIZZLY_CONTEXT_ROOT is set, log lines also go to a rotating-by-name
// file under {context_root}/logs[/{GRIZZLY_LOG_DIR}]; otherwise only
// stderr is used.
func New(component string) *slog.Logger {
	level := parseLevel(config.GetEnv("GRIZZLY_EXTRAS_LOGLEVEL", "INFO"))
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewJSONHandler(os.Stderr, opts)}

	if logFile, err := logFilePath(); err == nil {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	return slog.New(newFanoutHandler(handlers)).With(slog.String("component", component))
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logFilePath() (string, error) {
	root := os.Getenv("GRIZZLY_CONTEXT_ROOT")
	if root == "" {
		return "", fmt.Errorf("GRIZZLY_CONTEXT_ROOT not set")
	}

	dir := filepath.Join(root, "logs")
	if sub := os.Getenv("GRIZZLY_LOG_DIR"); sub != "" {
		dir = filepath.Join(dir, sub)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	now := time.Now()
	name := fmt.Sprintf("async-messaged.%s.%s%06d.log", host, now.Format("20060102T150405"), now.Nanosecond()/1000)
	return filepath.Join(dir, name), nil
}

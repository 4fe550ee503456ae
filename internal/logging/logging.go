// Package logging configures structured logging for sessionmcp.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// WriteToStderr controls whether logs are also written to stderr.
	WriteToStderr bool
}

// DefaultLogPath returns the default log file path under the user's home
// directory, mirroring the storage_dir convention used for persistent state.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sessionmcp", "logs", "sessionmcp.log")
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		WriteToStderr: false, // stdout carries the JSON-RPC wire; default logging goes only to the file
	}
}

func levelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes file-based logging and returns a logger plus a cleanup
// function. The stdio transport used by the JSON-RPC dispatcher owns
// stdin/stdout, so logging here never writes to stdout.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		cleanup := func() { _ = f.Close() }

		if cfg.WriteToStderr {
			writers = append(writers, os.Stderr)
		}

		var out io.Writer = io.MultiWriter(writers...)
		logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: levelFromString(cfg.Level)}))
		return logger, cleanup, nil
	}

	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, io.Discard)
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: levelFromString(cfg.Level)}))
	return logger, func() {}, nil
}

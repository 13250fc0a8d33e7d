// Package logger configures the process-wide structured logger shared
// by the acceptor, sessions, and admin endpoint.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds a slog.Logger writing to stdout and, if logFile is
// non-empty, appending to that file as well. level is one of
// "debug"/"info"/"warn"/"error"; anything else falls back to info.
func New(level, logFile string) (*slog.Logger, error) {
	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler), nil
}

func parseLevel(level string) slog.Level {
	switch level {
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

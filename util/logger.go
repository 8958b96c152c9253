package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger = slog.Default()

// InitLogger installs a text handler writing to w at the named level and
// makes it the process default. Unknown levels fall back to info.
func InitLogger(level string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(Logger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const logFileName = "tada.log"

// setupLogging sends slog output to dir/tada.log. verbose also copies it
// to stderr at debug level.
func setupLogging(dir, level string, verbose bool, stderr io.Writer) (func(), error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	var w io.Writer = f
	if verbose {
		lvl = slog.LevelDebug
		w = io.MultiWriter(f, stderr)
	}

	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return func() {
		slog.SetDefault(prev)
		_ = f.Close()
	}, nil
}

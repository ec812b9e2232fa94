package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// NewLogger builds the process logger. JSON is forced in production so log
// shippers can parse every line; component is attached to each record.
func NewLogger(cfg *Config, component string) *slog.Logger {
	return newLogger(os.Stdout, cfg).With(slog.String("component", component))
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource:   true,
		Level:       cfg.SlogLevel(),
		ReplaceAttr: shortSource,
	}
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// shortSource trims the source attribute to dir/file.go:line.
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok || src == nil {
		return a
	}
	file := filepath.Join(filepath.Base(filepath.Dir(src.File)), filepath.Base(src.File))
	return slog.String(slog.SourceKey, file+":"+strconv.Itoa(src.Line))
}

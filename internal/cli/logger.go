package cli

import (
	"io"
	"log/slog"
)

// Log formats accepted by --log-format.
const (
	LogText = "text"
	LogJSON = "json"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Logger returns the logger asked for by --log-level and --log-format,
// writing to w. Invocation and engine records go through it; results do not.
func (o *Options) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if o.LogFormat == LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs a JSON slog handler at the given level as the default logger.
// Unknown levels fall back to info.
func SetupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}

package util

import (
	"context"
	"log/slog"
)

// LevelTrace is a custom slog level between Info and Warn, used for the
// high-volume per-cycle pipeline trace lines so they can be filtered out
// independently of ordinary Info logging.
const LevelTrace slog.Level = slog.LevelInfo + 1

// Trace logs a structured trace line. The compute unit's Fetch and the
// execution units' shared uop-completion step call this once per uop; it
// is cheap to filter out entirely by raising
// the configured slog level above LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// log.Logger is a type alias for *slog.Logger, so this is usable
// anywhere a component takes the internal logger type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

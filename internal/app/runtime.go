package app

import (
	"log/slog"
	"os"
	"strconv"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether ODYSSEY_TEST_MODE is set to a true value.
// Binaries return early in that mode so test binaries that link them never
// open sockets or pools.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}

// SkipStartup logs and reports true when component must not start.
func SkipStartup(component string) bool {
	if !InTestMode() {
		return false
	}
	slog.Default().Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}

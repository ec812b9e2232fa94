// Package testing is blank-imported by test packages so every test binary
// runs in test mode against process-local storage unless told otherwise.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var testEnv = map[string]string{
	"ODYSSEY_TEST_MODE": "1",
	"STORAGE_DRIVER":    "memory",
	"JWT_SECRET":        "odyssey-pos-test-secret-0123456789abcdef",
	"LOG_LEVEL":         "warn",
}

var setup sync.Once

// applyTestEnv sets each default that the caller's environment left empty.
func applyTestEnv() {
	setup.Do(func() {
		for key, value := range testEnv {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	applyTestEnv()
}

func TestMain(m *stdtesting.M) {
	applyTestEnv()
	os.Exit(m.Run())
}

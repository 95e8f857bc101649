// Package testing holds process-wide switches for test binaries.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "TIENDITA_TEST_MODE"

var once sync.Once

// EnsureTestMode marks the process as a test run so entrypoints skip
// connecting to Postgres and Redis, and points the renderer at a dead port.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
	})
}

// TestMain can be assigned from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	EnsureTestMode()
	os.Exit(m.Run())
}

package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches binaries into a no side effects mode when set to "1".
const TestModeEnv = "MENU_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	testMode.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether the process runs under go test.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}

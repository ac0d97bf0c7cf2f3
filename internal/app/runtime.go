package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv names the variable that keeps command mains from starting
// their servers when linked into a test binary.
const TestModeEnv = "GYMFLOW_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// EnableTestMode turns test mode on unless the environment already decided.
func EnableTestMode() {
	if _, set := os.LookupEnv(TestModeEnv); !set {
		_ = os.Setenv(TestModeEnv, "1")
	}
	testModeOnce.Do(func() {})
	RefreshTestMode()
}

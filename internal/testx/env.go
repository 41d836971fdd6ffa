package testx

import (
	"os"
	"testing"
)

// ContainersEnabledEnv is the environment variable that enables tests that
// start Docker containers.
const ContainersEnabledEnv = "SEQNO_TEST_CONTAINERS"

// SkipUnlessContainers skips the test unless container-backed tests have been
// enabled via [ContainersEnabledEnv].
func SkipUnlessContainers(t testing.TB) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	if os.Getenv(ContainersEnabledEnv) == "" {
		t.Skipf("skipping container-backed test, set %s=1 to enable", ContainersEnabledEnv)
	}
}

// Getenv returns the value of the environment variable k, or def if it is
// empty.
func Getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

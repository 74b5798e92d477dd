package testutils

import (
	"os"
	"testing"
)

// SkipIfEnvUnspecified skips the test if the named environment variable is
// not set.
func SkipIfEnvUnspecified(t *testing.T, name string) string {
	t.Helper()

	v, ok := os.LookupEnv(name)
	if !ok {
		t.Skipf("Set %s to run this test", name)
	}
	return v
}

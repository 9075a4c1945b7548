package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v1.2.3"

	got := String()
	if !strings.HasPrefix(got, "agenteval v1.2.3 (commit ") {
		t.Fatalf("unexpected version string %q", got)
	}
}

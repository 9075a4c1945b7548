package exec

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunnerExitCode(t *testing.T) {
	skipOnWindows(t)
	var stdout bytes.Buffer
	r := &Runner{Stdout: &stdout}
	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo hello; exit 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 3 {
		t.Fatalf("expected exit code 3, got %d", res.Code)
	}
	if !strings.Contains(stdout.String(), "hello") || !strings.Contains(res.Stdout, "hello") {
		t.Fatalf("expected streamed and captured output, got %q / %q", stdout.String(), res.Stdout)
	}
}

func TestRunnerSuccess(t *testing.T) {
	skipOnWindows(t)
	r := &Runner{Timeout: 2 * time.Second, Env: []string{"AGENTEVAL_TEST_VALUE=xyz"}}
	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo $AGENTEVAL_TEST_VALUE >&2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 0 || strings.TrimSpace(res.Stderr) != "xyz" || res.Stdout != "" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunnerTimeout(t *testing.T) {
	skipOnWindows(t)
	r := &Runner{Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := r.Run(context.Background(), "sh", []string{"-c", "sleep 1"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout did not trigger quickly")
	}
}

func TestRunnerOutputTruncation(t *testing.T) {
	skipOnWindows(t)
	r := &Runner{MaxOutput: 10}
	res, err := r.Run(context.Background(), "printf", []string{"123456789012345"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated || len(res.Stdout) != 10 {
		t.Fatalf("expected truncated output of 10 bytes, got %q", res.Stdout)
	}
}

func TestRunnerInterleavedStreams(t *testing.T) {
	skipOnWindows(t)
	var stdout, stderr bytes.Buffer
	r := &Runner{Stdout: &stdout, Stderr: &stderr}
	script := `i=0; while [ $i -lt 2000 ]; do echo out$i; echo err$i >&2; i=$((i+1)); done`
	res, err := r.Run(context.Background(), "sh", []string{"-c", script})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outLines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	errLines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	if len(outLines) != 2000 || len(errLines) != 2000 {
		t.Fatalf("expected 2000 lines per stream, got %d/%d", len(outLines), len(errLines))
	}
	if outLines[1999] != "out1999" || errLines[1999] != "err1999" {
		t.Fatalf("unexpected last lines %q %q", outLines[1999], errLines[1999])
	}
	for _, line := range outLines {
		if !strings.HasPrefix(line, "out") {
			t.Fatalf("stderr leaked into stdout capture: %q", line)
		}
	}
	if stdout.String() != res.Stdout || stderr.String() != res.Stderr {
		t.Fatalf("streamed output differs from captured output")
	}
}

func TestRunnerMissingBinary(t *testing.T) {
	r := &Runner{}
	if _, err := r.Run(context.Background(), "agenteval-definitely-missing-binary", nil); err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if _, err := r.Run(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestSplit(t *testing.T) {
	got, err := Split(`python -m "evals.cli.oaieval" --debug`)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"python", "-m", "evals.cli.oaieval", "--debug"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Split mismatch (-want +got):\n%s", diff)
	}
	if _, err := Split(`"unterminated`); err == nil {
		t.Fatalf("expected quoting error")
	}
	if _, err := Split("   "); err == nil {
		t.Fatalf("expected error for blank command")
	}
}

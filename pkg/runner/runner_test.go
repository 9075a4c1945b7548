package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sameehj/agenteval/pkg/exec"
	"github.com/sameehj/agenteval/pkg/logging"
)

type fakeExec struct {
	calls [][]string
	code  int
	err   error
}

func (f *fakeExec) Run(_ context.Context, name string, args []string) (*exec.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return &exec.Result{Code: f.code}, nil
}

func writeSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "therapy_eval.yaml")
	content := "therapy_eval:\n  id: therapy_eval.dev.v0\n  metrics: [accuracy]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestValidateAPIKey(t *testing.T) {
	for _, key := range []string{"", "pk-123", "SK-123", " sk-123"} {
		if err := ValidateAPIKey(key); !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("key %q: expected ErrInvalidAPIKey, got %v", key, err)
		}
	}
	if err := ValidateAPIKey("sk-abc"); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
}

func TestRunInvalidKeyDoesNothing(t *testing.T) {
	fake := &fakeExec{}
	r := &Runner{Command: "oaieval", SpecFile: writeSpec(t), Model: "gpt-4", Exec: fake}
	for _, key := range []string{"", "not-a-key"} {
		code, err := r.Run(context.Background(), key)
		if !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
		}
		if code != 1 {
			t.Fatalf("expected exit code 1, got %d", code)
		}
	}
	if len(fake.calls) != 0 {
		t.Fatalf("harness should not start, got %v", fake.calls)
	}
}

func TestRunInvokesHarness(t *testing.T) {
	spec := writeSpec(t)
	fake := &fakeExec{code: 4}
	r := &Runner{Command: "python -m evals.cli.oaieval", SpecFile: spec, Model: "gpt-4", Exec: fake}
	code, err := r.Run(context.Background(), "sk-test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 4 {
		t.Fatalf("expected harness exit code 4, got %d", code)
	}
	want := [][]string{{"python", "-m", "evals.cli.oaieval", spec, "--model", "gpt-4"}}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMissingSpecStillStartsHarness(t *testing.T) {
	var logs bytes.Buffer
	spec := filepath.Join(t.TempDir(), "evals", "therapy_eval.yaml")
	fake := &fakeExec{code: 2}
	r := &Runner{
		Command:  "oaieval",
		SpecFile: spec,
		Model:    "gpt-4",
		Exec:     fake,
		Logger:   logging.NewWithWriter(&logs, "info", "text"),
	}
	code, err := r.Run(context.Background(), "sk-valid")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 2 {
		t.Fatalf("expected harness exit code 2, got %d", code)
	}
	want := [][]string{{"oaieval", spec, "--model", "gpt-4"}}
	if diff := cmp.Diff(want, fake.calls); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(logs.String(), "eval spec check failed") {
		t.Fatalf("expected spec warning in logs, got %q", logs.String())
	}
}

func TestRunHarnessStartFailure(t *testing.T) {
	fake := &fakeExec{err: errors.New("not found")}
	r := &Runner{Command: "oaieval", SpecFile: writeSpec(t), Model: "gpt-4", Exec: fake}
	code, err := r.Run(context.Background(), "sk-test")
	if err == nil || code != 1 {
		t.Fatalf("expected start failure with code 1, got %d %v", code, err)
	}
}

func TestRunWithRealProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	r := &Runner{
		Command:  `sh -c 'exit 7' harness`,
		SpecFile: writeSpec(t),
		Model:    "gpt-4",
		Exec:     &exec.Runner{},
	}
	code, err := r.Run(context.Background(), "sk-test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected exit code 7, got %d", code)
	}
}

func TestCheckSpecFile(t *testing.T) {
	if err := CheckSpecFile(writeSpec(t)); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
	if err := CheckSpecFile("therapy_eval"); err != nil {
		t.Fatalf("registry names should pass through, got %v", err)
	}
	if err := CheckSpecFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing spec")
	}
	bad := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(bad, []byte("a: [b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := CheckSpecFile(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestArgvValidation(t *testing.T) {
	if _, err := (&Runner{Command: "", SpecFile: "s", Model: "m"}).Argv(); err == nil {
		t.Fatalf("expected error for empty command")
	}
	if _, err := (&Runner{Command: "oaieval", Model: "m"}).Argv(); err == nil {
		t.Fatalf("expected error for empty spec")
	}
	if _, err := (&Runner{Command: "oaieval", SpecFile: "s"}).Argv(); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sameehj/agenteval/pkg/exec"
	"github.com/sameehj/agenteval/pkg/logging"
)

const APIKeyPrefix = "sk-"

var ErrInvalidAPIKey = errors.New("OPENAI_API_KEY not found or invalid")

// ValidateAPIKey rejects empty keys and keys without the "sk-" prefix.
func ValidateAPIKey(key string) error {
	if key == "" || !strings.HasPrefix(key, APIKeyPrefix) {
		return ErrInvalidAPIKey
	}
	return nil
}

// Executor runs the harness process.
type Executor interface {
	Run(ctx context.Context, name string, args []string) (*exec.Result, error)
}

// Runner launches the evaluation harness against one eval spec and model.
type Runner struct {
	Command  string
	SpecFile string
	Model    string
	Exec     Executor
	Logger   *slog.Logger
}

// Argv returns the full harness command line.
func (r *Runner) Argv() ([]string, error) {
	words, err := exec.Split(r.Command)
	if err != nil {
		return nil, err
	}
	if r.SpecFile == "" {
		return nil, errors.New("eval spec file is required")
	}
	if r.Model == "" {
		return nil, errors.New("eval model is required")
	}
	return append(words, r.SpecFile, "--model", r.Model), nil
}

// Run validates apiKey and, only if it is acceptable, starts the harness and
// returns its exit code. A bad spec file is logged and left to the harness.
func (r *Runner) Run(ctx context.Context, apiKey string) (int, error) {
	if err := ValidateAPIKey(apiKey); err != nil {
		return 1, err
	}
	argv, err := r.Argv()
	if err != nil {
		return 1, err
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	// The harness owns spec resolution and reports its own errors.
	if err := CheckSpecFile(r.SpecFile); err != nil {
		logger.Warn("eval spec check failed", "spec", r.SpecFile, "error", err)
	}
	executor := r.Exec
	if executor == nil {
		executor = &exec.Runner{Stdout: os.Stdout, Stderr: os.Stderr}
	}

	logger.Info("starting eval", "command", argv[0], "spec", r.SpecFile, "model", r.Model)
	res, err := executor.Run(ctx, argv[0], argv[1:])
	if err != nil {
		return 1, fmt.Errorf("start eval harness: %w", err)
	}
	logger.Info("eval finished", "exit_code", res.Code)
	return res.Code, nil
}

// CheckSpecFile verifies that a YAML eval spec exists and parses. Values
// without a YAML extension are treated as registry names and passed through.
func CheckSpecFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read eval spec: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse eval spec %s: %w", path, err)
	}
	return nil
}

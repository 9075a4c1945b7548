package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEvalCommand  = "oaieval"
	DefaultEvalSpecFile = "evals/therapy_eval.yaml"
	DefaultEvalModel    = "gpt-4"
	DefaultMockAddr     = "127.0.0.1:3000"
)

// Config defines runtime settings for agenteval.
type Config struct {
	LogLevel  string          `yaml:"logLevel"`
	LogFormat string          `yaml:"logFormat"`
	Agent     AgentConfig     `yaml:"agent"`
	Eval      EvalConfig      `yaml:"eval"`
	MockAgent MockAgentConfig `yaml:"mockAgent"`
}

// AgentConfig mirrors agentclient.Options. Empty values let the client apply
// its own defaults.
type AgentConfig struct {
	URL          string `yaml:"url"`
	UserID       string `yaml:"userId"`
	TranscriptID string `yaml:"transcriptId"`
}

type EvalConfig struct {
	Command  string `yaml:"command"`
	SpecFile string `yaml:"specFile"`
	Model    string `yaml:"model"`
}

type MockAgentConfig struct {
	Addr        string `yaml:"addr"`
	AnswersFile string `yaml:"answersFile"`
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Eval: EvalConfig{
			Command:  DefaultEvalCommand,
			SpecFile: DefaultEvalSpecFile,
			Model:    DefaultEvalModel,
		},
		MockAgent: MockAgentConfig{Addr: DefaultMockAddr},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	overrides := map[string]*string{
		"AGENTEVAL_LOG_LEVEL":    &cfg.LogLevel,
		"AGENTEVAL_LOG_FORMAT":   &cfg.LogFormat,
		"AGENT_URL":              &cfg.Agent.URL,
		"AGENT_USER_ID":          &cfg.Agent.UserID,
		"TRANSCRIPT_ID":          &cfg.Agent.TranscriptID,
		"AGENTEVAL_EVAL_COMMAND": &cfg.Eval.Command,
		"AGENTEVAL_EVAL_SPEC":    &cfg.Eval.SpecFile,
		"AGENTEVAL_EVAL_MODEL":   &cfg.Eval.Model,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if cfg.Eval.Command == "" {
		return nil, fmt.Errorf("eval command must not be empty")
	}
	return cfg, nil
}

// DefaultConfigPath returns the config file to load when --config is not given.
// It returns "" when the default file does not exist.
func DefaultConfigPath() string {
	if path := os.Getenv("AGENTEVAL_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".agenteval", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sameehj/agenteval/pkg/agentclient"
	"github.com/sameehj/agenteval/pkg/completion"
	"github.com/sameehj/agenteval/pkg/config"
	"github.com/sameehj/agenteval/pkg/env"
	"github.com/sameehj/agenteval/pkg/exec"
	"github.com/sameehj/agenteval/pkg/logging"
	"github.com/sameehj/agenteval/pkg/metrics"
	"github.com/sameehj/agenteval/pkg/mockagent"
	"github.com/sameehj/agenteval/pkg/runner"
	"github.com/sameehj/agenteval/pkg/version"
)

// exitError carries a process exit code through cobra without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type rootOptions struct {
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agenteval",
		Short:         "Run evaluation harnesses against an HTTP agent service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default: ~/.agenteval/config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text or json)")

	root.AddCommand(runCmd(opts))
	root.AddCommand(askCmd(opts))
	root.AddCommand(mockAgentCmd(opts))
	root.AddCommand(doctorCmd(opts))
	root.AddCommand(versionCmd())
	return root
}

// setup loads the dotenv file and configuration and builds the logger.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if o.envFile != "" {
		if _, err := env.Load(o.envFile); err != nil {
			return nil, nil, fmt.Errorf("load env file: %w", err)
		}
	}
	path := o.cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	return cfg, logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

func runCmd(opts *rootOptions) *cobra.Command {
	var spec, model, command string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate OPENAI_API_KEY and run the evaluation harness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			r := &runner.Runner{
				Command:  firstNonEmpty(command, cfg.Eval.Command),
				SpecFile: firstNonEmpty(spec, cfg.Eval.SpecFile),
				Model:    firstNonEmpty(model, cfg.Eval.Model),
				Exec:     &exec.Runner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
				Logger:   logger,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := r.Run(ctx, os.Getenv("OPENAI_API_KEY"))
			if errors.Is(err, runner.ErrInvalidAPIKey) {
				fmt.Fprintln(cmd.ErrOrStderr(), "OPENAI_API_KEY not found or invalid.")
				return &exitError{code: 1}
			}
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "spec", "", "eval spec file (default evals/therapy_eval.yaml)")
	cmd.Flags().StringVar(&model, "model", "", "model name passed to the harness (default gpt-4)")
	cmd.Flags().StringVar(&command, "command", "", "harness command line (default oaieval)")
	return cmd
}

type agentFlags struct {
	url          string
	userID       string
	transcriptID string
}

func (f *agentFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.url, "url", "", "agent endpoint (env AGENT_URL)")
	fs.StringVar(&f.userID, "user-id", "", "user identifier (env AGENT_USER_ID)")
	fs.StringVar(&f.transcriptID, "transcript-id", "", "transcript identifier (env TRANSCRIPT_ID)")
}

func (f *agentFlags) options(cfg *config.Config) agentclient.Options {
	return agentclient.Options{
		URL:          firstNonEmpty(f.url, cfg.Agent.URL),
		UserID:       firstNonEmpty(f.userID, cfg.Agent.UserID),
		TranscriptID: firstNonEmpty(f.transcriptID, cfg.Agent.TranscriptID),
	}
}

func askCmd(opts *rootOptions) *cobra.Command {
	var flags agentFlags
	var temperature float64
	var textfile string
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Send one question to the agent service and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			prom := metrics.NewAgentProm("agenteval", prometheus.NewRegistry())
			client := agentclient.New(flags.options(cfg),
				agentclient.WithLogger(logger),
				agentclient.WithMetrics(prom),
			)

			var callOpts []completion.Option
			if cmd.Flags().Changed("temperature") {
				callOpts = append(callOpts, completion.WithTemperature(temperature))
			}
			answer, err := client.Complete(cmd.Context(), strings.Join(args, " "), callOpts...)
			if textfile != "" {
				if werr := prom.WriteTextfile(textfile); werr != nil {
					logger.Warn("write metrics textfile", "path", textfile, "error", werr)
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "accepted for harness parity; the agent ignores it")
	cmd.Flags().StringVar(&textfile, "metrics-textfile", "", "write call metrics to this file in Prometheus text format")
	return cmd
}

func mockAgentCmd(opts *rootOptions) *cobra.Command {
	var addr, answersFile string
	cmd := &cobra.Command{
		Use:   "mock-agent",
		Short: "Serve a canned agent service for local evaluation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			answers, err := mockagent.LoadAnswers(firstNonEmpty(answersFile, cfg.MockAgent.AnswersFile))
			if err != nil {
				return err
			}
			gin.SetMode(gin.ReleaseMode)
			srv := mockagent.New(answers,
				mockagent.WithLogger(logger),
				mockagent.WithMetrics(metrics.NewServerProm("agenteval", nil)),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			listen := firstNonEmpty(addr, cfg.MockAgent.Addr)
			logger.Info("mock agent listening", "addr", listen, "route", mockagent.QuestionRoute)
			return srv.ListenAndServe(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:3000)")
	cmd.Flags().StringVar(&answersFile, "answers", "", "YAML file with canned answers and transcripts")
	return cmd
}

func doctorCmd(opts *rootOptions) *cobra.Command {
	var flags agentFlags
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Show resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			client := agentclient.New(flags.options(cfg))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent URL: %s\nUser ID: %s\nTranscript ID: %s\n", client.URL(), client.UserID(), client.TranscriptID())

			r := &runner.Runner{Command: cfg.Eval.Command, SpecFile: cfg.Eval.SpecFile, Model: cfg.Eval.Model}
			if argv, err := r.Argv(); err != nil {
				fmt.Fprintf(out, "Harness: invalid (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Harness: %s\n", strings.Join(argv, " "))
			}
			if err := runner.CheckSpecFile(cfg.Eval.SpecFile); err != nil {
				fmt.Fprintf(out, "Spec file: %v\n", err)
			} else {
				fmt.Fprintf(out, "Spec file: ok\n")
			}

			key := os.Getenv("OPENAI_API_KEY")
			if err := runner.ValidateAPIKey(key); err != nil {
				fmt.Fprintf(out, "OPENAI_API_KEY: %v\n", err)
			} else {
				fmt.Fprintf(out, "OPENAI_API_KEY: %s\n", maskKey(key))
			}
			return nil
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func maskKey(key string) string {
	if len(key) <= 7 {
		return runner.APIKeyPrefix + "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
)

// waitDelay bounds how long Run waits for orphaned children holding the output pipes.
const waitDelay = 500 * time.Millisecond

// Result holds the exit code and each stream capped at MaxOutput bytes.
type Result struct {
	Code      int
	Stdout    string
	Stderr    string
	Truncated bool
}

// Runner starts a subprocess, streams its output and reports the exit code.
// A non-zero exit is a Result, not an error.
type Runner struct {
	Timeout   time.Duration
	MaxOutput int
	Stdout    io.Writer
	Stderr    io.Writer
	Env       []string
	Dir       string
}

func (r *Runner) Run(ctx context.Context, name string, args []string) (*Result, error) {
	if name == "" {
		return nil, errors.New("command is required")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	command := exec.CommandContext(ctx, name, args...)
	command.Dir = r.Dir
	command.WaitDelay = waitDelay
	if len(r.Env) > 0 {
		command.Env = append(os.Environ(), r.Env...)
	}

	// os/exec copies each stream on its own goroutine, so each gets its own buffer.
	stdoutBuf := &limitedBuffer{limit: r.MaxOutput}
	stderrBuf := &limitedBuffer{limit: r.MaxOutput}
	command.Stdout = io.MultiWriter(orDiscard(r.Stdout), stdoutBuf)
	command.Stderr = io.MultiWriter(orDiscard(r.Stderr), stderrBuf)

	err := command.Run()
	res := &Result{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdoutBuf.truncated || stderrBuf.truncated,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", name, ctx.Err())
		}
		res.Code = exitErr.ExitCode()
	}
	return res, nil
}

// Split breaks a command line into argv using POSIX shell quoting rules.
func Split(command string) ([]string, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(words) == 0 {
		return nil, errors.New("command is required")
	}
	return words, nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		_, _ = l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

var _ io.Writer = (*limitedBuffer)(nil)

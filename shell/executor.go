// Package shell executes the loop's tool commands on the local machine and
// classifies their outcomes.
//
// The executor is one of the loop's two external collaborators (the other
// is the model gateway). It runs one shell command to completion per call;
// cancellation is cooperative, so an in-flight command finishes before the
// loop observes the abort.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Result holds the outcome of a command execution.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Success reports whether the command exited zero without timing out.
func (r Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Executor runs one command text in a working directory.
type Executor interface {
	Execute(ctx context.Context, command, cwd string) (*Result, error)
}

// sensitiveEnvSuffixes are excluded from the child environment.
var sensitiveEnvSuffixes = []string{
	"_API_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_CREDENTIAL",
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// LocalExecutor runs commands through the local shell.
type LocalExecutor struct {
	workDir string
	timeout time.Duration
}

// NewLocalExecutor creates an executor rooted at workDir. timeout bounds
// each command; zero means no limit.
func NewLocalExecutor(workDir string, timeout time.Duration) *LocalExecutor {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	return &LocalExecutor{workDir: workDir, timeout: timeout}
}

// Execute runs the command text via the shell and waits for completion.
// A relative cwd is resolved against the executor's root.
func (e *LocalExecutor) Execute(ctx context.Context, command, cwd string) (*Result, error) {
	switch {
	case cwd == "":
		cwd = e.workDir
	case !filepath.IsAbs(cwd):
		cwd = filepath.Join(e.workDir, cwd)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = cwd
	cmd.Env = filterEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("shell: %w", err)
		}
	}

	return result, nil
}

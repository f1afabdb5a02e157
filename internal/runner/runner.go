// Package runner spawns shell commands and streams their output in chunks.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/zjrosen/procview/internal/log"
)

// DefaultChunkSize is the read buffer size; each read becomes one chunk.
const DefaultChunkSize = 32 * 1024

// ErrEmptyCommand is returned when asked to run a blank command.
var ErrEmptyCommand = errors.New("empty command")

// Handle is a running process seen through its output stream.
type Handle interface {
	// Chunks delivers output in the order the process wrote it. The channel is
	// closed when output ends; after Disconnect nothing more is delivered.
	Chunks() <-chan string
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode returns the exit code, or -1 while running.
	ExitCode() int
	// Status returns the current process status.
	Status() Status
	// PID returns the OS process ID, or -1 if unavailable.
	PID() int
	// Disconnect stops delivering output. The process keeps running; its
	// remaining output is drained and discarded.
	Disconnect() error
}

// Runner starts shell commands.
type Runner interface {
	Run(ctx context.Context, command string) (Handle, error)
}

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute binaries.
type CommandFactoryFunc func(name string, args ...string) *exec.Cmd

// Option configures a ShellRunner.
type Option func(*ShellRunner)

// WithShell sets the shell used to interpret commands (invoked as "<shell> -c <command>").
func WithShell(shell string) Option {
	return func(r *ShellRunner) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// WithWorkDir sets the working directory. Empty means the current directory.
func WithWorkDir(dir string) Option {
	return func(r *ShellRunner) {
		r.workDir = dir
	}
}

// WithEnv appends "KEY=VALUE" pairs to os.Environ().
func WithEnv(env []string) Option {
	return func(r *ShellRunner) {
		r.env = env
	}
}

// WithStderrCapture interleaves stderr into the chunk stream.
func WithStderrCapture(capture bool) Option {
	return func(r *ShellRunner) {
		r.captureStderr = capture
	}
}

// WithChunkSize sets the maximum size of one chunk.
func WithChunkSize(n int) Option {
	return func(r *ShellRunner) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithCommandFactory sets a custom command factory for testing.
func WithCommandFactory(fn CommandFactoryFunc) Option {
	return func(r *ShellRunner) {
		r.commandFactory = fn
	}
}

// ShellRunner runs commands through a shell.
type ShellRunner struct {
	shell          string
	workDir        string
	env            []string
	captureStderr  bool
	chunkSize      int
	commandFactory CommandFactoryFunc
}

// NewShellRunner creates a runner using DefaultShell unless overridden.
func NewShellRunner(opts ...Option) *ShellRunner {
	r := &ShellRunner{
		shell:     DefaultShell(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultShell returns $SHELL, falling back to /bin/sh.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Shell returns the configured shell.
func (r *ShellRunner) Shell() string {
	return r.shell
}

// Run starts command and returns immediately; output arrives on the handle.
// ctx only guards the start: cancelling it later does not affect the process.
func (r *ShellRunner) Run(ctx context.Context, command string) (Handle, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	var cmd *exec.Cmd
	if r.commandFactory != nil {
		cmd = r.commandFactory(r.shell, "-c", command)
	} else {
		// #nosec G204 -- running the user's command is the point
		cmd = exec.Command(r.shell, "-c", command)
	}
	cmd.Dir = r.workDir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	// One pipe we own: exec does not copy for us, so Wait never blocks on
	// a reader we stopped caring about.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("runner: failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	if r.captureStderr {
		cmd.Stderr = pw
	}

	log.Debug(log.CatRunner, "Spawning process", "shell", r.shell, "command", command, "workDir", r.workDir)

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("runner: failed to start %q: %w", command, err)
	}
	_ = pw.Close()

	log.Debug(log.CatRunner, "Process started", "pid", cmd.Process.Pid)

	p := newProcess(cmd, pr, r.chunkSize)
	p.start()
	return p, nil
}

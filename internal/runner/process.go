package runner

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/zjrosen/procview/internal/log"
)

const chunkBacklog = 64

// Process is the Handle returned by ShellRunner.
type Process struct {
	cmd       *exec.Cmd
	out       *os.File
	chunkSize int

	chunks     chan string
	done       chan struct{}
	detach     chan struct{}
	detachOnce sync.Once

	mu       sync.RWMutex
	status   Status
	exitCode int
}

func newProcess(cmd *exec.Cmd, out *os.File, chunkSize int) *Process {
	return &Process{
		cmd:       cmd,
		out:       out,
		chunkSize: chunkSize,
		chunks:    make(chan string, chunkBacklog),
		done:      make(chan struct{}),
		detach:    make(chan struct{}),
		status:    StatusRunning,
		exitCode:  -1,
	}
}

func (p *Process) start() {
	log.SafeGo("runner.read", p.readOutput)
	log.SafeGo("runner.wait", p.waitForExit)
}

// Chunks implements Handle.
func (p *Process) Chunks() <-chan string { return p.chunks }

// Done implements Handle.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode implements Handle.
func (p *Process) ExitCode() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitCode
}

// Status implements Handle.
func (p *Process) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// PID implements Handle.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Disconnect implements Handle. It never signals the process.
func (p *Process) Disconnect() error {
	p.detachOnce.Do(func() {
		close(p.detach)
		log.Debug(log.CatRunner, "disconnected from process", "pid", p.PID())
	})
	return nil
}

func (p *Process) disconnected() bool {
	select {
	case <-p.detach:
		return true
	default:
		return false
	}
}

// readOutput forwards each read as one chunk. After Disconnect it keeps
// draining so the process never blocks on a full pipe.
func (p *Process) readOutput() {
	defer close(p.chunks)
	defer func() { _ = p.out.Close() }()

	buf := make([]byte, p.chunkSize)
	for {
		n, err := p.out.Read(buf)
		if n > 0 && !p.disconnected() {
			select {
			case p.chunks <- string(buf[:n]):
			case <-p.detach:
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug(log.CatRunner, "output read error", "pid", p.PID(), "error", err)
			}
			return
		}
	}
}

func (p *Process) waitForExit() {
	defer close(p.done)

	err := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.status = StatusExited
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.status = StatusExited
		p.exitCode = exitErr.ExitCode()
	default:
		p.status = StatusFailed
		log.Debug(log.CatRunner, "wait failed", "pid", p.PID(), "error", err)
	}
	log.Debug(log.CatRunner, "process exited", "pid", p.PID(), "status", p.status, "exitCode", p.exitCode)
}

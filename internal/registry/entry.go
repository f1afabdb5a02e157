package registry

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/procview/internal/document"
)

// ProcessID identifies a tracked process for the lifetime of a session.
// IDs are assigned monotonically starting at 1 and never reused.
type ProcessID uint64

// String returns the decimal form used as the document authority.
func (id ProcessID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseProcessID parses the decimal form produced by String.
func ParseProcessID(s string) (ProcessID, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return ProcessID(n), true
}

// Handle is the running-process handle owned by an entry.
type Handle interface {
	// Disconnect stops listening to the process without terminating it.
	Disconnect() error
	// PID returns the OS process ID, or -1 if unavailable.
	PID() int
}

// OutputEvent is one chunk of output for a process.
type OutputEvent struct {
	ProcessID ProcessID
	Chunk     string
}

// Entry binds a spawned process to its accumulated output and document.
type Entry struct {
	ID       ProcessID
	Command  string
	Document document.Identity
	Created  time.Time

	mu       sync.RWMutex
	handle   Handle
	output   strings.Builder
	chunks   int
	detached time.Time
	exited   bool
	exitCode int
}

// NewEntry creates an entry for id. handle may be nil when spawning failed.
func NewEntry(id ProcessID, command string, handle Handle) *Entry {
	return &Entry{
		ID:       id,
		Command:  command,
		Document: document.New(id.String(), command),
		Created:  time.Now(),
		handle:   handle,
	}
}

// Output returns the accumulated output.
func (e *Entry) Output() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.output.String()
}

// Chunks returns how many chunks were appended.
func (e *Entry) Chunks() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chunks
}

// appendChunk joins chunk onto the buffer with a newline separator.
// The first chunk is written without a leading separator.
func (e *Entry) appendChunk(chunk string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.chunks > 0 {
		e.output.WriteByte('\n')
	}
	e.output.WriteString(chunk)
	e.chunks++
}

// Handle returns the process handle, or nil once released.
func (e *Entry) Handle() Handle {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handle
}

// Release disconnects and drops the process handle. The entry and its output stay.
func (e *Entry) Release() error {
	e.mu.Lock()
	h := e.handle
	e.handle = nil
	if e.detached.IsZero() {
		e.detached = time.Now()
	}
	e.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Disconnect()
}

// Detached reports whether the entry's handle was released, and when.
func (e *Entry) Detached() (time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.detached, !e.detached.IsZero()
}

// MarkExited records the process exit code.
func (e *Entry) MarkExited(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exited = true
	e.exitCode = code
}

// ExitCode returns the recorded exit code, if the process exited.
func (e *Entry) ExitCode() (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.exitCode, e.exited
}

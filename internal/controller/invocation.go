package controller

import (
	"sync"

	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/registry"
	"github.com/zjrosen/procview/internal/runner"
)

// Invocation is one run of one command.
type Invocation struct {
	ID       registry.ProcessID
	Command  string
	Document document.Identity

	entry  *registry.Entry
	handle runner.Handle
	stop   chan struct{}
	done   chan struct{}

	mu    sync.RWMutex
	state State
	err   error
}

// State returns the current lifecycle state.
func (i *Invocation) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Err returns the spawn error of a failed invocation.
func (i *Invocation) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// Entry returns the registry entry backing this invocation.
func (i *Invocation) Entry() *registry.Entry {
	return i.entry
}

// Done is closed when the output pump stops. It is nil for failed invocations.
func (i *Invocation) Done() <-chan struct{} {
	return i.done
}

func (i *Invocation) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

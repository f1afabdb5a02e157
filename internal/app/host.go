package app

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/procview/internal/document"
)

// ErrNoProgram is returned when the host has no running program to show documents in.
var ErrNoProgram = errors.New("no program attached")

// Sender delivers messages into a running Bubble Tea program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// OpenDocumentMsg asks the model to materialize a document.
type OpenDocumentMsg struct{ Doc document.Identity }

// ShowDocumentMsg asks the model to make a document the active tab.
type ShowDocumentMsg struct{ Doc document.Identity }

// ResetSelectionMsg asks the model to scroll a document back to its start.
type ResetSelectionMsg struct{ Doc document.Identity }

// Host is the document system the controller talks to. It forwards requests
// into the program loop as messages.
type Host struct {
	mu     sync.RWMutex
	sender Sender
}

// NewHost creates a host with no program attached.
func NewHost() *Host {
	return &Host{}
}

// Attach connects the host to a program.
func (h *Host) Attach(s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender = s
}

func (h *Host) OpenDocument(ctx context.Context, doc document.Identity) error {
	return h.send(ctx, OpenDocumentMsg{Doc: doc})
}

func (h *Host) ShowDocument(ctx context.Context, doc document.Identity) error {
	return h.send(ctx, ShowDocumentMsg{Doc: doc})
}

func (h *Host) ResetSelection(doc document.Identity) {
	_ = h.send(context.Background(), ResetSelectionMsg{Doc: doc})
}

func (h *Host) send(ctx context.Context, msg tea.Msg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	s := h.sender
	h.mu.RUnlock()
	if s == nil {
		return ErrNoProgram
	}
	s.Send(msg)
	return nil
}

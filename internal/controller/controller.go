// Package controller drives the lifecycle of command invocations: spawning
// the process, registering it, pumping its output onto the bus, opening its
// document, and detaching when the document is closed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/registry"
	"github.com/zjrosen/procview/internal/runner"
	"github.com/zjrosen/procview/internal/tracing"
)

// ErrCancelled is returned by Run when the command is empty or the prompt was dismissed.
var ErrCancelled = errors.New("command cancelled")

// Host is the document system the controller opens documents in.
type Host interface {
	// OpenDocument materializes doc, pulling its current content.
	OpenDocument(ctx context.Context, doc document.Identity) error
	// ShowDocument brings doc into view.
	ShowDocument(ctx context.Context, doc document.Identity) error
	// ResetSelection moves the cursor of doc's view to the start.
	ResetSelection(doc document.Identity)
}

// Notifier receives lifecycle signals for documents.
type Notifier interface {
	Notify(eventType pubsub.EventType, doc document.Identity)
}

// DetachHook is called after an invocation detaches.
type DetachHook func(id registry.ProcessID)

// Option configures a Controller.
type Option func(*Controller)

// WithHost sets the document host.
func WithHost(h Host) Option {
	return func(c *Controller) { c.host = h }
}

// WithNotifier sets where exit and detach signals go.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithTracer sets the tracer used for spawn and detach spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithDetachHook registers fn to run after every detach.
func WithDetachHook(fn DetachHook) Option {
	return func(c *Controller) { c.onDetach = fn }
}

// Controller spawns processes for command strings and tracks their invocations.
type Controller struct {
	registry *registry.Registry
	bus      *pubsub.Bus[registry.OutputEvent]
	runner   runner.Runner
	host     Host
	notifier Notifier
	tracer   trace.Tracer
	onDetach DetachHook

	mu          sync.RWMutex
	invocations map[registry.ProcessID]*Invocation
}

// New creates a controller.
func New(reg *registry.Registry, bus *pubsub.Bus[registry.OutputEvent], r runner.Runner, opts ...Option) *Controller {
	c := &Controller{
		registry:    reg,
		bus:         bus,
		runner:      r,
		tracer:      noop.NewTracerProvider().Tracer("noop"),
		invocations: make(map[registry.ProcessID]*Invocation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHost replaces the document host. Used when the host is built after the controller.
func (c *Controller) SetHost(h Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = h
}

// Run spawns command and opens its document.
//
// An empty command returns ErrCancelled and creates nothing. A spawn failure
// is not returned: the invocation ends in StateFailed and its document shows
// the error. The returned error only reports host failures, in which case the
// process keeps running.
func (c *Controller) Run(ctx context.Context, command string) (*Invocation, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrCancelled
	}

	ctx, span := c.tracer.Start(ctx, tracing.SpanSpawn)
	defer span.End()

	inv := &Invocation{Command: command, state: StateSpawning}
	inv.ID = c.registry.NextID()
	inv.Document = document.New(inv.ID.String(), command)
	span.SetAttributes(
		attribute.String(tracing.AttrProcessID, inv.ID.String()),
		attribute.String(tracing.AttrCommand, command),
	)

	handle, spawnErr := c.runner.Run(ctx, command)

	var regHandle registry.Handle
	if handle != nil {
		regHandle = handle
	}
	entry := registry.NewEntry(inv.ID, command, regHandle)
	if err := c.registry.Register(entry); err != nil {
		panic(fmt.Sprintf("controller: process id invariant violated: %v", err))
	}
	inv.entry = entry

	c.mu.Lock()
	c.invocations[inv.ID] = inv
	host := c.host
	c.mu.Unlock()

	if spawnErr != nil {
		c.fail(inv, spawnErr)
		span.RecordError(spawnErr)
		span.SetStatus(codes.Error, "spawn failed")
	} else {
		inv.handle = handle
		inv.stop = make(chan struct{})
		inv.done = make(chan struct{})
		inv.setState(StateRunning)
		span.SetAttributes(attribute.Int(tracing.AttrPID, handle.PID()))
		log.Info(log.CatController, "process running", "id", inv.ID, "pid", handle.PID(), "command", command)
		log.SafeGo("controller.pump["+inv.ID.String()+"]", func() { c.pump(inv) })
	}

	if host == nil {
		return inv, nil
	}
	if err := host.OpenDocument(ctx, inv.Document); err != nil {
		span.RecordError(err)
		return inv, fmt.Errorf("opening document %s: %w", inv.Document, err)
	}
	if err := host.ShowDocument(ctx, inv.Document); err != nil {
		span.RecordError(err)
		return inv, fmt.Errorf("showing document %s: %w", inv.Document, err)
	}
	host.ResetSelection(inv.Document)
	return inv, nil
}

// fail records a spawn error into the document buffer and ends the invocation.
func (c *Controller) fail(inv *Invocation, err error) {
	log.ErrorErr(log.CatController, "spawn failed", err, "id", inv.ID, "command", inv.Command)
	inv.mu.Lock()
	inv.state = StateFailed
	inv.err = err
	inv.mu.Unlock()

	c.bus.Publish(registry.OutputEvent{ProcessID: inv.ID, Chunk: "error: " + err.Error()})
	_ = inv.entry.Release()
	if c.onDetach != nil {
		c.onDetach(inv.ID)
	}
}

// HandleDocumentClosed detaches the invocation behind doc. Documents of
// other schemes, unknown IDs and already-detached invocations are ignored.
func (c *Controller) HandleDocumentClosed(doc document.Identity) {
	if !doc.IsProcess() {
		return
	}
	id, ok := registry.ParseProcessID(doc.Authority)
	if !ok {
		return
	}
	c.Detach(id)
}

// Detach stops delivering output for id and disconnects its process
// without killing it. It reports whether a running invocation was detached.
func (c *Controller) Detach(id registry.ProcessID) bool {
	inv, ok := c.Invocation(id)
	if !ok {
		return false
	}

	_, span := c.tracer.Start(context.Background(), tracing.SpanDetach,
		trace.WithAttributes(attribute.String(tracing.AttrProcessID, id.String())))
	defer span.End()

	inv.mu.Lock()
	if inv.state != StateRunning {
		inv.mu.Unlock()
		return false
	}
	inv.state = StateDetached
	close(inv.stop)
	inv.mu.Unlock()

	if err := inv.entry.Release(); err != nil {
		span.RecordError(err)
		log.ErrorErr(log.CatController, "disconnect failed", err, "id", id)
	}
	log.Info(log.CatController, "process detached", "id", id)

	if c.notifier != nil {
		c.notifier.Notify(pubsub.DetachedEvent, inv.Document)
	}
	if c.onDetach != nil {
		c.onDetach(id)
	}
	return true
}

// Invocation returns the invocation for id.
func (c *Controller) Invocation(id registry.ProcessID) (*Invocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inv, ok := c.invocations[id]
	return inv, ok
}

// Invocations returns all invocations ordered by ID.
func (c *Controller) Invocations() []*Invocation {
	c.mu.RLock()
	out := make([]*Invocation, 0, len(c.invocations))
	for _, inv := range c.invocations {
		out = append(out, inv)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forget drops the invocation record for id once it is terminal.
func (c *Controller) Forget(id registry.ProcessID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inv, ok := c.invocations[id]; ok && inv.State().IsTerminal() {
		delete(c.invocations, id)
	}
}

// Close detaches every running invocation.
func (c *Controller) Close() {
	for _, inv := range c.Invocations() {
		c.Detach(inv.ID)
	}
}

// pump forwards chunks onto the bus until the invocation detaches or the
// output ends. One pump per process keeps delivery FIFO.
func (c *Controller) pump(inv *Invocation) {
	defer close(inv.done)

	chunks := inv.handle.Chunks()
	for {
		select {
		case <-inv.stop:
			return
		case chunk, ok := <-chunks:
			if !ok {
				c.awaitExit(inv)
				return
			}
			c.deliver(inv, chunk)
		}
	}
}

func (c *Controller) deliver(inv *Invocation, chunk string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.state != StateRunning {
		return
	}
	c.bus.Publish(registry.OutputEvent{ProcessID: inv.ID, Chunk: chunk})
}

func (c *Controller) awaitExit(inv *Invocation) {
	select {
	case <-inv.stop:
		return
	case <-inv.handle.Done():
	}

	code := inv.handle.ExitCode()
	inv.entry.MarkExited(code)
	log.Info(log.CatController, "process exited", "id", inv.ID, "exitCode", code)
	if c.notifier != nil {
		c.notifier.Notify(pubsub.ExitedEvent, inv.Document)
	}
}

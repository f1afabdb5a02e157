package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/procview/internal/document"
	"github.com/zjrosen/procview/internal/provider"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/registry"
	"github.com/zjrosen/procview/internal/runner"
)

type fakeHandle struct {
	chunks      chan string
	done        chan struct{}
	exitCode    atomic.Int64
	disconnects atomic.Int32
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{
		chunks: make(chan string, 16),
		done:   make(chan struct{}),
	}
	h.exitCode.Store(-1)
	return h
}

func (h *fakeHandle) Chunks() <-chan string { return h.chunks }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) ExitCode() int         { return int(h.exitCode.Load()) }
func (h *fakeHandle) PID() int              { return 777 }
func (h *fakeHandle) Disconnect() error     { h.disconnects.Add(1); return nil }

func (h *fakeHandle) Status() runner.Status {
	select {
	case <-h.done:
		return runner.StatusExited
	default:
		return runner.StatusRunning
	}
}

func (h *fakeHandle) exit(code int) {
	h.exitCode.Store(int64(code))
	close(h.chunks)
	close(h.done)
}

type fakeRunner struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	commands []string
	err      error
}

func (r *fakeRunner) Run(_ context.Context, command string) (runner.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	if r.err != nil {
		return nil, r.err
	}
	h := newFakeHandle()
	r.handles = append(r.handles, h)
	return h, nil
}

func (r *fakeRunner) last() *fakeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[len(r.handles)-1]
}

type fakeHost struct {
	mu      sync.Mutex
	calls   []string
	content func(document.Identity) string
	opened  map[string]string
	openErr error
}

func (h *fakeHost) OpenDocument(_ context.Context, doc document.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openErr != nil {
		return h.openErr
	}
	h.calls = append(h.calls, "open:"+doc.String())
	if h.opened == nil {
		h.opened = make(map[string]string)
	}
	if h.content != nil {
		h.opened[doc.String()] = h.content(doc)
	}
	return nil
}

func (h *fakeHost) ShowDocument(_ context.Context, doc document.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "show:"+doc.String())
	return nil
}

func (h *fakeHost) ResetSelection(doc document.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "reset:"+doc.String())
}

func (h *fakeHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []pubsub.EventType
}

func (n *recordingNotifier) Notify(eventType pubsub.EventType, _ document.Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func (n *recordingNotifier) Events() []pubsub.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]pubsub.EventType(nil), n.events...)
}

type harness struct {
	reg      *registry.Registry
	prov     *provider.Provider
	runner   *fakeRunner
	host     *fakeHost
	notifier *recordingNotifier
	ctrl     *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	reg := registry.New()
	bus := pubsub.NewBus[registry.OutputEvent]("output")
	prov := provider.New(reg, bus)
	t.Cleanup(prov.Close)

	h := &harness{
		reg:      reg,
		prov:     prov,
		runner:   &fakeRunner{},
		host:     &fakeHost{content: prov.ProvideContent},
		notifier: &recordingNotifier{},
	}
	opts = append([]Option{WithHost(h.host), WithNotifier(h.notifier)}, opts...)
	h.ctrl = New(reg, bus, h.runner, opts...)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) waitForOutput(t *testing.T, inv *Invocation, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.prov.ProvideContent(inv.Document) == want
	}, time.Second, 5*time.Millisecond, "output never became %q", want)
}

func TestRun_EmptyCommandIsCancelled(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"", "   ", "\t\n"} {
		inv, err := h.ctrl.Run(context.Background(), cmd)
		require.ErrorIs(t, err, ErrCancelled)
		require.Nil(t, inv)
	}

	require.Zero(t, h.reg.Len())
	require.Empty(t, h.runner.commands)
	require.Empty(t, h.host.Calls())
}

func TestRun_AssignsSequentialIDs(t *testing.T) {
	h := newHarness(t)

	first, err := h.ctrl.Run(context.Background(), "tail -f a.log")
	require.NoError(t, err)
	second, err := h.ctrl.Run(context.Background(), "tail -f b.log")
	require.NoError(t, err)

	require.Equal(t, "1", first.ID.String())
	require.Equal(t, "2", second.ID.String())
	require.Equal(t, "process://1", first.Document.String())
	require.Equal(t, "tail -f b.log", second.Document.Label)
	require.Equal(t, 2, h.reg.Len())
}

func TestRun_OpensShowsAndResetsDocument(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "echo hi")
	require.NoError(t, err)
	require.Equal(t, StateRunning, inv.State())

	require.Equal(t, []string{
		"open:process://1",
		"show:process://1",
		"reset:process://1",
	}, h.host.Calls())
}

func TestRun_StreamsOutputIntoDocument(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "echo hi")
	require.NoError(t, err)

	fh := h.runner.last()
	fh.chunks <- "hi\n"
	h.waitForOutput(t, inv, "hi\n")

	fh.chunks <- "there"
	h.waitForOutput(t, inv, "hi\n\nthere")
}

func TestRun_ChangeSignalPerChunk(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := h.prov.Subscribe(ctx)

	inv, err := h.ctrl.Run(context.Background(), "echo hi")
	require.NoError(t, err)
	h.runner.last().chunks <- "hi\n"

	select {
	case ev := <-changes:
		require.Equal(t, pubsub.ChangedEvent, ev.Type)
		require.True(t, ev.Payload.Equal(inv.Document))
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}

func TestRun_ProcessesAreIsolated(t *testing.T) {
	h := newHarness(t)

	a, err := h.ctrl.Run(context.Background(), "a")
	require.NoError(t, err)
	ha := h.runner.last()
	b, err := h.ctrl.Run(context.Background(), "b")
	require.NoError(t, err)
	hb := h.runner.last()

	ha.chunks <- "from a"
	hb.chunks <- "from b"

	h.waitForOutput(t, a, "from a")
	h.waitForOutput(t, b, "from b")
}

func TestRun_SpawnFailureShowsErrorInDocument(t *testing.T) {
	h := newHarness(t)
	h.runner.err = errors.New("no such shell")

	var detached []registry.ProcessID
	h.ctrl.onDetach = func(id registry.ProcessID) { detached = append(detached, id) }

	inv, err := h.ctrl.Run(context.Background(), "echo hi")
	require.NoError(t, err)
	require.Equal(t, StateFailed, inv.State())
	require.EqualError(t, inv.Err(), "no such shell")
	require.Nil(t, inv.Done())

	require.Equal(t, "error: no such shell", h.prov.ProvideContent(inv.Document))
	require.Equal(t, "error: no such shell", h.host.opened[inv.Document.String()])
	require.Contains(t, h.host.Calls(), "open:process://1")

	_, isDetached := inv.Entry().Detached()
	require.True(t, isDetached)
	require.Equal(t, []registry.ProcessID{inv.ID}, detached)
}

func TestRun_HostErrorKeepsProcess(t *testing.T) {
	h := newHarness(t)
	h.host.openErr = errors.New("editor gone")

	inv, err := h.ctrl.Run(context.Background(), "echo hi")
	require.Error(t, err)
	require.ErrorIs(t, err, h.host.openErr)
	require.NotNil(t, inv)
	require.Equal(t, StateRunning, inv.State())

	h.runner.last().chunks <- "still here"
	h.waitForOutput(t, inv, "still here")
}

func TestRun_WithoutHost(t *testing.T) {
	reg := registry.New()
	bus := pubsub.NewBus[registry.OutputEvent]("output")
	ctrl := New(reg, bus, &fakeRunner{})
	t.Cleanup(ctrl.Close)

	inv, err := ctrl.Run(context.Background(), "echo hi")
	require.NoError(t, err)
	require.Equal(t, StateRunning, inv.State())
}

func TestHandleDocumentClosed_DetachesWithoutKilling(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "tail -f x")
	require.NoError(t, err)
	fh := h.runner.last()
	fh.chunks <- "before"
	h.waitForOutput(t, inv, "before")

	h.ctrl.HandleDocumentClosed(inv.Document)

	require.Equal(t, StateDetached, inv.State())
	require.Equal(t, int32(1), fh.disconnects.Load())
	select {
	case <-inv.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}

	fh.chunks <- "after"
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, "before", h.prov.ProvideContent(inv.Document))
	require.Equal(t, runner.StatusRunning, fh.Status())
	require.Contains(t, h.notifier.Events(), pubsub.DetachedEvent)
}

func TestHandleDocumentClosed_IgnoresOtherDocuments(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "tail -f x")
	require.NoError(t, err)

	h.ctrl.HandleDocumentClosed(document.Identity{Scheme: "file", Authority: "1"})
	h.ctrl.HandleDocumentClosed(document.New("99", "ghost"))
	h.ctrl.HandleDocumentClosed(document.Identity{Scheme: document.Scheme, Authority: "nope"})

	require.Equal(t, StateRunning, inv.State())
	require.Zero(t, h.runner.last().disconnects.Load())
}

func TestDetach_IsIdempotent(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "tail -f x")
	require.NoError(t, err)

	require.True(t, h.ctrl.Detach(inv.ID))
	require.False(t, h.ctrl.Detach(inv.ID))
	require.False(t, h.ctrl.Detach(registry.ProcessID(42)))
	require.Equal(t, int32(1), h.runner.last().disconnects.Load())
}

func TestDetach_CallsHook(t *testing.T) {
	var got atomic.Uint64
	h := newHarness(t, WithDetachHook(func(id registry.ProcessID) { got.Store(uint64(id)) }))

	inv, err := h.ctrl.Run(context.Background(), "tail -f x")
	require.NoError(t, err)
	h.ctrl.Detach(inv.ID)

	require.Equal(t, uint64(inv.ID), got.Load())
}

func TestExit_RecordsCodeAndKeepsOutput(t *testing.T) {
	h := newHarness(t)

	inv, err := h.ctrl.Run(context.Background(), "false")
	require.NoError(t, err)
	fh := h.runner.last()
	fh.chunks <- "last words"
	h.waitForOutput(t, inv, "last words")
	fh.exit(3)

	require.Eventually(t, func() bool {
		code, ok := inv.Entry().ExitCode()
		return ok && code == 3
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, ev := range h.notifier.Events() {
			if ev == pubsub.ExitedEvent {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, StateRunning, inv.State())
	require.Equal(t, "last words", h.prov.ProvideContent(inv.Document))
}

func TestInvocations_SortedAndForget(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"a", "b", "c"} {
		_, err := h.ctrl.Run(context.Background(), cmd)
		require.NoError(t, err)
	}

	invs := h.ctrl.Invocations()
	require.Len(t, invs, 3)
	for i, inv := range invs {
		require.Equal(t, registry.ProcessID(i+1), inv.ID)
	}

	h.ctrl.Forget(2)
	require.Len(t, h.ctrl.Invocations(), 3, "running invocations are kept")

	h.ctrl.Detach(2)
	h.ctrl.Forget(2)
	_, ok := h.ctrl.Invocation(2)
	require.False(t, ok)
}

func TestClose_DetachesEverything(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"a", "b"} {
		_, err := h.ctrl.Run(context.Background(), cmd)
		require.NoError(t, err)
	}

	h.ctrl.Close()

	for _, inv := range h.ctrl.Invocations() {
		require.Equal(t, StateDetached, inv.State())
	}
	for _, fh := range h.runner.handles {
		require.Equal(t, int32(1), fh.disconnects.Load())
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "unknown", State(99).String())
	require.True(t, StateFailed.IsTerminal())
	require.False(t, StateSpawning.IsTerminal())
}

package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/procview/internal/registry"
)

type stubHandle struct{}

func (stubHandle) Disconnect() error { return nil }
func (stubHandle) PID() int          { return 1 }

func detachedEntry(t *testing.T, reg *registry.Registry) *registry.Entry {
	t.Helper()
	e := registry.NewEntry(reg.NextID(), "tail -f x", stubHandle{})
	require.NoError(t, reg.Register(e))
	require.NoError(t, e.Release())
	return e
}

func TestPolicy_ZeroTTLRetainsForever(t *testing.T) {
	reg := registry.New()
	p := New(reg, 0, 0)
	t.Cleanup(p.Close)

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)
	p.Sweep()

	require.False(t, p.Enabled())
	require.Zero(t, p.Pending())
	_, ok := reg.FindByID(e.ID)
	require.True(t, ok)
}

func TestPolicy_SweepEvictsExpired(t *testing.T) {
	reg := registry.New()
	p := New(reg, time.Millisecond, 0)
	t.Cleanup(p.Close)

	var evicted []registry.ProcessID
	p.SetEvictHook(func(id registry.ProcessID) { evicted = append(evicted, id) })

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)
	require.Equal(t, 1, p.Pending())

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	_, ok := reg.FindByID(e.ID)
	require.False(t, ok)
	require.Equal(t, []registry.ProcessID{e.ID}, evicted)
	require.Zero(t, p.Pending())
}

func TestPolicy_SweepKeepsUnexpired(t *testing.T) {
	reg := registry.New()
	p := New(reg, time.Hour, 0)
	t.Cleanup(p.Close)

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)
	p.Sweep()

	_, ok := reg.FindByID(e.ID)
	require.True(t, ok)
}

func TestPolicy_AttachedEntryIsNotEvicted(t *testing.T) {
	reg := registry.New()
	p := New(reg, time.Millisecond, 0)
	t.Cleanup(p.Close)

	fired := false
	p.SetEvictHook(func(registry.ProcessID) { fired = true })

	e := registry.NewEntry(reg.NextID(), "yes", stubHandle{})
	require.NoError(t, reg.Register(e))
	p.Schedule(e.ID)

	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	_, ok := reg.FindByID(e.ID)
	require.True(t, ok)
	require.False(t, fired)
}

func TestPolicy_BackgroundJanitor(t *testing.T) {
	reg := registry.New()
	p := New(reg, time.Millisecond, 5*time.Millisecond)
	t.Cleanup(p.Close)

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)

	require.Eventually(t, func() bool {
		_, ok := reg.FindByID(e.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestPolicy_SetTTLAppliesToNewSchedules(t *testing.T) {
	reg := registry.New()
	p := New(reg, 0, 0)
	t.Cleanup(p.Close)

	p.SetTTL(time.Millisecond)
	require.True(t, p.Enabled())

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)
	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	_, ok := reg.FindByID(e.ID)
	require.False(t, ok)
}

func TestPolicy_CloseCancelsPending(t *testing.T) {
	reg := registry.New()
	p := New(reg, time.Millisecond, 0)

	e := detachedEntry(t, reg)
	p.Schedule(e.ID)
	p.Close()
	time.Sleep(5 * time.Millisecond)
	p.Sweep()

	_, ok := reg.FindByID(e.ID)
	require.True(t, ok)
}

package runner

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRunner(opts ...Option) *ShellRunner {
	return NewShellRunner(append([]Option{WithShell("/bin/sh")}, opts...)...)
}

// collect drains h until its chunk stream closes.
func collect(t *testing.T, h Handle) []string {
	t.Helper()
	var chunks []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-h.Chunks():
			if !ok {
				return chunks
			}
			chunks = append(chunks, c)
		case <-timeout:
			require.FailNow(t, "timeout collecting output")
		}
	}
}

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "process did not exit")
	}
}

func TestRun_Echo(t *testing.T) {
	h, err := newTestRunner().Run(context.Background(), "echo hi")
	require.NoError(t, err)

	require.Equal(t, "hi\n", strings.Join(collect(t, h), ""))
	waitDone(t, h)
	require.Equal(t, StatusExited, h.Status())
	require.Equal(t, 0, h.ExitCode())
	require.Greater(t, h.PID(), 0)
}

func TestRun_ExitCode(t *testing.T) {
	h, err := newTestRunner().Run(context.Background(), "exit 3")
	require.NoError(t, err)

	require.Empty(t, collect(t, h))
	waitDone(t, h)
	require.Equal(t, 3, h.ExitCode())
	require.True(t, h.Status().IsTerminal())
}

func TestRun_MissingExecutableIsNotASpawnFailure(t *testing.T) {
	// The shell starts fine and reports the missing binary itself.
	h, err := newTestRunner().Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.NoError(t, err)

	collect(t, h)
	waitDone(t, h)
	require.Equal(t, 127, h.ExitCode())
}

func TestRun_EmptyCommand(t *testing.T) {
	for _, cmd := range []string{"", "   ", "\t\n"} {
		_, err := newTestRunner().Run(context.Background(), cmd)
		require.True(t, errors.Is(err, ErrEmptyCommand), "%q", cmd)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner().Run(ctx, "echo hi")
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestRun_MissingShell(t *testing.T) {
	r := NewShellRunner(WithShell("/nonexistent/shell"))

	_, err := r.Run(context.Background(), "echo hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to start")
}

func TestRun_BadWorkDir(t *testing.T) {
	_, err := newTestRunner(WithWorkDir("/nonexistent/dir/for/sure")).Run(context.Background(), "pwd")
	require.Error(t, err)
}

func TestRun_WorkDir(t *testing.T) {
	dir := t.TempDir()
	h, err := newTestRunner(WithWorkDir(dir)).Run(context.Background(), "pwd")
	require.NoError(t, err)

	out := strings.TrimSpace(strings.Join(collect(t, h), ""))
	require.True(t, strings.HasSuffix(out, strings.TrimPrefix(dir, "/private")), "pwd %q in %q", out, dir)
}

func TestRun_Env(t *testing.T) {
	h, err := newTestRunner(WithEnv([]string{"PROCVIEW_TEST_VAR=hello"})).Run(context.Background(), "echo $PROCVIEW_TEST_VAR")
	require.NoError(t, err)

	require.Equal(t, "hello\n", strings.Join(collect(t, h), ""))
}

func TestRun_StderrIgnoredByDefault(t *testing.T) {
	h, err := newTestRunner().Run(context.Background(), "echo out; echo err 1>&2")
	require.NoError(t, err)

	require.Equal(t, "out\n", strings.Join(collect(t, h), ""))
}

func TestRun_StderrCapture(t *testing.T) {
	h, err := newTestRunner(WithStderrCapture(true)).Run(context.Background(), "echo out; echo err 1>&2")
	require.NoError(t, err)

	out := strings.Join(collect(t, h), "")
	require.Contains(t, out, "out\n")
	require.Contains(t, out, "err\n")
}

func TestRun_ChunkSize(t *testing.T) {
	h, err := newTestRunner(WithChunkSize(1)).Run(context.Background(), "printf abc")
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, collect(t, h))
}

func TestRun_ChunksArriveInOrder(t *testing.T) {
	h, err := newTestRunner().Run(context.Background(), "for i in 1 2 3 4 5; do echo $i; done")
	require.NoError(t, err)

	require.Equal(t, "1\n2\n3\n4\n5\n", strings.Join(collect(t, h), ""))
}

func TestDisconnect_DoesNotKill(t *testing.T) {
	h, err := newTestRunner().Run(context.Background(), "echo first; sleep 0.2; echo second; exit 7")
	require.NoError(t, err)

	select {
	case c := <-h.Chunks():
		require.Equal(t, "first\n", c)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no first chunk")
	}

	require.NoError(t, h.Disconnect())
	require.NoError(t, h.Disconnect())

	for c := range h.Chunks() {
		require.Failf(t, "chunk after disconnect", "%q", c)
	}

	waitDone(t, h)
	require.Equal(t, 7, h.ExitCode(), "process must finish on its own")
}

func TestRun_CommandFactory(t *testing.T) {
	var gotName string
	var gotArgs []string
	r := newTestRunner(WithCommandFactory(func(name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.Command("/bin/sh", "-c", "echo faked")
	}))

	h, err := r.Run(context.Background(), "real command")
	require.NoError(t, err)

	require.Equal(t, "faked\n", strings.Join(collect(t, h), ""))
	require.Equal(t, "/bin/sh", gotName)
	require.Equal(t, []string{"-c", "real command"}, gotArgs)
}

func TestDefaultShell(t *testing.T) {
	t.Setenv("SHELL", "")
	require.Equal(t, "/bin/sh", DefaultShell())

	t.Setenv("SHELL", "/bin/zsh")
	require.Equal(t, "/bin/zsh", DefaultShell())
	require.Equal(t, "/bin/zsh", NewShellRunner().Shell())
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "running", StatusRunning.String())
	require.Equal(t, "exited", StatusExited.String())
	require.Equal(t, "failed", StatusFailed.String())
	require.Equal(t, "unknown", Status(99).String())
	require.False(t, StatusRunning.IsTerminal())
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/procview/internal/controller"
	"github.com/zjrosen/procview/internal/log"
	"github.com/zjrosen/procview/internal/pubsub"
	"github.com/zjrosen/procview/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Run a command and stream its document to stdout",
	Long: `Run a command without the TUI. The document content is printed as it
grows. Ctrl+C detaches from the process and leaves it running.

Example:
  procview run journalctl -f
  procview run -- make test -j8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHeadless,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runHeadless(cmd *cobra.Command, args []string) error {
	if cfgErr != nil {
		return cfgErr
	}

	cleanup, err := initLogging("procview-run")
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(context.Background()) }()

	return stream(ctx, sess, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// stream runs command and copies each content delta to out until the
// process ends or ctx is cancelled, in which case it detaches.
func stream(ctx context.Context, sess *session.Session, command string, out, errOut io.Writer) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := sess.Provider().Subscribe(subCtx)

	inv, err := sess.Run(ctx, command)
	if err != nil {
		return err
	}
	if inv.State() == controller.StateFailed {
		return fmt.Errorf("%s", sess.ContentOf(inv.Document))
	}

	printed := 0
	flush := func() {
		content := sess.ContentOf(inv.Document)
		if len(content) > printed {
			_, _ = io.WriteString(out, content[printed:])
			printed = len(content)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			sess.Controller().Detach(inv.ID)
			_, _ = fmt.Fprintf(errOut, "\ndetached from process %s; it keeps running\n", inv.ID)
			return nil

		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			if ev.Type == pubsub.ChangedEvent && ev.Payload.Equal(inv.Document) {
				flush()
			}

		case <-inv.Done():
			flush()
			code, exited := inv.Entry().ExitCode()
			log.Debug(log.CatController, "headless run finished", "id", inv.ID, "exitCode", code)
			if exited && code != 0 {
				return fmt.Errorf("process exited with code %d", code)
			}
			return nil
		}
	}
}

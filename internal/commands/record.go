package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/actions"
)

// NewRecordCmd creates the record command.
func NewRecordCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Dictate a reminder; press Enter or Ctrl-C to stop",
		Long: "Records from the microphone until Enter, Ctrl-C, or the recording cap.\n" +
			"The recording is transcribed and submitted without a separate confirmation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM)
				defer cancel()

				stop := make(chan struct{})
				var once sync.Once
				halt := func() { once.Do(func() { close(stop) }) }

				sigs := make(chan os.Signal, 1)
				signal.Notify(sigs, os.Interrupt)
				defer signal.Stop(sigs)
				go func() {
					select {
					case <-sigs:
						halt()
					case <-ctx.Done():
					}
				}()
				go waitForEnter(cmd.InOrStdin(), halt)

				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Recording (max %ds). Press Enter to stop.\n", rt.Capture.Cap())
				res, err := actions.Record(ctx, rt, stop, !noWait)
				if err != nil {
					return err
				}
				return printOK(rt, res)
			})
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return before the new reminder shows up in the list")
	return cmd
}

// waitForEnter calls halt once a full line arrives on in. End of input without
// a newline does not stop the recording; Ctrl-C and the cap still do.
func waitForEnter(in io.Reader, halt func()) {
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil {
		return
	}
	halt()
}

package commands

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/actions"
	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/output"
)

type watchFrame struct {
	Trigger   string              `json:"trigger"`
	FetchedAt time.Time           `json:"fetched_at"`
	Events    []actions.EventView `json:"events"`
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the reminder list fresh; Enter or SIGCONT refreshes",
		Long: "Prints the recent reminders on start and again whenever the terminal\n" +
			"regains the foreground (SIGCONT) or Enter is pressed. Refreshes are\n" +
			"limited to one per second and failures are only logged.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				if !rt.Auth.Session().LoggedIn() {
					return models.NewActionError("watch", models.ErrUnauthenticated, models.ErrUnauthenticated)
				}

				ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer cancel()

				foreground := make(chan os.Signal, 1)
				if sigs := foregroundSignals(); len(sigs) > 0 {
					signal.Notify(foreground, sigs...)
					defer signal.Stop(foreground)
				}

				lines := make(chan struct{})
				go func() {
					defer close(lines)
					scanner := bufio.NewScanner(cmd.InOrStdin())
					for scanner.Scan() {
						select {
						case lines <- struct{}{}:
						case <-ctx.Done():
							return
						}
					}
				}()

				refresh(ctx, rt, "start")
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-foreground:
						refresh(ctx, rt, "foreground")
					case _, ok := <-lines:
						if !ok {
							lines = nil
							continue
						}
						refresh(ctx, rt, "manual")
					}
				}
			})
		},
	}
}

// refresh prints a frame only when a fetch was issued and succeeded; a
// failed fetch is already logged by the engine.
func refresh(ctx context.Context, rt *actions.Runtime, trigger string) bool {
	fetched, err := rt.Events.Foreground(ctx)
	if !fetched || err != nil {
		return false
	}
	now := time.Now()
	events := rt.Events.Events()
	views := make([]actions.EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, actions.ViewEvent(ev, now))
	}
	_ = output.PrintSuccess(watchFrame{Trigger: trigger, FetchedAt: rt.Events.FetchedAt(), Events: views})
	return true
}

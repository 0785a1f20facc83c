package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/actions"
	"github.com/dotcommander/forgotyet/internal/models"
)

// NewEventsCmd creates the events command.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List, add, rate and cancel reminders",
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsAddCmd())
	cmd.AddCommand(newEventsFeedbackCmd())
	cmd.AddCommand(newEventsCancelCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				res, err := actions.ListEvents(ctx, rt, cached)
				if err != nil {
					return err
				}
				return printOK(rt, res)
			})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Show the last fetched snapshot without contacting the backend")
	return cmd
}

func newEventsAddCmd() *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:     "add <text...>",
		Aliases: []string{"submit"},
		Short:   "Describe something to be reminded about",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				res, err := actions.SubmitText(ctx, rt, text, !noWait)
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

func newEventsFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <event-id> <early|good|late>",
		Short: "Say whether a reminder arrived at the right time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return cmdErr(err)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				res, err := actions.SendFeedback(ctx, rt, id, args[1])
				if err != nil {
					return err
				}
				return printOK(rt, res)
			})
		},
	}
}

func newEventsCancelCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cancel <event-id>",
		Short: "Cancel a pending reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return cmdErr(err)
			}
			confirm := func(int64) bool { return true }
			if !yes {
				confirm = promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				res, err := actions.CancelEvent(ctx, rt, id, confirm)
				if err != nil {
					return err
				}
				return printOK(rt, res)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func parseEventID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.ValidationError{Field: "event_id", Value: raw, Reason: "must be a positive integer"}
	}
	return id, nil
}

func promptConfirm(in io.Reader, out io.Writer) func(int64) bool {
	return func(id int64) bool {
		_, _ = fmt.Fprintf(out, "Cancel reminder %d? [y/N] ", id)
		line, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

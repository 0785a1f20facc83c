package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/actions"
)

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Log in with an email or SMS one-time code",
	}

	cmd.AddCommand(newAuthChannelCmd())
	cmd.AddCommand(newAuthSendCodeCmd())
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())
	return cmd
}

func newAuthChannelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channel <email|sms>",
		Short: "Choose the login channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(_ context.Context, rt *actions.Runtime) error {
				s, err := actions.SelectChannel(rt, args[0])
				if err != nil {
					return err
				}
				return printOK(rt, s)
			})
		},
	}
}

func newAuthSendCodeCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "send-code <email|phone>",
		Short: "Send a one-time login code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				s, err := actions.RequestCode(ctx, rt, channel, args[0])
				if err != nil {
					return err
				}
				return printOK(rt, s)
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Switch to this channel first (email or sms)")
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		identity string
		code     string
		email    string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a one-time code for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return cmdErr(errors.New("--code is required"))
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *actions.Runtime) error {
				res, err := actions.Login(ctx, rt, identity, code, email)
				if err != nil {
					return err
				}
				return printOK(rt, res)
			})
		},
	}

	cmd.Flags().StringVar(&identity, "identity", "", "Email or phone the code was sent to (default: the last one used)")
	cmd.Flags().StringVar(&code, "code", "", "One-time code")
	cmd.Flags().StringVar(&email, "email", "", "Email to bind to an SMS login")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(_ context.Context, rt *actions.Runtime) error {
				return printOK(rt, actions.Logout(rt))
			})
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(_ context.Context, rt *actions.Runtime) error {
				return printOK(rt, actions.AuthStatus(rt))
			})
		},
	}
}

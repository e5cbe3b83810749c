package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/it-helpdesk/internal/client"
	"github.com/spec-kit/it-helpdesk/internal/domain"
)

func (e *env) loginCommand() *cobra.Command {
	var email, password string
	var remember bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the helpdesk",
		Long: `Sign in with email and password.

Without --remember the session ends when you log out of this machine.

Examples:
  helpdeskctl login --email amal@example.com
  HELPDESK_PASSWORD=... helpdeskctl login --email amal@example.com --remember`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = e.v.GetString("password")
			}
			if password == "" {
				var err error
				if password, err = e.prompt("Password: "); err != nil {
					return err
				}
			}
			issued, err := e.session.SignIn(cmd.Context(), email, password, remember)
			if err != nil {
				return err
			}
			e.printf("Signed in as %s (%s)\n", issued.Identity.Email, issued.Identity.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the session across logins")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (e *env) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.session.SignOut(cmd.Context()); err != nil {
				e.printf("Signed out locally; server sign-out failed: %v\n", err)
				return nil
			}
			e.printf("Signed out\n")
			return nil
		},
	}
}

func (e *env) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.requireSession(); err != nil {
				return err
			}
			current, err := e.api.Session(cmd.Context())
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.printJSON(current)
			}
			e.printf("Email:     %s\nName:      %s\nRole:      %s\nSession:   %s, expires %s\n",
				current.Identity.Email,
				current.Identity.FullName,
				current.Identity.Role,
				describePersistence(current.Persistence),
				current.ExpiresAt.Local().Format(timeLayout))
			return nil
		},
	}
}

func (e *env) passwordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Recover a forgotten password",
	}

	var email string
	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Email a six digit reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.api.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			e.printf("If %s has an account, a verification code is on its way\n", email)
			return nil
		},
	}
	forgot.Flags().StringVar(&email, "email", "", "account email")
	_ = forgot.MarkFlagRequired("email")

	var resetEmail, code, password string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with a reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				var err error
				if password, err = e.prompt("New password: "); err != nil {
					return err
				}
			}
			if err := e.api.ResetPassword(cmd.Context(), resetEmail, code, password, password); err != nil {
				return err
			}
			e.printf("Password updated, sign in with the new password\n")
			return nil
		},
	}
	reset.Flags().StringVar(&resetEmail, "email", "", "account email")
	reset.Flags().StringVar(&code, "code", "", "six digit code from the email")
	reset.Flags().StringVar(&password, "password", "", "new password (prompted when empty)")
	_ = reset.MarkFlagRequired("email")
	_ = reset.MarkFlagRequired("code")

	cmd.AddCommand(forgot, reset)
	return cmd
}

func (e *env) prompt(label string) (string, error) {
	e.printf("%s", label)
	line, err := bufio.NewReader(e.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func describePersistence(p domain.Persistence) string {
	if p == domain.PersistencePersistent {
		return "remembered"
	}
	return "this login only"
}

// Describe renders API errors the way the server phrased them.
func Describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/it-helpdesk/internal/dashboard"
	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/export"
	"github.com/spec-kit/it-helpdesk/internal/functions"
)

var errAdminOnly = errors.New("this command needs an admin account")

func (e *env) requireAdmin() (*domain.Session, error) {
	current, err := e.requireSession()
	if err != nil {
		return nil, err
	}
	if !current.Identity.IsAdmin() {
		return nil, errAdminOnly
	}
	return current, nil
}

func (e *env) adminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Work the ticket queue (admin accounts only)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRunE != nil {
				if err := root.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
			}
			_, err := e.requireAdmin()
			return err
		},
	}
	cmd.AddCommand(
		e.adminListCommand(),
		e.adminExportCommand(),
		e.adminHistoryCommand(),
		e.adminUsersCommand(),
		e.adminCreateUserCommand(),
		e.adminWatchCommand(),
	)
	for _, action := range []domain.TicketAction{domain.ActionStart, domain.ActionResolve, domain.ActionClose} {
		cmd.AddCommand(e.adminActionCommand(action))
	}
	cmd.AddCommand(e.adminAssignCommand())
	return cmd
}

func (e *env) adminListCommand() *cobra.Command {
	filter := domain.TicketFilter{MatchOwner: true}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every ticket with its owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			views, err := e.api.ListAllTickets(cmd.Context())
			if err != nil {
				return err
			}
			return e.printViews(filter.Apply(views))
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func (e *env) adminExportCommand() *cobra.Command {
	filter := domain.TicketFilter{MatchOwner: true}
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered ticket list as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var w io.Writer = e.out
			if outPath != "" {
				if outPath == "-" {
					outPath = ""
				} else {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("create export file: %w", err)
					}
					defer f.Close()
					w = f
				}
			}
			if err := e.api.ExportCSV(cmd.Context(), filter, w); err != nil {
				return err
			}
			if outPath != "" {
				e.printf("Exported to %s\n", outPath)
			}
			return nil
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVarP(&outPath, "out", "o", export.FileName(time.Now()), "destination file, - for stdout")
	return cmd
}

func (e *env) adminActionCommand(action domain.TicketAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <ticket-id>",
		Short: fmt.Sprintf("Move a ticket to %s", action.Target()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.applyAction(cmd, args[0], action, "")
		},
	}
}

func (e *env) adminAssignCommand() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <ticket-id>",
		Short: "Assign an open ticket and move it to in_progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.applyAction(cmd, args[0], domain.ActionAssign, assignee)
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "assignee user id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (e *env) applyAction(cmd *cobra.Command, ticketID string, action domain.TicketAction, assignee string) error {
	result, err := e.api.ApplyAction(cmd.Context(), ticketID, action, assignee)
	if err != nil {
		return err
	}
	if e.jsonOutput() {
		return e.printJSON(result)
	}
	e.printf("Ticket %s is now %s\n", result.Ticket.ID, result.Ticket.Status)
	e.printWarnings(result.Warnings)
	return nil
}

func (e *env) adminHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <ticket-id>",
		Short: "Show the lifecycle audit trail of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := e.api.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.printJSON(entries)
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tACTION\tFROM\tTO\tBY")
			for _, h := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					h.CreatedAt.Local().Format(timeLayout), h.Action, h.FromStatus, h.ToStatus, h.ActorID)
			}
			return w.Flush()
		},
	}
}

func (e *env) adminUsersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := e.api.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return e.printUsers(users)
		},
	}
}

func (e *env) adminCreateUserCommand() *cobra.Command {
	var req functions.CreateUserRequest
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision an account for someone else",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				var err error
				if req.Password, err = e.prompt("Initial password: "); err != nil {
					return err
				}
			}
			user, err := e.api.CreateUser(cmd.Context(), req)
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.printJSON(user)
			}
			e.printf("Created %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Password, "password", "", "initial password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (e *env) adminWatchCommand() *cobra.Command {
	filter := domain.TicketFilter{MatchOwner: true}
	var poll string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the whole queue live, announcing new tickets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var board *dashboard.AdminDashboard
			board = dashboard.NewAdminDashboard(e.api, dashboard.AdminOptions{
				Logger:   e.logger,
				PollSpec: poll,
				OnRefresh: func() {
					e.printf("\n%s\n", timestamp())
					_ = e.printViews(board.Visible())
				},
			})
			board.SetFilter(filter)
			if err := board.Start(ctx); err != nil {
				return err
			}
			defer board.Close()

			for {
				select {
				case <-ctx.Done():
					return nil
				case alert := <-board.Alerts():
					e.printf("\a** New %s ticket [%s] %s\n", alert.Priority, alert.Category, alert.Title)
				}
			}
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVar(&poll, "poll", dashboard.DefaultPollSpec, "cron spec for the safety-net refresh")
	return cmd
}

func (e *env) printViews(views []domain.TicketView) error {
	if e.jsonOutput() {
		return e.printJSON(views)
	}
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tTITLE\tUSER\tCREATED")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Status, v.Priority, v.Category, v.Title, v.OwnerName(), v.CreatedAt.Local().Format(timeLayout))
	}
	return w.Flush()
}

func (e *env) printUsers(users []domain.User) error {
	if e.jsonOutput() {
		return e.printJSON(users)
	}
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tJOINED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.FullName, u.CreatedAt.Local().Format(timeLayout))
	}
	return w.Flush()
}

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/it-helpdesk/internal/client"
	"github.com/spec-kit/it-helpdesk/internal/dashboard"
	"github.com/spec-kit/it-helpdesk/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

func (e *env) ticketsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tickets",
		Aliases: []string{"t"},
		Short:   "Submit and follow your own tickets",
	}
	cmd.AddCommand(
		e.ticketsListCommand(),
		e.ticketsSubmitCommand(),
		e.ticketsAttachmentsCommand(),
		e.ticketsWatchCommand(),
	)
	return cmd
}

func addFilterFlags(cmd *cobra.Command, filter *domain.TicketFilter) {
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "search title and description")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only this status (open, in_progress, resolved, closed)")
	cmd.Flags().StringVar(&filter.Priority, "priority", "", "only this priority (low, medium, high, critical)")
	cmd.Flags().StringVar(&filter.Category, "category", "", "only this category")
}

func (e *env) ticketsListCommand() *cobra.Command {
	var filter domain.TicketFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your tickets, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.requireSession(); err != nil {
				return err
			}
			tickets, err := e.api.ListOwnTickets(cmd.Context())
			if err != nil {
				return err
			}
			visible := make([]domain.Ticket, 0, len(tickets))
			for _, t := range tickets {
				if filter.Match(domain.TicketView{Ticket: t}) {
					visible = append(visible, t)
				}
			}
			return e.printTickets(visible)
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func (e *env) ticketsSubmitCommand() *cobra.Command {
	var sub client.Submission
	var priority string
	var files []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Open a new ticket",
		Long: `Open a new ticket. Image files can be attached with --file.

Example:
  helpdeskctl tickets submit --title "VPN down" --description "Since 9am" \
    --category IT --priority high --file screenshot.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.requireSession(); err != nil {
				return err
			}
			sub.Priority = domain.TicketPriority(priority)
			for _, path := range files {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open attachment: %w", err)
				}
				defer f.Close()
				sub.Files = append(sub.Files, client.File{Name: filepath.Base(path), Reader: f})
			}

			result, err := e.api.SubmitTicket(cmd.Context(), sub)
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.printJSON(result)
			}
			e.printf("Ticket %s submitted\n", result.Ticket.ID)
			for _, a := range result.Attachments {
				e.printf("  attached %s (%d bytes)\n", a.FileName, a.FileSize)
			}
			e.printWarnings(result.Warnings)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub.Title, "title", "", "short summary")
	cmd.Flags().StringVar(&sub.Description, "description", "", "what happened")
	cmd.Flags().StringVar(&sub.Category, "category", domain.CategoryIT, "ticket category")
	cmd.Flags().StringVar(&priority, "priority", string(domain.TicketPriorityMedium), "low, medium, high or critical")
	cmd.Flags().StringArrayVar(&files, "file", nil, "image to attach, repeatable")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func (e *env) ticketsAttachmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "attachments <ticket-id>",
		Short: "List the files attached to a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := e.requireSession(); err != nil {
				return err
			}
			attachments, err := e.api.Attachments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.jsonOutput() {
				return e.printJSON(attachments)
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tTYPE\tSIZE\tURL")
			for _, a := range attachments {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.FileName, a.FileType, a.FileSize, a.URL)
			}
			return w.Flush()
		},
	}
}

func (e *env) ticketsWatchCommand() *cobra.Command {
	var filter domain.TicketFilter
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow your tickets live until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := e.requireSession()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var board *dashboard.UserDashboard
			board = dashboard.NewUserDashboard(e.api, current.Identity, dashboard.UserOptions{
				Logger: e.logger,
				OnRefresh: func() {
					e.printf("\n%s\n", timestamp())
					_ = e.printTickets(board.Visible())
				},
			})
			board.SetFilter(filter)
			if err := board.Start(ctx); err != nil {
				return err
			}
			defer board.Close()

			<-ctx.Done()
			return nil
		},
	}
	addFilterFlags(cmd, &filter)
	return cmd
}

func (e *env) printTickets(tickets []domain.Ticket) error {
	if e.jsonOutput() {
		return e.printJSON(tickets)
	}
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tTITLE\tCREATED")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, t.Category, t.Title, t.CreatedAt.Local().Format(timeLayout))
	}
	return w.Flush()
}

func (e *env) printWarnings(warnings []client.Warning) {
	for _, w := range warnings {
		if w.Target != "" {
			e.printf("  warning (%s): %s: %s\n", w.Stage, w.Target, w.Message)
			continue
		}
		e.printf("  warning (%s): %s\n", w.Stage, w.Message)
	}
}

func timestamp() string {
	return time.Now().Format(timeLayout)
}

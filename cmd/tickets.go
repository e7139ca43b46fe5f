package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/tickets"
	"ticket-wallet/tui"
)

var errNotLoggedIn = errors.New("not logged in, run the login command first")

func newTicketsCmd(flags *globalFlags) *cobra.Command {
	var (
		all    bool
		search string
		status string
		sort   string
	)
	c := &cobra.Command{
		Use:   "tickets",
		Short: "List purchased tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var statusFilter *model.TicketStatus
			if status != "" {
				parsed, err := model.ParseTicketStatus(status)
				if err != nil {
					return err
				}
				statusFilter = &parsed
			}

			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				dir := a.cfg.SortDirection()
				if sort != "" {
					parsed, err := model.ParseSortDirection(sort)
					if err != nil {
						return err
					}
					dir = parsed
				}

				if err := a.tickets.LoadFirstPage(ctx, dir); err != nil {
					return a.ticketError(ctx, err)
				}
				for all && a.tickets.Cursor().HasNext() {
					if _, err := a.tickets.LoadNextPage(ctx); err != nil {
						return a.ticketError(ctx, err)
					}
				}

				renderTicketTable(cmd.OutOrStdout(), a.tickets.Filter(search, statusFilter))
				cursor := a.tickets.Cursor()
				footer := fmt.Sprintf("%d tickets loaded, page %d of %d", len(a.tickets.Tickets()), cursor.CurrentPage, cursor.TotalPages)
				if cursor.HasNext() {
					footer += " (use --all to load every page)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), footer)
				return nil
			})
		},
	}
	c.Flags().BoolVarP(&all, "all", "a", false, "follow every page")
	c.Flags().StringVarP(&search, "search", "s", "", "match event name, location or ticket type")
	c.Flags().StringVar(&status, "status", "", "unused, checked_in or checked_out")
	c.Flags().StringVar(&sort, "sort", "", "ASC or DESC by event date (default from config)")
	return c
}

func newTicketCmd(flags *globalFlags) *cobra.Command {
	var noQR bool
	c := &cobra.Command{
		Use:   "ticket <id>",
		Short: "Show one ticket with its QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				if err := a.tickets.LoadFirstPage(ctx, a.cfg.SortDirection()); err != nil {
					return a.ticketError(ctx, err)
				}
				ticket, ok := a.tickets.Find(id)
				for !ok && a.tickets.Cursor().HasNext() {
					if _, err := a.tickets.LoadNextPage(ctx); err != nil {
						return a.ticketError(ctx, err)
					}
					ticket, ok = a.tickets.Find(id)
				}
				if !ok {
					return fmt.Errorf("ticket %q not found", id)
				}
				return renderTicket(cmd.OutOrStdout(), ticket, !noQR)
			})
		},
	}
	c.Flags().BoolVar(&noQR, "no-qr", false, "skip the QR code")
	return c
}

// ticketError maps fetch failures to user-facing errors. A rejected token
// ends the stored session.
func (a *app) ticketError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, tickets.ErrNotAuthenticated):
		return errNotLoggedIn
	case service.IsUnauthorized(err):
		if logoutErr := a.auth.Logout(ctx); logoutErr != nil {
			a.logger.Warn("session clear failed", "error", logoutErr)
		}
		return &displayError{message: "Your session has expired, please log in again", err: err}
	}
	return &displayError{message: service.Message(err), err: err}
}

func renderTicketTable(out io.Writer, list []model.Ticket) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Event", "Date", "Location", "Type", "Status", "Price"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 28},
		{Number: 4, WidthMax: 24},
		{Number: 7, Align: text.AlignRight},
	})
	for _, ticket := range list {
		t.AppendRow(table.Row{
			ticket.ID,
			ticket.EventName,
			strings.TrimSpace(ticket.EventDate + " " + ticket.EventStartTime),
			ticket.Location,
			ticket.TicketType,
			ticket.Status.Label(),
			tui.FormatPrice(ticket.Price),
		})
	}
	if len(list) == 0 {
		t.AppendRow(table.Row{"", "No tickets found"})
	}
	t.Render()
}

func renderTicket(out io.Writer, ticket model.Ticket, withQR bool) error {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(ticket.EventName)
	t.AppendRows([]table.Row{
		{"Status", ticket.Status.Label()},
		{"Date", strings.TrimSpace(ticket.EventDate + " " + ticket.EventStartTime)},
		{"Location", ticket.Location},
		{"Type", ticket.TicketType},
		{"Zone", ticket.ZoneName},
		{"Seat", ticket.SeatCode},
		{"Price", tui.FormatPrice(ticket.Price)},
		{"Quantity", ticket.Quantity},
		{"Ticket ID", ticket.ID},
	})
	t.Render()

	if withQR {
		code, err := tui.RenderQR(ticket.QRPayload())
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, code)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, ticket.ShareText())
	return nil
}

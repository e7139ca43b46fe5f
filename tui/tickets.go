package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ticket-wallet/model"
)

type ticketItem struct {
	ticket model.Ticket
}

func (t ticketItem) Title() string {
	return t.ticket.EventName
}

func (t ticketItem) Description() string {
	parts := []string{}
	when := strings.TrimSpace(t.ticket.EventDate + " " + t.ticket.EventStartTime)
	if when != "" {
		parts = append(parts, when)
	}
	if t.ticket.Location != "" {
		parts = append(parts, t.ticket.Location)
	}
	if t.ticket.TicketType != "" {
		parts = append(parts, t.ticket.TicketType)
	}
	parts = append(parts, t.ticket.Status.Label())
	return strings.Join(parts, " • ")
}

func (t ticketItem) FilterValue() string {
	return strings.ToLower(strings.Join([]string{t.ticket.EventName, t.ticket.Location, t.ticket.TicketType}, " "))
}

func buildTicketItems(tickets []model.Ticket) []list.Item {
	items := make([]list.Item, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, ticketItem{ticket: ticket})
	}
	return items
}

// nextStatusFilter cycles all -> each status -> all.
func nextStatusFilter(current *model.TicketStatus) *model.TicketStatus {
	if current == nil {
		next := model.TicketStatuses[0]
		return &next
	}
	for i, status := range model.TicketStatuses {
		if status == *current && i+1 < len(model.TicketStatuses) {
			next := model.TicketStatuses[i+1]
			return &next
		}
	}
	return nil
}

func (m *appModel) refreshTicketItems() {
	m.ticketList.SetItems(buildTicketItems(m.tickets.Filter(m.search, m.statusFilter)))
	if n := len(m.ticketList.Items()); n > 0 && m.ticketList.Index() >= n {
		m.ticketList.Select(n - 1)
	}
}

// loadMoreIfAtEnd requests the next page once the selection reaches the
// last loaded ticket.
func (m *appModel) loadMoreIfAtEnd() tea.Cmd {
	if m.state != stateTickets || m.fetching || m.loadingMore {
		return nil
	}
	items := m.ticketList.Items()
	if len(items) == 0 || m.ticketList.Index() < len(items)-1 {
		return nil
	}
	if !m.tickets.Loaded() || !m.tickets.Cursor().HasNext() {
		return nil
	}
	m.loadingMore = true
	return tea.Batch(m.loadNextPageCmd(), m.spinner.Tick)
}

func (m appModel) loadTicketsCmd(refresh bool) tea.Cmd {
	dir := m.sort
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if refresh {
			err = m.tickets.Refresh(ctx, dir)
		} else {
			err = m.tickets.LoadFirstPage(ctx, dir)
		}
		return ticketsMsg{ran: true, err: err}
	}
}

func (m appModel) loadNextPageCmd() tea.Cmd {
	return func() tea.Msg {
		ran, err := m.tickets.LoadNextPage(context.Background())
		return ticketsMsg{more: true, ran: ran, err: err}
	}
}

func (m appModel) ticketsView() string {
	indicators := m.tickets.Indicators()
	var status []string
	switch {
	case indicators.Refreshing:
		status = append(status, m.spinner.View()+" Refreshing...")
	case indicators.Loading && !m.tickets.Loaded():
		status = append(status, m.spinner.View()+" Loading tickets...")
	case indicators.Loading || m.loadingMore:
		status = append(status, m.spinner.View()+" Loading more...")
	}
	if m.notice != "" {
		status = append(status, lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(m.notice))
	}

	body := m.ticketList.View()
	if len(m.ticketList.Items()) == 0 && m.tickets.Loaded() {
		body = lipgloss.NewStyle().Bold(true).Render(m.ticketList.Title) + "\n\n" + hint("No tickets found")
	}

	cursor := m.tickets.Cursor()
	footer := hint(fmt.Sprintf("%d tickets loaded • page %d of %d", len(m.tickets.Tickets()), cursor.CurrentPage, cursor.TotalPages))
	if len(status) == 0 {
		return body + "\n" + footer
	}
	return strings.Join(status, "\n") + "\n" + body + "\n" + footer
}

func (m appModel) ticketDetailView() string {
	t := m.selected
	chip := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(statusColor(t.Status)).
		Padding(0, 2)
	label := lipgloss.NewStyle().Faint(true).Width(10)

	lines := []string{
		chip.Render(t.Status.Label()),
		"",
		lipgloss.NewStyle().Bold(true).Render(t.EventName),
		label.Render("Date") + strings.TrimSpace(t.EventDate+" "+t.EventStartTime),
		label.Render("Location") + t.Location,
		label.Render("Type") + t.TicketType,
	}
	if t.ZoneName != "" {
		lines = append(lines, label.Render("Zone")+t.ZoneName)
	}
	if t.SeatCode != "" {
		lines = append(lines, label.Render("Seat")+t.SeatCode)
	}
	lines = append(lines,
		label.Render("Price")+FormatPrice(t.Price),
		label.Render("Quantity")+fmt.Sprint(t.Quantity),
		label.Render("Ticket ID")+t.ID,
		"",
	)

	if m.showQR {
		code, err := RenderQR(t.QRPayload())
		if err != nil {
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(err.Error()))
		} else {
			lines = append(lines, code, hint("Press enter to hide QR code"))
		}
	} else {
		lines = append(lines, hint("Press enter to show QR code"))
	}

	lines = append(lines,
		"",
		lipgloss.NewStyle().Bold(true).Render("Share"),
		t.ShareText(),
		"",
		lipgloss.NewStyle().Bold(true).Render("Important Information"),
		"Please arrive at least 30 minutes before the event starts. Have your QR code ready for scanning at the entrance.",
	)
	return strings.Join(lines, "\n")
}

func statusColor(status model.TicketStatus) lipgloss.Color {
	switch status {
	case model.StatusUnused:
		return lipgloss.Color("42")
	case model.StatusCheckedIn:
		return lipgloss.Color("214")
	case model.StatusCheckedOut:
		return lipgloss.Color("245")
	}
	return lipgloss.Color("63")
}

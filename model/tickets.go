package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	StatusUnused     TicketStatus = "unused"
	StatusCheckedIn  TicketStatus = "checked_in"
	StatusCheckedOut TicketStatus = "checked_out"
)

// TicketStatuses lists every status in display order.
var TicketStatuses = []TicketStatus{StatusUnused, StatusCheckedIn, StatusCheckedOut}

// ParseTicketStatus accepts the wire value or the display label.
func ParseTicketStatus(value string) (TicketStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "unused", "not_used":
		return StatusUnused, nil
	case "checked_in":
		return StatusCheckedIn, nil
	case "checked_out":
		return StatusCheckedOut, nil
	}
	return "", fmt.Errorf("unknown ticket status %q", value)
}

func (s TicketStatus) Label() string {
	switch s {
	case StatusUnused:
		return "Not Used"
	case StatusCheckedIn:
		return "Checked In"
	case StatusCheckedOut:
		return "Checked Out"
	}
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

type Ticket struct {
	ID             string          `json:"id"`
	EventID        string          `json:"eventId"`
	EventName      string          `json:"eventName"`
	EventDate      string          `json:"eventDate"`
	EventStartTime string          `json:"eventStartTime"`
	Location       string          `json:"location"`
	TicketType     string          `json:"ticketType"`
	ZoneName       string          `json:"zoneName"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	QRCode         string          `json:"qrCode"`
	Status         TicketStatus    `json:"status"`
	SeatCode       string          `json:"seatCode,omitempty"`
}

// QRPayload is the value encoded in the ticket's QR code.
func (t Ticket) QRPayload() string {
	if t.QRCode != "" {
		return t.QRCode
	}
	return t.ID
}

// ShareText is the message offered when sharing a ticket.
func (t Ticket) ShareText() string {
	return fmt.Sprintf("Check out my ticket for %s on %s at %s!", t.EventName, t.EventDate, t.Location)
}

type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

func ParseSortDirection(value string) (SortDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "DESC":
		return SortDesc, nil
	case "ASC":
		return SortAsc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q (want ASC or DESC)", value)
}

// Cursor tracks pagination over the ticket endpoint. Pages are 1-based.
type Cursor struct {
	CurrentPage int
	TotalPages  int
	PageSize    int
}

// InitialCursor is the cursor before any page has been fetched.
func InitialCursor() Cursor {
	return Cursor{CurrentPage: 1, TotalPages: 1}
}

func (c Cursor) HasNext() bool {
	return c.CurrentPage < c.TotalPages
}

type TicketPage struct {
	Items         []Ticket
	CurrentPage   int
	TotalPages    int
	TotalElements int
	PageSize      int
}

// Cursor derives the pagination cursor reported by the page. A server
// reporting zero pages is treated as a single empty page.
func (p TicketPage) Cursor() Cursor {
	cursor := Cursor{
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		PageSize:    p.PageSize,
	}
	if cursor.CurrentPage < 1 {
		cursor.CurrentPage = 1
	}
	if cursor.TotalPages < 1 {
		cursor.TotalPages = 1
	}
	if cursor.PageSize <= 0 {
		cursor.PageSize = len(p.Items)
	}
	return cursor
}

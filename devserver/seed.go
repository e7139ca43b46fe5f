package devserver

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ticket-wallet/model"
)

type seedEvent struct {
	name     string
	location string
	start    string
}

var seedEvents = []seedEvent{
	{name: "Hanoi Jazz Night", location: "Hanoi Opera House", start: "20:00"},
	{name: "Saigon Indie Fest", location: "Saigon Exhibition Center", start: "17:30"},
	{name: "Da Nang Beach Run", location: "My Khe Beach", start: "05:30"},
	{name: "Symphony Under the Stars", location: "Ho Guom Pedestrian Zone", start: "19:30"},
	{name: "Startup Summit", location: "GEM Center", start: "08:30"},
}

var seedTypes = []struct {
	name  string
	zone  string
	price int64
}{
	{name: "Standard", zone: "GA", price: 250000},
	{name: "VIP", zone: "A", price: 1200000},
	{name: "Early Bird", zone: "B", price: 180000},
}

// GenerateTickets builds count sample tickets, one every three days
// after from.
func GenerateTickets(count int, from time.Time) []model.Ticket {
	tickets := make([]model.Ticket, 0, count)
	for i := 0; i < count; i++ {
		event := seedEvents[i%len(seedEvents)]
		kind := seedTypes[i%len(seedTypes)]
		date := from.AddDate(0, 0, 3*i+1)
		id := uuid.NewString()
		tickets = append(tickets, model.Ticket{
			ID:             id,
			EventID:        fmt.Sprintf("evt-%03d", i%len(seedEvents)+1),
			EventName:      event.name,
			EventDate:      date.Format(time.DateOnly),
			EventStartTime: event.start,
			Location:       event.location,
			TicketType:     kind.name,
			ZoneName:       kind.zone,
			Price:          decimal.NewFromInt(kind.price),
			Quantity:       1 + i%3,
			QRCode:         "TW-" + id,
			Status:         model.TicketStatuses[i%len(model.TicketStatuses)],
			SeatCode:       fmt.Sprintf("%s-%02d", kind.zone, i+1),
		})
	}
	return tickets
}

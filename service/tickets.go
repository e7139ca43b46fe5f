package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"ticket-wallet/model"
)

type ticketPageResult struct {
	Items         []model.Ticket `json:"items"`
	CurrentPage   int            `json:"currentPage"`
	TotalPages    int            `json:"totalPages"`
	TotalElements int            `json:"totalElements"`
	PageSize      int            `json:"pageSize"`
}

// ErrMissingToken is returned when a ticket request is made without a
// bearer token.
var ErrMissingToken = errors.New("access token is required")

// FetchTicketPage fetches one page of the account's purchased tickets.
// Pages are 1-based.
func (c *Client) FetchTicketPage(ctx context.Context, token string, page int, dir model.SortDirection) (model.TicketPage, error) {
	if token == "" {
		return model.TicketPage{}, ErrMissingToken
	}
	if page < 1 {
		page = 1
	}
	if dir == "" {
		dir = model.SortDesc
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("sortDirection", string(dir))
	endpoint := fmt.Sprintf("%s/ticket-purchase/all_of_account?%s", c.baseURL, query.Encode())

	var res envelope[ticketPageResult]
	err := c.doJSON(ctx, request{
		method:   http.MethodGet,
		endpoint: endpoint,
		token:    token,
	}, &res)
	if err != nil {
		return model.TicketPage{}, err
	}
	if res.Code != 0 && res.Code != successCode {
		return model.TicketPage{}, &ServerError{
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Code:       res.Code,
			Message:    res.Message,
		}
	}

	items := res.Result.Items
	for i := range items {
		assignTicketID(&items[i])
	}
	if items == nil {
		items = []model.Ticket{}
	}

	currentPage := res.Result.CurrentPage
	if currentPage < 1 {
		currentPage = page
	}
	return model.TicketPage{
		Items:         items,
		CurrentPage:   currentPage,
		TotalPages:    res.Result.TotalPages,
		TotalElements: res.Result.TotalElements,
		PageSize:      res.Result.PageSize,
	}, nil
}

// assignTicketID keeps the server id, else the seat code, else a random
// id so list rows stay distinguishable.
func assignTicketID(ticket *model.Ticket) {
	if ticket.ID != "" {
		return
	}
	if ticket.SeatCode != "" {
		ticket.ID = ticket.SeatCode
		return
	}
	ticket.ID = uuid.NewString()
}

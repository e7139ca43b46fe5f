// Package tickets accumulates the account's ticket pages and filters
// them locally.
package tickets

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"ticket-wallet/logging"
	"ticket-wallet/model"
)

// ErrNotAuthenticated is returned when a fetch is attempted without a
// session token.
var ErrNotAuthenticated = errors.New("not logged in")

type Fetcher interface {
	FetchTicketPage(ctx context.Context, token string, page int, dir model.SortDirection) (model.TicketPage, error)
}

type TokenSource interface {
	Token() string
}

// Indicators separate a first-page or paged load from a pull-to-refresh.
type Indicators struct {
	Loading    bool
	Refreshing bool
}

// Controller holds the accumulated ticket list and its cursor. At most
// one fetch runs at a time: first-page loads wait for it, next-page
// loads are dropped.
type Controller struct {
	fetcher Fetcher
	tokens  TokenSource
	logger  *slog.Logger

	fetchMu sync.Mutex

	mu         sync.RWMutex
	tickets    []model.Ticket
	cursor     model.Cursor
	dir        model.SortDirection
	loaded     bool
	indicators Indicators
	generation uint64
}

func NewController(fetcher Fetcher, tokens TokenSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		fetcher: fetcher,
		tokens:  tokens,
		logger:  logger,
		cursor:  model.InitialCursor(),
		dir:     model.SortDesc,
	}
}

// LoadFirstPage fetches page 1 and replaces the accumulated list. On
// failure the list is kept and the error returned.
func (c *Controller) LoadFirstPage(ctx context.Context, dir model.SortDirection) error {
	return c.loadFirst(ctx, dir, false)
}

// Refresh is LoadFirstPage under the refreshing indicator.
func (c *Controller) Refresh(ctx context.Context, dir model.SortDirection) error {
	return c.loadFirst(ctx, dir, true)
}

func (c *Controller) loadFirst(ctx context.Context, dir model.SortDirection, refreshing bool) error {
	// The generation is taken before the token so a Reset between the
	// two always makes this load stale.
	generation := c.currentGeneration()
	token := c.tokens.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	if dir == "" {
		dir = model.SortDesc
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if !c.begin(generation, refreshing) {
		c.logger.Debug("ticket load dropped after reset", "page", 1)
		return nil
	}
	defer c.finish()

	page, err := c.fetcher.FetchTicketPage(ctx, token, 1, dir)
	if err != nil {
		c.logger.Warn("ticket page fetch failed", "page", 1, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return nil
	}
	c.tickets = append([]model.Ticket(nil), page.Items...)
	c.cursor = page.Cursor()
	c.dir = dir
	c.loaded = true
	c.logger.Debug("ticket list replaced",
		"count", len(c.tickets),
		"total_pages", c.cursor.TotalPages,
		"sort", dir,
	)
	return nil
}

// LoadNextPage appends the page after the cursor. It reports false
// without error when there is no further page or a fetch is already
// running.
func (c *Controller) LoadNextPage(ctx context.Context) (bool, error) {
	if !c.fetchMu.TryLock() {
		return false, nil
	}
	defer c.fetchMu.Unlock()

	c.mu.RLock()
	cursor, dir, loaded, generation := c.cursor, c.dir, c.loaded, c.generation
	c.mu.RUnlock()
	if !loaded || !cursor.HasNext() {
		return false, nil
	}

	token := c.tokens.Token()
	if token == "" {
		return false, ErrNotAuthenticated
	}

	next := cursor.CurrentPage + 1
	if !c.begin(generation, false) {
		return false, nil
	}
	defer c.finish()

	page, err := c.fetcher.FetchTicketPage(ctx, token, next, dir)
	if err != nil {
		c.logger.Warn("ticket page fetch failed", "page", next, "error", err)
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false, nil
	}
	c.tickets = append(c.tickets, page.Items...)
	updated := page.Cursor()
	updated.CurrentPage = next
	if updated.TotalPages < next {
		updated.TotalPages = next
	}
	c.cursor = updated
	c.logger.Debug("ticket page appended", "page", next, "count", len(c.tickets))
	return true, nil
}

// Reset drops the accumulated list. A fetch still in flight completes
// but its result is discarded, and a load waiting behind it is dropped
// without a request.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.tickets = nil
	c.cursor = model.InitialCursor()
	c.loaded = false
	c.indicators = Indicators{}
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// begin raises the indicator for a fetch started at generation. It
// reports false when a Reset has happened since.
func (c *Controller) begin(generation uint64, refreshing bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	if refreshing {
		c.indicators.Refreshing = true
	} else {
		c.indicators.Loading = true
	}
	return true
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indicators = Indicators{}
}

// Tickets returns a copy of the accumulated list.
func (c *Controller) Tickets() []model.Ticket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Ticket(nil), c.tickets...)
}

func (c *Controller) Cursor() model.Cursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

func (c *Controller) SortDirection() model.SortDirection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dir
}

func (c *Controller) Indicators() Indicators {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indicators
}

// Loaded reports whether a first page has been fetched since the last Reset.
func (c *Controller) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Controller) Find(id string) (model.Ticket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ticket := range c.tickets {
		if ticket.ID == id {
			return ticket, true
		}
	}
	return model.Ticket{}, false
}

// Filter returns the accumulated tickets matching search and, when
// status is non-nil, that exact status.
func (c *Controller) Filter(search string, status *model.TicketStatus) []model.Ticket {
	return Filter(c.Tickets(), search, status)
}

// Filter matches search case-insensitively against the event name,
// location and ticket type. The input slice is not modified.
func Filter(tickets []model.Ticket, search string, status *model.TicketStatus) []model.Ticket {
	needle := strings.ToLower(strings.TrimSpace(search))
	result := make([]model.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if status != nil && ticket.Status != *status {
			continue
		}
		if needle != "" && !matches(ticket, needle) {
			continue
		}
		result = append(result, ticket)
	}
	return result
}

func matches(ticket model.Ticket, needle string) bool {
	for _, field := range []string{ticket.EventName, ticket.Location, ticket.TicketType} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

package tickets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-wallet/model"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// swappableToken reports each read on read, when set, so a test can
// tell a load has captured its token.
type swappableToken struct {
	mu    sync.Mutex
	token string
	read  chan struct{}
}

func (s *swappableToken) Token() string {
	s.mu.Lock()
	token, read := s.token, s.read
	s.mu.Unlock()
	if read != nil {
		read <- struct{}{}
	}
	return token
}

func (s *swappableToken) set(token string, read chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.read = read
}

type pageRequest struct {
	token string
	page  int
	dir   model.SortDirection
}

type fakeFetcher struct {
	mu         sync.Mutex
	totalPages int
	pageSize   int
	requests   []pageRequest
	err        error
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeFetcher) FetchTicketPage(ctx context.Context, token string, page int, dir model.SortDirection) (model.TicketPage, error) {
	f.mu.Lock()
	f.requests = append(f.requests, pageRequest{token: token, page: page, dir: dir})
	err, block, entered := f.err, f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return model.TicketPage{}, err
	}

	items := make([]model.Ticket, 0, f.pageSize)
	for i := 0; i < f.pageSize; i++ {
		items = append(items, model.Ticket{
			ID:        fmt.Sprintf("p%d-%d", page, i),
			EventName: fmt.Sprintf("Event %d", i),
			Status:    model.StatusUnused,
		})
	}
	return model.TicketPage{
		Items:       items,
		CurrentPage: page,
		TotalPages:  f.totalPages,
		PageSize:    f.pageSize,
	}, nil
}

func (f *fakeFetcher) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestLoadNextPage_AppendsAndAdvances(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 20}
	c := NewController(fetcher, staticToken("abc"), nil)

	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))
	assert.Len(t, c.Tickets(), 20)
	assert.Equal(t, model.Cursor{CurrentPage: 1, TotalPages: 3, PageSize: 20}, c.Cursor())

	loaded, err := c.LoadNextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)

	tickets := c.Tickets()
	require.Len(t, tickets, 40)
	assert.Equal(t, 2, c.Cursor().CurrentPage)
	assert.Equal(t, "p1-0", tickets[0].ID)
	assert.Equal(t, "p2-0", tickets[20].ID)
	assert.Equal(t, pageRequest{token: "abc", page: 2, dir: model.SortDesc}, fetcher.requests[1])
}

func TestLoadNextPage_NoOpAtLastPage(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 5}
	c := NewController(fetcher, staticToken("abc"), nil)

	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortAsc))
	for i := 0; i < 2; i++ {
		loaded, err := c.LoadNextPage(context.Background())
		require.NoError(t, err)
		require.True(t, loaded)
	}
	assert.Equal(t, 3, c.Cursor().CurrentPage)
	before := fetcher.requestCount()

	loaded, err := c.LoadNextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, before, fetcher.requestCount())
	assert.Len(t, c.Tickets(), 15)
}

func TestLoadNextPage_BeforeFirstPageIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 5}
	c := NewController(fetcher, staticToken("abc"), nil)

	loaded, err := c.LoadNextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Zero(t, fetcher.requestCount())
}

func TestLoadFirstPage_IsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 2, pageSize: 10}
	c := NewController(fetcher, staticToken("abc"), nil)

	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))
	first := c.Tickets()
	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))
	assert.Equal(t, first, c.Tickets())
}

func TestRefresh_ResetsCursorAndReplacesList(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 4}
	c := NewController(fetcher, staticToken("abc"), nil)

	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))
	_, err := c.LoadNextPage(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Tickets(), 8)

	require.NoError(t, c.Refresh(context.Background(), model.SortAsc))
	assert.Len(t, c.Tickets(), 4)
	assert.Equal(t, 1, c.Cursor().CurrentPage)
	assert.Equal(t, model.SortAsc, c.SortDirection())
	assert.Equal(t, Indicators{}, c.Indicators())
}

func TestLoadFirstPage_FailureKeepsList(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 1, pageSize: 3}
	c := NewController(fetcher, staticToken("abc"), nil)
	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))

	fetcher.mu.Lock()
	fetcher.err = errors.New("unreachable")
	fetcher.mu.Unlock()

	assert.Error(t, c.Refresh(context.Background(), model.SortDesc))
	assert.Len(t, c.Tickets(), 3)
	assert.Equal(t, Indicators{}, c.Indicators())
}

func TestLoadFirstPage_EmptyResult(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 0, pageSize: 0}
	c := NewController(fetcher, staticToken("abc"), nil)

	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))
	assert.Empty(t, c.Tickets())
	assert.True(t, c.Loaded())
	assert.False(t, c.Cursor().HasNext())
}

func TestLoadFirstPage_RequiresToken(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 1, pageSize: 1}
	c := NewController(fetcher, staticToken(""), nil)

	assert.ErrorIs(t, c.LoadFirstPage(context.Background(), model.SortDesc), ErrNotAuthenticated)
	assert.Zero(t, fetcher.requestCount())
}

func TestLoadNextPage_DroppedWhileFetchInFlight(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 2}
	c := NewController(fetcher, staticToken("abc"), nil)
	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))

	fetcher.mu.Lock()
	fetcher.block = make(chan struct{})
	fetcher.entered = make(chan struct{}, 1)
	block, entered := fetcher.block, fetcher.entered
	fetcher.mu.Unlock()

	done := make(chan bool, 1)
	go func() {
		loaded, _ := c.LoadNextPage(context.Background())
		done <- loaded
	}()
	<-entered
	assert.True(t, c.Indicators().Loading)

	loaded, err := c.LoadNextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)

	close(block)
	assert.True(t, <-done)
	assert.Equal(t, 2, fetcher.requestCount())
	assert.Len(t, c.Tickets(), 4)
}

func TestRefresh_SetsRefreshingIndicator(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 1, pageSize: 1, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := NewController(fetcher, staticToken("abc"), nil)

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background(), model.SortDesc) }()
	<-fetcher.entered

	assert.Equal(t, Indicators{Refreshing: true}, c.Indicators())
	close(fetcher.block)
	require.NoError(t, <-done)
	assert.Equal(t, Indicators{}, c.Indicators())
}

func TestReset_DiscardsInFlightResult(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 1, pageSize: 2, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := NewController(fetcher, staticToken("abc"), nil)

	done := make(chan error, 1)
	go func() { done <- c.LoadFirstPage(context.Background(), model.SortDesc) }()
	<-fetcher.entered

	c.Reset()
	close(fetcher.block)
	require.NoError(t, <-done)
	assert.Empty(t, c.Tickets())
	assert.False(t, c.Loaded())
}

func TestReset_DropsFirstPageWaitingBehindNextPage(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 3, pageSize: 20}
	tokens := &swappableToken{token: "abc"}
	c := NewController(fetcher, tokens, nil)
	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	fetcher.mu.Lock()
	fetcher.block, fetcher.entered = block, entered
	fetcher.mu.Unlock()

	nextDone := make(chan error, 1)
	go func() {
		_, err := c.LoadNextPage(context.Background())
		nextDone <- err
	}()
	<-entered

	read := make(chan struct{})
	tokens.set("abc", read)
	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Refresh(context.Background(), model.SortDesc) }()
	<-read

	tokens.set("", nil)
	c.Reset()
	close(block)

	require.NoError(t, <-nextDone)
	require.NoError(t, <-firstDone)
	assert.False(t, c.Loaded())
	assert.Empty(t, c.Tickets())
	assert.Equal(t, model.InitialCursor(), c.Cursor())
	assert.Equal(t, 2, fetcher.requestCount())
	assert.Equal(t, Indicators{}, c.Indicators())
}

func TestFilter(t *testing.T) {
	checkedIn := model.StatusCheckedIn
	unused := model.StatusUnused
	tickets := []model.Ticket{
		{ID: "1", EventName: "Jazz Night", Location: "Hall A", TicketType: "VIP", Status: model.StatusUnused},
		{ID: "2", EventName: "Rock Fest", Location: "Stadium", TicketType: "Standard", Status: model.StatusCheckedIn},
		{ID: "3", EventName: "Opera", Location: "jazz club", TicketType: "Balcony", Status: model.StatusCheckedOut},
	}

	assert.Equal(t, tickets, Filter(tickets, "", nil))

	ids := func(list []model.Ticket) []string {
		var out []string
		for _, ticket := range list {
			out = append(out, ticket.ID)
		}
		return out
	}
	assert.Equal(t, []string{"1", "3"}, ids(Filter(tickets, "JAZZ", nil)))
	assert.Equal(t, []string{"2"}, ids(Filter(tickets, "standard", nil)))
	assert.Equal(t, []string{"2"}, ids(Filter(tickets, "", &checkedIn)))
	assert.Equal(t, []string{"1"}, ids(Filter(tickets, "jazz", &unused)))
	assert.Empty(t, Filter(tickets, "jazz", &checkedIn))
	assert.Equal(t, "1", tickets[0].ID)
}

func TestController_FilterDoesNotMutate(t *testing.T) {
	fetcher := &fakeFetcher{totalPages: 1, pageSize: 3}
	c := NewController(fetcher, staticToken("abc"), nil)
	require.NoError(t, c.LoadFirstPage(context.Background(), model.SortDesc))

	assert.Len(t, c.Filter("Event 1", nil), 1)
	assert.Len(t, c.Tickets(), 3)

	ticket, ok := c.Find("p1-2")
	assert.True(t, ok)
	assert.Equal(t, "Event 2", ticket.EventName)
}

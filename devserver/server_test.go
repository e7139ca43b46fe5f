package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ticket-wallet/auth"
	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/store"
	"ticket-wallet/tickets"
)

func newTestServer(t *testing.T, pageSize int) (*Server, *service.Client) {
	t.Helper()
	srv := New(Config{Secret: "test-secret", PageSize: pageSize, BcryptCost: bcrypt.MinCost})
	require.NoError(t, srv.AddUser("alice", "wonderland", "staff", 45))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := service.NewClient(ts.Client(), service.WithBaseURL(ts.URL))
	return srv, client
}

func TestHealth(t *testing.T) {
	_, client := newTestServer(t, 20)
	require.NoError(t, client.CheckHealth(context.Background()))
}

func TestLogin_IssuesSignedTokens(t *testing.T) {
	_, client := newTestServer(t, 20)

	result, err := client.Login(context.Background(), "Alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, "staff", result.Role)
	assert.Equal(t, "ACTIVE", result.Status)
	assert.NotEmpty(t, result.RefreshToken)

	claims, ok := auth.ParseClaims(result.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "alice", claims.Subject)
	assert.False(t, claims.Expired(time.Now()))
}

func TestLogin_WrongPassword(t *testing.T) {
	_, client := newTestServer(t, 20)

	_, err := client.Login(context.Background(), "alice", "looking-glass")
	require.Error(t, err)
	assert.True(t, service.IsUnauthorized(err))
	assert.Equal(t, "Invalid username or password", service.Message(err))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	_, client := newTestServer(t, 20)

	creds, err := client.Register(context.Background(), model.Registration{
		Username: "bob", Email: "bob@example.com", Password: "secret", FirstName: "Bob", LastName: "Nguyen",
	})
	require.NoError(t, err)
	assert.Equal(t, "user", creds.Role)
	assert.NotEmpty(t, creds.Token)

	_, err = client.Register(context.Background(), model.Registration{
		Username: "BOB", Email: "b@example.com", Password: "x", FirstName: "B", LastName: "N",
	})
	require.Error(t, err)
	assert.Equal(t, "Username already taken", service.Message(err))
}

func TestTickets_PagesAndSorts(t *testing.T) {
	_, client := newTestServer(t, 20)
	ctx := context.Background()
	result, err := client.Login(ctx, "alice", "wonderland")
	require.NoError(t, err)

	first, err := client.FetchTicketPage(ctx, result.AccessToken, 1, model.SortAsc)
	require.NoError(t, err)
	assert.Len(t, first.Items, 20)
	assert.Equal(t, 3, first.TotalPages)
	assert.Equal(t, 45, first.TotalElements)
	for i := 1; i < len(first.Items); i++ {
		assert.LessOrEqual(t, first.Items[i-1].EventDate, first.Items[i].EventDate)
	}

	last, err := client.FetchTicketPage(ctx, result.AccessToken, 3, model.SortAsc)
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	beyond, err := client.FetchTicketPage(ctx, result.AccessToken, 9, model.SortAsc)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.NotNil(t, beyond.Items)
}

func TestTickets_RejectsBadTokens(t *testing.T) {
	srv, client := newTestServer(t, 20)
	ctx := context.Background()

	_, err := client.FetchTicketPage(ctx, "not-a-jwt", 1, model.SortDesc)
	assert.True(t, service.IsUnauthorized(err))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "typ": "access", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = client.FetchTicketPage(ctx, forged, 1, model.SortDesc)
	assert.True(t, service.IsUnauthorized(err))

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "typ": "access", "exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = client.FetchTicketPage(ctx, expired, 1, model.SortDesc)
	assert.True(t, service.IsUnauthorized(err))

	refresh, err := srv.issueRefreshToken(&user{username: "alice"})
	require.NoError(t, err)
	_, err = client.FetchTicketPage(ctx, refresh, 1, model.SortDesc)
	assert.True(t, service.IsUnauthorized(err))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, client := newTestServer(t, 20)
	require.NoError(t, client.CheckHealth(context.Background()))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `ticket_wallet_devserver_requests_total{method="GET",route="/health",status="200"} 1`))
}

func TestWalletFlow(t *testing.T) {
	_, client := newTestServer(t, 20)
	ctx := context.Background()

	sessions := store.NewSessionStore(store.NewMemoryKV())
	manager := auth.NewManager(sessions, client)
	manager.Initialize(ctx)
	require.False(t, manager.State().IsLoggedIn)

	require.NoError(t, manager.LoginWithPassword(ctx, "alice", "wonderland"))
	state := manager.State()
	assert.True(t, state.IsLoggedIn)
	assert.Equal(t, "staff", state.Role)

	refresh, err := sessions.RefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, refresh)

	controller := tickets.NewController(client, manager, nil)
	require.NoError(t, controller.LoadFirstPage(ctx, model.SortDesc))
	for controller.Cursor().HasNext() {
		ran, err := controller.LoadNextPage(ctx)
		require.NoError(t, err)
		require.True(t, ran)
	}
	list := controller.Tickets()
	assert.Len(t, list, 45)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].EventDate, list[i].EventDate)
	}

	checkedIn := model.StatusCheckedIn
	assert.Len(t, controller.Filter("", &checkedIn), 15)

	restarted := auth.NewManager(sessions, client)
	restarted.Initialize(ctx)
	assert.Equal(t, state.Token, restarted.State().Token)

	require.NoError(t, manager.Logout(ctx))
	_, ok, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	refresh, err = sessions.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, refresh)
}

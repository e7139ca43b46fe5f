package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/store"
)

type fakeStore struct {
	mu        sync.Mutex
	values    map[string]string
	loadErr   error
	saveErr   error
	clearErr  error
	loads     int
	saves     int
	clearedAt [][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Load(context.Context) (model.Credentials, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return model.Credentials{}, false, f.loadErr
	}
	creds := model.Credentials{Token: f.values[store.KeyToken], Role: f.values[store.KeyRole]}
	return creds, creds.Complete(), nil
}

func (f *fakeStore) Save(_ context.Context, token string, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.values[store.KeyToken] = token
	f.values[store.KeyRole] = role
	return nil
}

func (f *fakeStore) Clear(_ context.Context, extraKeys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedAt = append(f.clearedAt, extraKeys)
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.values, store.KeyToken)
	delete(f.values, store.KeyRole)
	for _, key := range extraKeys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeStore) SaveRefreshToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[store.KeyRefreshToken] = token
	return nil
}

type fakeAPI struct {
	login    func(ctx context.Context, username, password string) (model.AuthResult, error)
	register func(ctx context.Context, registration model.Registration) (model.Credentials, error)
	health   error
	calls    int
}

func (f *fakeAPI) Login(ctx context.Context, username string, password string) (model.AuthResult, error) {
	f.calls++
	return f.login(ctx, username, password)
}

func (f *fakeAPI) Register(ctx context.Context, registration model.Registration) (model.Credentials, error) {
	f.calls++
	return f.register(ctx, registration)
}

func (f *fakeAPI) CheckHealth(context.Context) error {
	return f.health
}

func validRegistration() model.Registration {
	return model.Registration{Username: "ann", Email: "ann@example.com", Password: "pw", FirstName: "Ann", LastName: "Lee"}
}

func TestInitialize_RestoresPersistedSession(t *testing.T) {
	sessions := newFakeStore()
	sessions.values[store.KeyToken] = "abc"
	sessions.values[store.KeyRole] = "staff"
	m := NewManager(sessions, &fakeAPI{})

	assert.True(t, m.State().IsLoading)
	m.Initialize(context.Background())

	assert.Equal(t, model.Session{IsLoggedIn: true, Token: "abc", Role: "staff"}, m.State())
}

func TestInitialize_NoCredentials(t *testing.T) {
	m := NewManager(newFakeStore(), &fakeAPI{})
	m.Initialize(context.Background())
	assert.Equal(t, model.Session{}, m.State())
}

func TestInitialize_StorageFailureFailsSafe(t *testing.T) {
	sessions := newFakeStore()
	sessions.loadErr = &store.AuthStorageError{Op: "load", Err: errors.New("corrupt")}
	m := NewManager(sessions, &fakeAPI{})

	m.Initialize(context.Background())
	state := m.State()
	assert.False(t, state.IsLoggedIn)
	assert.False(t, state.IsLoading)
}

func TestInitialize_RunsOnce(t *testing.T) {
	sessions := newFakeStore()
	m := NewManager(sessions, &fakeAPI{})
	m.Initialize(context.Background())
	m.Initialize(context.Background())
	assert.Equal(t, 1, sessions.loads)
}

func TestLogin_PersistsThenReads(t *testing.T) {
	sessions := newFakeStore()
	m := NewManager(sessions, &fakeAPI{})
	m.Initialize(context.Background())

	require.NoError(t, m.Login(context.Background(), "abc", "staff"))
	assert.Equal(t, model.Session{IsLoggedIn: true, Token: "abc", Role: "staff"}, m.State())

	creds, ok, err := sessions.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", creds.Token)
}

func TestLogin_RejectsEmptyFields(t *testing.T) {
	sessions := newFakeStore()
	m := NewManager(sessions, &fakeAPI{})

	err := m.Login(context.Background(), "", "staff")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"token"}, validation.Fields)
	assert.Zero(t, sessions.saves)
}

func TestLogin_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	sessions := newFakeStore()
	sessions.saveErr = errors.New("read-only")
	m := NewManager(sessions, &fakeAPI{})
	m.Initialize(context.Background())
	before := m.State()

	err := m.Login(context.Background(), "abc", "staff")
	var persistence *AuthPersistenceError
	require.ErrorAs(t, err, &persistence)
	assert.Equal(t, before, m.State())
}

func TestLogout_AlwaysClearsState(t *testing.T) {
	sessions := newFakeStore()
	m := NewManager(sessions, &fakeAPI{})
	require.NoError(t, m.Login(context.Background(), "abc", "staff"))

	sessions.clearErr = errors.New("locked")
	err := m.Logout(context.Background(), "savedFilter")
	assert.Error(t, err)
	assert.Equal(t, model.Session{}, m.State())
	require.Len(t, sessions.clearedAt, 1)
	assert.Equal(t, []string{store.KeyRefreshToken, "savedFilter"}, sessions.clearedAt[0])
}

func TestLoginWithPassword_UsesServerCredentials(t *testing.T) {
	sessions := newFakeStore()
	api := &fakeAPI{login: func(_ context.Context, username, password string) (model.AuthResult, error) {
		return model.AuthResult{AccessToken: "X", RefreshToken: "R", Role: "user"}, nil
	}}
	m := NewManager(sessions, api)
	m.Initialize(context.Background())

	require.NoError(t, m.LoginWithPassword(context.Background(), "alice", "secret"))
	assert.Equal(t, model.Session{IsLoggedIn: true, Token: "X", Role: "user"}, m.State())
	assert.Equal(t, "R", sessions.values[store.KeyRefreshToken])
	assert.False(t, m.Submitting())
}

func TestLoginWithPassword_ServerFailureLeavesStateUnchanged(t *testing.T) {
	api := &fakeAPI{login: func(context.Context, string, string) (model.AuthResult, error) {
		return model.AuthResult{}, &service.ServerError{Code: 401, Message: "Invalid username or password"}
	}}
	m := NewManager(newFakeStore(), api)
	m.Initialize(context.Background())

	err := m.LoginWithPassword(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid username or password", service.Message(err))
	assert.Equal(t, model.Session{}, m.State())
}

func TestLoginWithPassword_ValidatesBeforeNetwork(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(newFakeStore(), api)

	err := m.LoginWithPassword(context.Background(), "  ", "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"username", "password"}, validation.Fields)
	assert.Zero(t, api.calls)
}

func TestLoginWithPassword_RejectsDuplicateSubmission(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{login: func(context.Context, string, string) (model.AuthResult, error) {
		close(entered)
		<-release
		return model.AuthResult{AccessToken: "X", Role: "user"}, nil
	}}
	m := NewManager(newFakeStore(), api)

	done := make(chan error, 1)
	go func() {
		done <- m.LoginWithPassword(context.Background(), "alice", "secret")
	}()
	<-entered

	assert.True(t, m.Submitting())
	assert.ErrorIs(t, m.LoginWithPassword(context.Background(), "alice", "secret"), ErrBusy)
	assert.ErrorIs(t, m.Register(context.Background(), validRegistration()), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, m.State().IsLoggedIn)
}

func TestRegister_LogsInWithIssuedCredentials(t *testing.T) {
	sessions := newFakeStore()
	api := &fakeAPI{register: func(_ context.Context, registration model.Registration) (model.Credentials, error) {
		assert.Equal(t, "ann", registration.Username)
		return model.Credentials{Token: "T", Role: "user"}, nil
	}}
	m := NewManager(sessions, api)
	m.Initialize(context.Background())

	require.NoError(t, m.Register(context.Background(), validRegistration()))
	assert.Equal(t, model.Session{IsLoggedIn: true, Token: "T", Role: "user"}, m.State())
	assert.Equal(t, "T", sessions.values[store.KeyToken])
}

func TestRegister_FailureDoesNotMutate(t *testing.T) {
	sessions := newFakeStore()
	api := &fakeAPI{register: func(context.Context, model.Registration) (model.Credentials, error) {
		return model.Credentials{}, &service.ServerError{StatusCode: 409, Message: "Username already taken"}
	}}
	m := NewManager(sessions, api)
	m.Initialize(context.Background())

	err := m.Register(context.Background(), validRegistration())
	var registrationErr *RegistrationError
	require.ErrorAs(t, err, &registrationErr)
	assert.Equal(t, "Username already taken", registrationErr.Message)
	assert.Equal(t, model.Session{}, m.State())
	assert.Zero(t, sessions.saves)
}

func TestRegister_RequiresAllFields(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(newFakeStore(), api)

	registration := validRegistration()
	registration.LastName = ""
	registration.Email = " "
	err := m.Register(context.Background(), registration)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"email", "last name"}, validation.Fields)
	assert.Zero(t, api.calls)
}

func TestSubscribe_ObservesTransitionsInOrder(t *testing.T) {
	m := NewManager(newFakeStore(), &fakeAPI{})

	var seen []model.Session
	unsubscribe := m.Subscribe(func(s model.Session) {
		seen = append(seen, s)
	})

	m.Initialize(context.Background())
	require.NoError(t, m.Login(context.Background(), "abc", "staff"))
	require.NoError(t, m.Logout(context.Background()))
	unsubscribe()
	require.NoError(t, m.Login(context.Background(), "def", "user"))

	require.Len(t, seen, 4)
	assert.True(t, seen[0].IsLoading)
	assert.Equal(t, model.Session{}, seen[1])
	assert.True(t, seen[2].IsLoggedIn)
	assert.Equal(t, model.Session{}, seen[3])
}

func TestSubscribe_ListenerCanReadState(t *testing.T) {
	m := NewManager(newFakeStore(), &fakeAPI{})

	var tokens []string
	m.Subscribe(func(s model.Session) {
		assert.Equal(t, s, m.State())
		tokens = append(tokens, m.Token())
	})

	require.NoError(t, m.Login(context.Background(), "abc", "staff"))
	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, []string{"abc", ""}, tokens)
}

func TestCheckConnection(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(newFakeStore(), api)
	assert.True(t, m.CheckConnection(context.Background()))

	api.health = &service.NetworkError{Endpoint: "/health", Err: context.DeadlineExceeded}
	assert.False(t, m.CheckConnection(context.Background()))
}

func TestClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"iat": now.Add(-time.Hour).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	m := NewManager(newFakeStore(), &fakeAPI{}, WithClock(func() time.Time { return now }))
	_, ok := m.Claims()
	assert.False(t, ok)

	require.NoError(t, m.Login(context.Background(), signed, "user"))
	claims, ok := m.Claims()
	require.True(t, ok)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.False(t, m.TokenExpired())

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.True(t, m.TokenExpired())

	require.NoError(t, m.Login(context.Background(), "opaque-token", "user"))
	_, ok = m.Claims()
	assert.False(t, ok)
	assert.False(t, m.TokenExpired())
}

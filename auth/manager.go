package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ticket-wallet/logging"
	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/store"
)

// SessionStore is the persistence the manager writes credentials to.
type SessionStore interface {
	Load(ctx context.Context) (model.Credentials, bool, error)
	Save(ctx context.Context, token string, role string) error
	Clear(ctx context.Context, extraKeys ...string) error
	SaveRefreshToken(ctx context.Context, token string) error
}

// API is the remote side of authentication.
type API interface {
	Login(ctx context.Context, username string, password string) (model.AuthResult, error)
	Register(ctx context.Context, registration model.Registration) (model.Credentials, error)
	CheckHealth(ctx context.Context) error
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the session state machine:
//
//	Uninitialized -> Loading -> Authenticated | Unauthenticated
//	Authenticated <-> Unauthenticated (Login / Logout)
//
// Every transition is applied and every subscriber notified before the
// call that caused it returns.
type Manager struct {
	store  SessionStore
	api    API
	logger *slog.Logger
	now    func() time.Time

	// opMu serializes transitions so subscribers observe them in order.
	opMu sync.Mutex

	mu          sync.RWMutex
	state       model.Session
	initialized bool
	listeners   map[int]func(model.Session)
	nextID      int

	submitting atomic.Bool
}

func NewManager(sessions SessionStore, api API, opts ...Option) *Manager {
	m := &Manager{
		store:     sessions,
		api:       api,
		logger:    logging.Discard(),
		now:       time.Now,
		state:     model.StartingSession(),
		listeners: map[int]func(model.Session){},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Token() string {
	return m.State().Token
}

// Subscribe registers fn for state changes. The returned function
// removes it. fn runs synchronously inside the transition, before the
// triggering call returns; it may read State, Token or Claims but must
// not call Initialize, Login, LoginWithPassword, Register or Logout,
// which would deadlock. Hand the session to another goroutine to act
// on it.
func (m *Manager) Subscribe(fn func(model.Session)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Initialize reads persisted credentials once. A storage failure is
// treated as logged out. Later calls return without doing anything.
func (m *Manager) Initialize(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.mu.Unlock()

	m.transition(model.StartingSession())

	creds, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("session load failed, starting logged out", "error", err)
		m.transition(model.Session{})
		return
	}
	if !ok {
		m.logger.Debug("no persisted session")
		m.transition(model.Session{})
		return
	}
	m.logger.Info("session restored", "role", creds.Role)
	m.transition(model.AuthenticatedSession(creds.Token, creds.Role))
}

// Login persists the credentials and then marks the session logged in.
// If the write fails the in-memory state is unchanged.
func (m *Manager) Login(ctx context.Context, token string, role string) error {
	var missing []string
	if token == "" {
		missing = append(missing, "token")
	}
	if role == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.login(ctx, token, role)
}

func (m *Manager) login(ctx context.Context, token string, role string) error {
	if err := m.store.Save(ctx, token, role); err != nil {
		m.logger.Error("session save failed", "error", err)
		return &AuthPersistenceError{Err: err}
	}
	m.markInitialized()
	m.logger.Info("logged in", "role", role)
	m.transition(model.AuthenticatedSession(token, role))
	return nil
}

// LoginWithPassword authenticates against the API and then behaves like
// Login. A refresh token, when issued, is stored on a best-effort basis.
func (m *Manager) LoginWithPassword(ctx context.Context, username string, password string) error {
	var missing []string
	if strings.TrimSpace(username) == "" {
		missing = append(missing, "username")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	if !m.submitting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.submitting.Store(false)

	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		m.logger.Warn("login rejected", "error", err)
		return err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if err := m.login(ctx, result.AccessToken, result.Role); err != nil {
		return err
	}
	if err := m.store.SaveRefreshToken(ctx, result.RefreshToken); err != nil {
		m.logger.Warn("refresh token not saved", "error", err)
	}
	return nil
}

// Register creates an account and logs in with the issued credentials.
// Nothing changes locally when the server refuses.
func (m *Manager) Register(ctx context.Context, registration model.Registration) error {
	if missing := registration.Missing(); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	if !m.submitting.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer m.submitting.Store(false)

	creds, err := m.api.Register(ctx, registration)
	if err != nil {
		m.logger.Warn("registration rejected", "error", err)
		return &RegistrationError{Message: service.Message(err), Err: err}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.login(ctx, creds.Token, creds.Role)
}

// Logout clears persisted credentials (plus extraKeys and the refresh
// token) and always ends logged out. A storage failure is logged and
// returned for information only.
func (m *Manager) Logout(ctx context.Context, extraKeys ...string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	keys := append([]string{store.KeyRefreshToken}, extraKeys...)
	err := m.store.Clear(ctx, keys...)
	if err != nil {
		m.logger.Error("session clear failed, logging out anyway", "error", err)
	}
	m.markInitialized()
	m.logger.Info("logged out")
	m.transition(model.Session{})
	return err
}

// CheckConnection reports whether the API answers its health probe.
func (m *Manager) CheckConnection(ctx context.Context) bool {
	if err := m.api.CheckHealth(ctx); err != nil {
		m.logger.Warn("connection check failed", "error", err)
		return false
	}
	return true
}

// Submitting reports whether a login or registration is in flight.
func (m *Manager) Submitting() bool {
	return m.submitting.Load()
}

func (m *Manager) markInitialized() {
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
}

// transition must be called with opMu held.
func (m *Manager) transition(next model.Session) {
	m.mu.Lock()
	m.state = next
	listeners := make([]func(model.Session), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

// Package devserver is an in-memory stand-in for the ticketing API. It
// serves the same endpoints the client consumes, for local development
// and end-to-end tests.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"ticket-wallet/logging"
	"ticket-wallet/model"
)

const (
	defaultPageSize = 20
	defaultTokenTTL = time.Hour
	defaultRole     = "user"
)

type Config struct {
	Secret     string
	TokenTTL   time.Duration
	PageSize   int
	BcryptCost int
	Logger     *slog.Logger
}

type user struct {
	username     string
	email        string
	firstName    string
	lastName     string
	passwordHash []byte
	role         string
}

type Server struct {
	cfg  Config
	echo *echo.Echo
	now  func() time.Time

	mu      sync.RWMutex
	users   map[string]*user
	tickets map[string][]model.Ticket

	registry *prometheus.Registry
	metrics  *metrics
}

func New(cfg Config) *Server {
	if cfg.Secret == "" {
		cfg.Secret = "ticket-wallet-dev-secret"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		echo:     echo.New(),
		now:      time.Now,
		users:    map[string]*user{},
		tickets:  map[string][]model.Ticket{},
		registry: registry,
		metrics:  newMetrics(registry),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.Use(s.observe)
	s.echo.GET("/health", s.health)
	s.echo.POST("/auth/login", s.login)
	s.echo.POST("/auth/register", s.register)
	s.echo.GET("/ticket-purchase/all_of_account", s.listTickets, s.requireBearer)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.cfg.Logger.Info("dev api listening", "addr", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// AddUser registers an account with count generated tickets.
func (s *Server) AddUser(username string, password string, role string, count int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if role == "" {
		role = defaultRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.users[key]; exists {
		return fmt.Errorf("user %q already exists", username)
	}
	s.users[key] = &user{username: username, passwordHash: hash, role: role}
	s.tickets[key] = GenerateTickets(count, s.now())
	return nil
}

// Tickets returns a copy of the tickets owned by username.
func (s *Server) Tickets(username string) []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Ticket(nil), s.tickets[strings.ToLower(username)]...)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": http.StatusBadRequest, "message": "invalid request body"})
	}

	s.mu.RLock()
	account, ok := s.users[strings.ToLower(strings.TrimSpace(req.UserName))]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"code":    http.StatusUnauthorized,
			"message": "Invalid username or password",
		})
	}

	access, err := s.issueToken(account)
	if err != nil {
		return err
	}
	refresh, err := s.issueRefreshToken(account)
	if err != nil {
		return err
	}
	s.cfg.Logger.Debug("dev api login", "user", account.username)
	return c.JSON(http.StatusOK, echo.Map{
		"code":    http.StatusOK,
		"message": "Login successful",
		"result": echo.Map{
			"accessToken":  access,
			"refreshToken": refresh,
			"roleName":     account.role,
			"status":       "ACTIVE",
		},
	})
}

func (s *Server) register(c echo.Context) error {
	var req model.Registration
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}
	if missing := req.Missing(); len(missing) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Missing required fields: " + strings.Join(missing, ", ")})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	key := strings.ToLower(strings.TrimSpace(req.Username))
	if _, exists := s.users[key]; exists {
		s.mu.Unlock()
		return c.JSON(http.StatusConflict, echo.Map{"message": "Username already taken"})
	}
	account := &user{
		username:     strings.TrimSpace(req.Username),
		email:        req.Email,
		firstName:    req.FirstName,
		lastName:     req.LastName,
		passwordHash: hash,
		role:         defaultRole,
	}
	s.users[key] = account
	s.tickets[key] = nil
	s.mu.Unlock()

	token, err := s.issueToken(account)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token, "role": account.role})
}

func (s *Server) listTickets(c echo.Context) error {
	username, _ := c.Get("username").(string)

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": http.StatusBadRequest, "message": "page must be a positive integer"})
		}
		page = parsed
	}
	dir, err := model.ParseSortDirection(c.QueryParam("sortDirection"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": http.StatusBadRequest, "message": err.Error()})
	}

	s.mu.RLock()
	all := append([]model.Ticket(nil), s.tickets[strings.ToLower(username)]...)
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if dir == model.SortAsc {
			return all[i].EventDate < all[j].EventDate
		}
		return all[i].EventDate > all[j].EventDate
	})

	size := s.cfg.PageSize
	totalPages := (len(all) + size - 1) / size
	start := (page - 1) * size
	items := []model.Ticket{}
	if start < len(all) {
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		items = all[start:end]
	}

	return c.JSON(http.StatusOK, echo.Map{
		"code":    http.StatusOK,
		"message": "success",
		"result": echo.Map{
			"items":         items,
			"currentPage":   page,
			"totalPages":    totalPages,
			"totalElements": len(all),
			"pageSize":      size,
		},
	})
}

func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": http.StatusUnauthorized, "message": "missing bearer token"})
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, echo.ErrUnauthorized
			}
			return []byte(s.cfg.Secret), nil
		}, jwt.WithTimeFunc(s.now))
		if err != nil || !token.Valid {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": http.StatusUnauthorized, "message": "invalid token"})
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": http.StatusUnauthorized, "message": "invalid claims"})
		}
		if kind, _ := claims["typ"].(string); kind != "access" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": http.StatusUnauthorized, "message": "not an access token"})
		}
		subject, _ := claims.GetSubject()
		c.Set("username", subject)
		return next(c)
	}
}

func (s *Server) issueToken(account *user) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":  account.username,
		"role": account.role,
		"typ":  "access",
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.TokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

func (s *Server) issueRefreshToken(account *user) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub": account.username,
		"typ": "refresh",
		"iat": now.Unix(),
		"exp": now.Add(30 * 24 * time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

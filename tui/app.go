package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ticket-wallet/auth"
	"ticket-wallet/logging"
	"ticket-wallet/model"
	"ticket-wallet/nav"
	"ticket-wallet/service"
	"ticket-wallet/store"
	"ticket-wallet/tickets"
)

type appState int

const (
	stateBooting appState = iota
	stateLogin
	stateRegister
	stateTickets
	stateTicketDetail
	stateProfile
	stateConfirmLogout
	stateError
)

const (
	loginUsername = iota
	loginPassword
)

const (
	registerUsername = iota
	registerEmail
	registerPassword
	registerFirstName
	registerLastName
)

type connection int

const (
	connectionUnknown connection = iota
	connectionOnline
	connectionOffline
)

type Options struct {
	Auth    *auth.Manager
	Tickets *tickets.Controller
	Sort    model.SortDirection
	Logger  *slog.Logger
}

type appModel struct {
	auth    *auth.Manager
	tickets *tickets.Controller
	logger  *slog.Logger

	sessions    <-chan model.Session
	unsubscribe func()

	state     appState
	lastState appState
	route     nav.Route
	tab       nav.Tab
	err       error
	notice    string
	online    connection

	width  int
	height int

	login      form
	remember   bool
	recent     []string
	recentNext int
	register   form
	formErr    string
	submitting bool

	ticketList   list.Model
	search       string
	statusFilter *model.TicketStatus
	sort         model.SortDirection
	fetching     bool
	loadingMore  bool
	selected     model.Ticket
	showQR       bool

	spinner spinner.Model
}

type errMsg struct {
	err         error
	returnState appState
}

type sessionMsg struct {
	session model.Session
	feed    bool
}

type connectionMsg struct {
	ok bool
}

type authDoneMsg struct {
	err error
}

type ticketsMsg struct {
	more bool
	ran  bool
	err  error
}

type logoutMsg struct {
	err error
}

func New(opts Options) tea.Model {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	sort := opts.Sort
	if sort == "" {
		sort = model.SortDesc
	}

	m := appModel{
		auth:    opts.Auth,
		tickets: opts.Tickets,
		logger:  logger,
		state:   stateBooting,
		route:   nav.RouteLoading,
		tab:     nav.TabTickets,
		sort:    sort,
	}
	m.sessions, m.unsubscribe = sessionFeed(opts.Auth)

	m.login = newForm(
		formField{label: "Username", placeholder: "your username"},
		formField{label: "Password", placeholder: "password", secret: true},
	)
	m.register = newForm(
		formField{label: "Username", placeholder: "pick a username"},
		formField{label: "Email", placeholder: "you@example.com"},
		formField{label: "Password", placeholder: "password", secret: true},
		formField{label: "First name", placeholder: "first name"},
		formField{label: "Last name", placeholder: "last name"},
	)
	if prefs, err := store.LoadPreferences(); err == nil {
		if prefs.RememberMe && prefs.SavedUsername != "" {
			m.login.setValue(loginUsername, prefs.SavedUsername)
			m.remember = true
		}
		m.recent = prefs.RecentUsernames
	}

	m.ticketList = newList("My Tickets")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	m.spinner = sp

	return m
}

// Run starts the interactive program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts).(appModel)
	defer m.unsubscribe()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// sessionFeed forwards manager transitions into a channel the program
// drains. Only the newest unread session is kept.
func sessionFeed(manager *auth.Manager) (<-chan model.Session, func()) {
	ch := make(chan model.Session, 1)
	unsubscribe := manager.Subscribe(func(s model.Session) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, unsubscribe
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		listenSessions(m.sessions),
		m.initializeCmd(),
		m.checkConnectionCmd(),
		m.spinner.Tick,
	)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLists()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.handleFilterInput(msg) {
			return m, nil
		}
		m, cmd, handled := m.handleKey(msg)
		if handled {
			return m, cmd
		}
		// fallthrough to component update
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.isLoadingState() {
			return m, cmd
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.lastState = msg.returnState
		m.state = stateError
		return m, nil

	case sessionMsg:
		cmd := m.applyRoute(nav.Decide(msg.session))
		if msg.feed {
			return m, tea.Batch(cmd, listenSessions(m.sessions))
		}
		return m, cmd

	case connectionMsg:
		if msg.ok {
			m.online = connectionOnline
		} else {
			m.online = connectionOffline
		}
		return m, nil

	case authDoneMsg:
		m.submitting = false
		if msg.err != nil {
			if errors.Is(msg.err, auth.ErrBusy) {
				return m, nil
			}
			m.formErr = authErrorText(msg.err)
			var networkErr *service.NetworkError
			if errors.As(msg.err, &networkErr) {
				return m, m.checkConnectionCmd()
			}
			return m, nil
		}
		m.formErr = ""
		m.login.clear(loginPassword)
		m.register.clear()
		if prefs, err := store.LoadPreferences(); err == nil {
			m.recent = prefs.RecentUsernames
			m.recentNext = 0
		}
		return m, m.applyRoute(nav.Decide(m.auth.State()))

	case ticketsMsg:
		if msg.more {
			m.loadingMore = false
		} else {
			m.fetching = false
		}
		if m.route != nav.RouteApp {
			return m, nil
		}
		if msg.err != nil {
			if service.IsUnauthorized(msg.err) || errors.Is(msg.err, tickets.ErrNotAuthenticated) {
				m.notice = "Your session has expired, please log in again"
				return m, m.logoutCmd()
			}
			m.notice = service.Message(msg.err)
			return m, nil
		}
		m.notice = ""
		if !msg.ran {
			return m, nil
		}
		m.refreshTicketItems()
		return m, nil

	case logoutMsg:
		if msg.err != nil {
			m.notice = "Logged out, but saved credentials could not be removed"
		}
		return m, m.applyRoute(nav.Decide(m.auth.State()))
	}

	var cmd tea.Cmd
	switch m.state {
	case stateLogin:
		cmd = m.login.update(msg)
	case stateRegister:
		cmd = m.register.update(msg)
	case stateTickets:
		m.ticketList, cmd = m.ticketList.Update(msg)
		if more := m.loadMoreIfAtEnd(); more != nil {
			return m, tea.Batch(cmd, more)
		}
	}
	return m, cmd
}

func (m appModel) View() string {
	header := m.headerView()
	switch m.state {
	case stateBooting:
		return header + "\n\n" + m.loadingView()
	case stateLogin:
		return header + "\n\n" + m.loginView()
	case stateRegister:
		return header + "\n\n" + m.registerView()
	case stateTickets:
		return header + "\n\n" + m.ticketsView()
	case stateTicketDetail:
		return header + "\n\n" + m.ticketDetailView()
	case stateProfile:
		return header + "\n\n" + m.profileView()
	case stateConfirmLogout:
		return header + "\n\n" + m.confirmLogoutView()
	case stateError:
		return header + "\n\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.err.Error()) + "\n\n" + hint("Press esc to go back or ctrl+c to quit.")
	default:
		return header
	}
}

func (m appModel) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Render("Ticket Wallet")
	sub := []string{}
	if m.route == nav.RouteApp {
		sub = append(sub, fmt.Sprintf("Tab: %s", m.tab))
		sub = append(sub, fmt.Sprintf("Role: %s", roleLabel(m.auth.State().Role)))
	}
	switch m.online {
	case connectionOnline:
		sub = append(sub, "API: online")
	case connectionOffline:
		sub = append(sub, "API: offline")
	}
	if m.state == stateTickets {
		sub = append(sub, fmt.Sprintf("Sort: %s", m.sort))
		if m.statusFilter != nil {
			sub = append(sub, fmt.Sprintf("Status: %s", m.statusFilter.Label()))
		}
	}
	meta := strings.Join(sub, " • ")
	if meta != "" {
		meta = "\n" + lipgloss.NewStyle().Faint(true).Render(meta)
	}

	hints := "ctrl+c quit"
	switch m.state {
	case stateLogin:
		hints = "ctrl+c quit • tab next field • enter sign in • ctrl+t remember me • ctrl+u recent user • ctrl+n create account"
	case stateRegister:
		hints = "ctrl+c quit • tab next field • enter create account • esc back to sign in"
	case stateTickets:
		hints = "ctrl+c quit • type to search • enter details • ctrl+s status • ctrl+o sort • ctrl+r refresh • tab profile"
	case stateTicketDetail:
		hints = "ctrl+c quit • esc back • enter toggle QR code"
	case stateProfile:
		hints = "ctrl+c quit • tab tickets • l log out"
	case stateConfirmLogout:
		hints = "y log out • n cancel"
	}
	filterLine := ""
	if m.state == stateTickets && m.search != "" {
		filterLine = "\n" + hint(fmt.Sprintf("Filter: %s", m.search))
	}
	return title + meta + filterLine + "\n" + hint(hints)
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch m.state {
	case stateLogin:
		return m.handleLoginKey(msg)
	case stateRegister:
		return m.handleRegisterKey(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit, true
	case "esc":
		if m.state == stateTickets && m.search != "" {
			m.search = ""
			m.refreshTicketItems()
			return m, nil, true
		}
		next, cmd := m.goBack()
		return next, cmd, true
	case "tab":
		if m.state == stateTickets || m.state == stateProfile {
			m.tab = m.tab.Next()
			if m.tab == nav.TabProfile {
				m.state = stateProfile
			} else {
				m.state = stateTickets
			}
			return m, nil, true
		}
	case "ctrl+r":
		if m.state == stateTickets && !m.fetching {
			m.fetching = true
			return m, tea.Batch(m.loadTicketsCmd(true), m.spinner.Tick), true
		}
	case "ctrl+s":
		if m.state == stateTickets {
			m.statusFilter = nextStatusFilter(m.statusFilter)
			m.refreshTicketItems()
			return m, nil, true
		}
	case "ctrl+o":
		if m.state == stateTickets {
			if m.sort == model.SortDesc {
				m.sort = model.SortAsc
			} else {
				m.sort = model.SortDesc
			}
			m.fetching = true
			return m, tea.Batch(m.loadTicketsCmd(false), m.spinner.Tick), true
		}
	case "l", "ctrl+l":
		if m.state == stateProfile {
			m.state = stateConfirmLogout
			return m, nil, true
		}
	case "y":
		if m.state == stateConfirmLogout {
			return m, m.logoutCmd(), true
		}
	case "n":
		if m.state == stateConfirmLogout {
			m.state = stateProfile
			return m, nil, true
		}
	case "enter", " ":
		switch m.state {
		case stateTickets:
			if msg.String() != "enter" {
				break
			}
			item, ok := m.ticketList.SelectedItem().(ticketItem)
			if !ok {
				return m, nil, true
			}
			m.selected = item.ticket
			m.showQR = false
			m.state = stateTicketDetail
			return m, nil, true
		case stateTicketDetail:
			if !m.showQR {
				if _, err := RenderQR(m.selected.QRPayload()); err != nil {
					return m, errCmd(err, stateTicketDetail), true
				}
			}
			m.showQR = !m.showQR
			return m, nil, true
		case stateConfirmLogout:
			return m, m.logoutCmd(), true
		}
	}
	return m, nil, false
}

func (m appModel) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "down":
		return m, m.login.next(), true
	case "shift+tab", "up":
		return m, m.login.prev(), true
	case "ctrl+t":
		m.remember = !m.remember
		return m, nil, true
	case "ctrl+u":
		if len(m.recent) == 0 {
			return m, nil, true
		}
		m.login.setValue(loginUsername, m.recent[m.recentNext%len(m.recent)])
		m.recentNext++
		return m, m.login.setFocus(loginPassword), true
	case "ctrl+n":
		m.formErr = ""
		m.state = stateRegister
		return m, m.register.setFocus(registerUsername), true
	case "enter":
		if !m.login.onLast() {
			return m, m.login.next(), true
		}
		if m.submitting {
			return m, nil, true
		}
		username := strings.TrimSpace(m.login.value(loginUsername))
		password := m.login.value(loginPassword)
		m.submitting = true
		m.formErr = ""
		return m, tea.Batch(m.loginCmd(username, password, m.remember), m.spinner.Tick), true
	}
	return m, nil, false
}

func (m appModel) handleRegisterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "down":
		return m, m.register.next(), true
	case "shift+tab", "up":
		return m, m.register.prev(), true
	case "esc":
		m.formErr = ""
		m.state = stateLogin
		return m, m.login.setFocus(m.login.focus), true
	case "enter":
		if !m.register.onLast() {
			return m, m.register.next(), true
		}
		if m.submitting {
			return m, nil, true
		}
		registration := model.Registration{
			Username:  strings.TrimSpace(m.register.value(registerUsername)),
			Email:     strings.TrimSpace(m.register.value(registerEmail)),
			Password:  m.register.value(registerPassword),
			FirstName: strings.TrimSpace(m.register.value(registerFirstName)),
			LastName:  strings.TrimSpace(m.register.value(registerLastName)),
		}
		m.submitting = true
		m.formErr = ""
		return m, tea.Batch(m.registerCmd(registration), m.spinner.Tick), true
	}
	return m, nil, false
}

func (m appModel) goBack() (tea.Model, tea.Cmd) {
	switch m.state {
	case stateTicketDetail:
		m.state = stateTickets
		m.showQR = false
	case stateProfile:
		m.tab = nav.TabTickets
		m.state = stateTickets
	case stateConfirmLogout:
		m.state = stateProfile
	case stateError:
		m.state = m.lastState
	default:
		return m, nil
	}
	return m, nil
}

// applyRoute moves the UI to the flow chosen for the current session.
// Repeated routes are ignored so duplicate session messages are safe.
func (m *appModel) applyRoute(route nav.Route) tea.Cmd {
	if route == m.route {
		return nil
	}
	m.route = route
	m.submitting = false
	switch route {
	case nav.RouteLoading:
		m.state = stateBooting
		return m.spinner.Tick
	case nav.RouteAuth:
		m.tickets.Reset()
		m.resetTicketView()
		m.tab = nav.TabTickets
		m.state = stateLogin
		m.formErr = m.notice
		m.notice = ""
		if m.login.value(loginUsername) != "" {
			return m.login.setFocus(loginPassword)
		}
		return m.login.setFocus(loginUsername)
	case nav.RouteApp:
		m.tab = nav.TabTickets
		m.state = stateTickets
		m.fetching = true
		return tea.Batch(m.loadTicketsCmd(false), m.spinner.Tick)
	}
	return nil
}

func (m *appModel) resetTicketView() {
	m.ticketList.SetItems([]list.Item{})
	m.ticketList.Select(0)
	m.search = ""
	m.statusFilter = nil
	m.selected = model.Ticket{}
	m.showQR = false
	m.fetching = false
	m.loadingMore = false
}

// handleFilterInput routes typed text into the ticket search while the
// ticket list is shown.
func (m *appModel) handleFilterInput(msg tea.KeyMsg) bool {
	if m.state != stateTickets {
		return false
	}
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) == 0 || msg.Alt {
			return false
		}
		m.search += string(msg.Runes)
		m.refreshTicketItems()
		return true
	case tea.KeySpace:
		if m.search == "" {
			return false
		}
		m.search += " "
		m.refreshTicketItems()
		return true
	case tea.KeyBackspace, tea.KeyDelete:
		if m.search == "" {
			return false
		}
		m.search = trimLastRune(m.search)
		m.refreshTicketItems()
		return true
	default:
		return false
	}
}

func trimLastRune(value string) string {
	runes := []rune(value)
	if len(runes) <= 1 {
		return ""
	}
	return string(runes[:len(runes)-1])
}

func (m appModel) isLoadingState() bool {
	return m.state == stateBooting ||
		m.submitting ||
		(m.state == stateTickets && (m.fetching || m.loadingMore))
}

func (m appModel) loadingView() string {
	return fmt.Sprintf("%s %s\n\n%s", m.spinner.View(), "Restoring session", hint("Reading saved credentials..."))
}

func (m appModel) loginView() string {
	remember := "[ ] Remember me"
	if m.remember {
		remember = "[x] Remember me"
	}
	parts := []string{
		lipgloss.NewStyle().Bold(true).Render("Sign in"),
		"",
		m.login.view(),
		"",
		remember,
	}
	if len(m.recent) > 0 {
		parts = append(parts, hint("Recent: "+strings.Join(m.recent, ", ")))
	}
	parts = append(parts, m.formStatus()...)
	return strings.Join(parts, "\n")
}

func (m appModel) registerView() string {
	parts := []string{
		lipgloss.NewStyle().Bold(true).Render("Create account"),
		"",
		m.register.view(),
	}
	parts = append(parts, m.formStatus()...)
	return strings.Join(parts, "\n")
}

func (m appModel) formStatus() []string {
	var lines []string
	if m.submitting {
		lines = append(lines, "", m.spinner.View()+" Submitting...")
	}
	if m.formErr != "" {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.formErr))
	}
	return lines
}

func (m appModel) profileView() string {
	session := m.auth.State()
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render("Profile"),
		"",
		fmt.Sprintf("Role:     %s", roleLabel(session.Role)),
	}
	if claims, ok := m.auth.Claims(); ok {
		if claims.Subject != "" {
			lines = append(lines, fmt.Sprintf("User:     %s", claims.Subject))
		}
		if !claims.ExpiresAt.IsZero() {
			expiry := claims.ExpiresAt.Local().Format("2006-01-02 15:04")
			if m.auth.TokenExpired() {
				expiry += " (expired)"
			}
			lines = append(lines, fmt.Sprintf("Session:  expires %s", expiry))
		}
	}
	if m.notice != "" {
		lines = append(lines, "", lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(m.notice))
	}
	lines = append(lines, "", hint("Press l to log out."))
	return strings.Join(lines, "\n")
}

func (m appModel) confirmLogoutView() string {
	panel := lipgloss.NewStyle().
		Padding(1, 3).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63")).
		Render(strings.Join([]string{
			lipgloss.NewStyle().Bold(true).Render("Logout"),
			"",
			"Are you sure you want to logout?",
			"",
			hint("y / enter log out • n / esc cancel"),
		}, "\n"))
	if m.width > 0 {
		panel = lipgloss.PlaceHorizontal(m.width, lipgloss.Center, panel)
	}
	return panel
}

func (m *appModel) resizeLists() {
	if m.width == 0 || m.height == 0 {
		return
	}
	h := m.height - 8
	if h < 6 {
		h = 6
	}
	m.ticketList.SetSize(m.width, h)
}

func newList(title string) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = title
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	return l
}

func hint(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}

func errCmd(err error, returnState appState) tea.Cmd {
	return func() tea.Msg {
		return errMsg{err: err, returnState: returnState}
	}
}

func roleLabel(role string) string {
	if role == "" {
		return "User"
	}
	return role
}

func authErrorText(err error) string {
	var validation *auth.ValidationError
	if errors.As(err, &validation) {
		return "Please fill in " + strings.Join(validation.Fields, ", ")
	}
	var registration *auth.RegistrationError
	if errors.As(err, &registration) {
		return registration.Error()
	}
	var persistence *auth.AuthPersistenceError
	if errors.As(err, &persistence) {
		return "Signed in, but the session could not be saved on this device"
	}
	return service.Message(err)
}

func listenSessions(ch <-chan model.Session) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		session, ok := <-ch
		if !ok {
			return nil
		}
		return sessionMsg{session: session, feed: true}
	}
}

func (m appModel) initializeCmd() tea.Cmd {
	return func() tea.Msg {
		m.auth.Initialize(context.Background())
		return sessionMsg{session: m.auth.State()}
	}
}

func (m appModel) checkConnectionCmd() tea.Cmd {
	return func() tea.Msg {
		return connectionMsg{ok: m.auth.CheckConnection(context.Background())}
	}
}

func (m appModel) loginCmd(username string, password string, remember bool) tea.Cmd {
	return func() tea.Msg {
		err := m.auth.LoginWithPassword(context.Background(), username, password)
		if err == nil {
			if prefErr := store.RememberUsername(username, remember); prefErr != nil {
				m.logger.Warn("preferences not saved", "error", prefErr)
			}
		}
		return authDoneMsg{err: err}
	}
}

func (m appModel) registerCmd(registration model.Registration) tea.Cmd {
	return func() tea.Msg {
		return authDoneMsg{err: m.auth.Register(context.Background(), registration)}
	}
}

func (m appModel) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		return logoutMsg{err: m.auth.Logout(context.Background())}
	}
}

// Package nav decides which top-level flow to present for a session.
package nav

import "ticket-wallet/model"

type Route int

const (
	RouteLoading Route = iota
	RouteAuth
	RouteApp
)

func (r Route) String() string {
	switch r {
	case RouteLoading:
		return "loading"
	case RouteAuth:
		return "auth"
	case RouteApp:
		return "app"
	}
	return "unknown"
}

// Decide maps a session to a route. Loading wins over everything so no
// flow is shown before persisted credentials have been read.
func Decide(session model.Session) Route {
	switch {
	case session.IsLoading:
		return RouteLoading
	case session.IsLoggedIn:
		return RouteApp
	default:
		return RouteAuth
	}
}

// Tab is a screen of the authenticated app shell.
type Tab int

const (
	TabTickets Tab = iota
	TabProfile
)

func (t Tab) String() string {
	switch t {
	case TabTickets:
		return "Tickets"
	case TabProfile:
		return "Profile"
	}
	return "Unknown"
}

// Next cycles through the shell's tabs.
func (t Tab) Next() Tab {
	if t == TabProfile {
		return TabTickets
	}
	return t + 1
}

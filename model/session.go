package model

import "strings"

// Session is the in-memory authentication state. IsLoggedIn holds only
// when both Token and Role are non-empty.
type Session struct {
	IsLoggedIn bool
	Token      string
	Role       string
	IsLoading  bool
}

// StartingSession is the state before persisted credentials are read.
func StartingSession() Session {
	return Session{IsLoading: true}
}

// AuthenticatedSession builds a logged-in session. Empty credentials
// produce a logged-out session instead.
func AuthenticatedSession(token string, role string) Session {
	if token == "" || role == "" {
		return Session{}
	}
	return Session{IsLoggedIn: true, Token: token, Role: role}
}

type Credentials struct {
	Token string
	Role  string
}

func (c Credentials) Complete() bool {
	return c.Token != "" && c.Role != ""
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Role         string
	Status       string
}

type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Missing returns the names of empty required fields.
func (r Registration) Missing() []string {
	var missing []string
	fields := []struct {
		name  string
		value string
	}{
		{"username", r.Username},
		{"email", r.Email},
		{"password", r.Password},
		{"first name", r.FirstName},
		{"last name", r.LastName},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

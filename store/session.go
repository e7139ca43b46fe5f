package store

import (
	"context"
	"fmt"

	"ticket-wallet/model"
)

const (
	KeyToken        = "token"
	KeyRole         = "role"
	KeyRefreshToken = "refreshToken"
)

// AuthStorageError reports a failed read or write of the persisted session.
type AuthStorageError struct {
	Op  string
	Err error
}

func (e *AuthStorageError) Error() string {
	if e == nil || e.Err == nil {
		return "session storage error"
	}
	return fmt.Sprintf("session storage %s: %v", e.Op, e.Err)
}

func (e *AuthStorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SessionStore persists the access token and role as a single unit.
type SessionStore struct {
	kv KV
}

func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Load returns the persisted credentials. ok is false unless both the
// token and the role are present.
func (s *SessionStore) Load(ctx context.Context) (model.Credentials, bool, error) {
	token, tokenOK, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		return model.Credentials{}, false, &AuthStorageError{Op: "load", Err: err}
	}
	role, roleOK, err := s.kv.Get(ctx, KeyRole)
	if err != nil {
		return model.Credentials{}, false, &AuthStorageError{Op: "load", Err: err}
	}
	creds := model.Credentials{Token: token, Role: role}
	if !tokenOK || !roleOK || !creds.Complete() {
		return model.Credentials{}, false, nil
	}
	return creds, true, nil
}

func (s *SessionStore) Save(ctx context.Context, token string, role string) error {
	err := s.kv.SetMany(ctx, map[string]string{
		KeyToken: token,
		KeyRole:  role,
	})
	if err != nil {
		return &AuthStorageError{Op: "save", Err: err}
	}
	return nil
}

// Clear removes the token, the role and any extra keys in one call.
func (s *SessionStore) Clear(ctx context.Context, extraKeys ...string) error {
	keys := append([]string{KeyToken, KeyRole}, extraKeys...)
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return &AuthStorageError{Op: "clear", Err: err}
	}
	return nil
}

func (s *SessionStore) SaveRefreshToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.kv.SetMany(ctx, map[string]string{KeyRefreshToken: token}); err != nil {
		return &AuthStorageError{Op: "save refresh token", Err: err}
	}
	return nil
}

func (s *SessionStore) RefreshToken(ctx context.Context) (string, error) {
	token, _, err := s.kv.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", &AuthStorageError{Op: "load refresh token", Err: err}
	}
	return token, nil
}

func (s *SessionStore) Close() error {
	return s.kv.Close()
}

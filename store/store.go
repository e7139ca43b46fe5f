package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	appDirName         = "ticket-wallet"
	preferencesFile    = "preferences.json"
	maxRecentUsernames = 5
)

type document[T any] struct {
	UpdatedAt time.Time `json:"updated_at"`
	Data      T         `json:"data"`
}

// Preferences holds login-form conveniences. They live outside the
// session record and survive logout.
type Preferences struct {
	SavedUsername   string   `json:"saved_username"`
	RememberMe      bool     `json:"remember_me"`
	RecentUsernames []string `json:"recent_usernames"`
}

func LoadPreferences() (Preferences, error) {
	path, err := configPath(preferencesFile)
	if err != nil {
		return Preferences{}, err
	}
	doc, err := loadDocument[Preferences](path)
	if err != nil {
		return Preferences{}, errors.New("invalid preferences format")
	}
	return doc.Data, nil
}

func SavePreferences(prefs Preferences) error {
	path, err := configPath(preferencesFile)
	if err != nil {
		return err
	}
	return saveDocument(path, prefs)
}

// RememberUsername records a successful login. With remember set the
// name prefills the login form next time; otherwise any saved name is
// forgotten. The name is always pushed to the recent list.
func RememberUsername(username string, remember bool) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}

	prefs, _ := LoadPreferences()
	prefs.RememberMe = remember
	if remember {
		prefs.SavedUsername = username
	} else {
		prefs.SavedUsername = ""
	}

	next := []string{username}
	for _, existing := range prefs.RecentUsernames {
		if existing == "" || strings.EqualFold(existing, username) {
			continue
		}
		next = append(next, existing)
		if len(next) >= maxRecentUsernames {
			break
		}
	}
	prefs.RecentUsernames = next

	return SavePreferences(prefs)
}

// ForgetUsername clears the saved name but keeps the recent list.
func ForgetUsername() error {
	prefs, err := LoadPreferences()
	if err != nil {
		return err
	}
	prefs.SavedUsername = ""
	prefs.RememberMe = false
	return SavePreferences(prefs)
}

func loadDocument[T any](path string) (document[T], error) {
	var doc document[T]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func saveDocument[T any](path string, data T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	doc := document[T]{
		UpdatedAt: time.Now(),
		Data:      data,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// ConfigDir is the per-user directory holding configuration and the
// session database.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

// CacheDir is the per-user directory for logs and other disposable files.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

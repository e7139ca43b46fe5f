// Package config loads ticket-wallet settings from YAML, a .env file and
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/store"
)

const (
	EnvConfig    = "TICKET_WALLET_CONFIG"
	EnvAPIURL    = "TICKET_WALLET_API_URL"
	EnvStorage   = "TICKET_WALLET_STORAGE"
	EnvLogLevel  = "TICKET_WALLET_LOG_LEVEL"
	EnvRedisAddr = "TICKET_WALLET_REDIS_ADDR"
	EnvInsecure  = "TICKET_WALLET_INSECURE"

	defaultFileName = "config.yaml"
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Tickets TicketsConfig `yaml:"tickets"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

type APIConfig struct {
	BaseURL            string `yaml:"base_url"`
	Timeout            string `yaml:"timeout"`
	HealthTimeout      string `yaml:"health_timeout"`
	MaxAttempts        int    `yaml:"max_attempts"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	UserAgent          string `yaml:"user_agent"`
}

type StorageConfig struct {
	// Backend is one of sqlite, redis or memory.
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
	Seal        bool   `yaml:"seal"`
	KeyFile     string `yaml:"key_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File defaults to ticket-wallet.log in the user cache directory.
	// "-" writes to stderr.
	File string `yaml:"file"`
}

type TicketsConfig struct {
	Sort string `yaml:"sort"`
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            service.DefaultBaseURL,
			Timeout:            service.DefaultTimeout.String(),
			HealthTimeout:      service.DefaultHealthTimeout.String(),
			MaxAttempts:        1,
			InsecureSkipVerify: true,
			UserAgent:          "ticket-wallet",
		},
		Storage: StorageConfig{
			Backend:     store.BackendSQLite,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ticket-wallet:",
			Seal:        true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tickets: TicketsConfig{
			Sort: string(model.SortDesc),
		},
	}
}

// Load resolves the configuration file (explicit path, then
// TICKET_WALLET_CONFIG, then the user config directory), loads .env from
// the working directory and applies environment overrides. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		if fromEnv := os.Getenv(EnvConfig); fromEnv != "" {
			path = fromEnv
			explicit = true
		}
	}
	if !explicit {
		dir, err := store.ConfigDir()
		if err == nil {
			path = filepath.Join(dir, defaultFileName)
		}
	}

	cfg := Default()
	if path != "" {
		err := cfg.loadFile(path)
		switch {
		case err == nil:
			cfg.Source = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv(EnvInsecure); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.API.InsecureSkipVerify = parsed
		}
	}
}

func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.API.BaseURL) == "" {
		problems = append(problems, "api.base_url is required")
	}
	if _, err := parseDuration(c.API.Timeout); err != nil {
		problems = append(problems, "api.timeout: "+err.Error())
	}
	if _, err := parseDuration(c.API.HealthTimeout); err != nil {
		problems = append(problems, "api.health_timeout: "+err.Error())
	}
	if c.API.MaxAttempts < 0 {
		problems = append(problems, "api.max_attempts must not be negative")
	}
	switch c.Storage.Backend {
	case store.BackendSQLite, store.BackendRedis, store.BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not one of sqlite, redis, memory", c.Storage.Backend))
	}
	if c.Storage.Backend == store.BackendRedis && c.Storage.RedisAddr == "" {
		problems = append(problems, "storage.redis_addr is required for the redis backend")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of json, text", c.Log.Format))
	}
	if _, err := model.ParseSortDirection(c.Tickets.Sort); err != nil {
		problems = append(problems, "tickets.sort: "+err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	d, _ := parseDuration(c.API.Timeout)
	return d
}

func (c *Config) HealthTimeout() time.Duration {
	d, _ := parseDuration(c.API.HealthTimeout)
	return d
}

func (c *Config) SortDirection() model.SortDirection {
	dir, err := model.ParseSortDirection(c.Tickets.Sort)
	if err != nil {
		return model.SortDesc
	}
	return dir
}

// StoreOptions maps the storage section onto store.Open options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:     c.Storage.Backend,
		Path:        c.Storage.Path,
		RedisAddr:   c.Storage.RedisAddr,
		RedisDB:     c.Storage.RedisDB,
		RedisPrefix: c.Storage.RedisPrefix,
		Seal:        c.Storage.Seal,
		KeyFile:     c.Storage.KeyFile,
	}
}

// ServiceOptions maps the api section onto client options.
func (c *Config) ServiceOptions() []service.Option {
	return []service.Option{
		service.WithBaseURL(c.API.BaseURL),
		service.WithUserAgent(c.API.UserAgent),
		service.WithMaxAttempts(c.API.MaxAttempts),
		service.WithHealthTimeout(c.HealthTimeout()),
	}
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

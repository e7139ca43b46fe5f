package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"ticket-wallet/auth"
	"ticket-wallet/config"
	"ticket-wallet/logging"
	"ticket-wallet/service"
	"ticket-wallet/store"
	"ticket-wallet/tickets"
)

// app is the wiring shared by every command: config, logger, session
// store, API client, auth manager and ticket controller.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *store.SessionStore
	client   *service.Client
	auth     *auth.Manager
	tickets  *tickets.Controller

	closers []io.Closer
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.apiURL != "" {
		cfg.API.BaseURL = flags.apiURL
	}
	if flags.storage != "" {
		cfg.Storage.Backend = flags.storage
	}
	if flags.ephemeral {
		cfg.Storage.Backend = store.BackendMemory
		cfg.Storage.Seal = false
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logStderr {
		cfg.Log.File = "-"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bootstrap(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	storeOpts := cfg.StoreOptions()
	storeOpts.Logger = logger
	kv, err := store.Open(ctx, storeOpts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.sessions = store.NewSessionStore(kv)
	a.closers = append([]io.Closer{a.sessions}, a.closers...)

	httpClient := service.NewHTTPClient(cfg.Timeout(), cfg.API.InsecureSkipVerify)
	a.client = service.NewClient(httpClient, append(cfg.ServiceOptions(), service.WithLogger(logger))...)
	a.auth = auth.NewManager(a.sessions, a.client, auth.WithLogger(logger))
	a.tickets = tickets.NewController(a.client, a.auth, logger)

	logger.Debug("bootstrap complete",
		"api", a.client.BaseURL(),
		"storage", cfg.Storage.Backend,
		"config", cfg.Source,
	)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withSession bootstraps, restores the persisted session and runs fn.
func withSession(ctx context.Context, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()
	a.auth.Initialize(ctx)
	return fn(ctx, a)
}

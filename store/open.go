package store

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Options struct {
	Backend     string
	Path        string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
	Seal        bool
	KeyFile     string
	Logger      *slog.Logger
}

// Open builds the configured backend, wrapped in a SealedKV when sealing
// is enabled.
func Open(ctx context.Context, opts Options) (KV, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		kv  KV
		err error
	)
	switch opts.Backend {
	case "", BackendSQLite:
		path := opts.Path
		if path == "" {
			if path, err = configPath("session.db"); err != nil {
				return nil, err
			}
		}
		kv, err = OpenSQLite(path, logger)
	case BackendRedis:
		kv, err = OpenRedis(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisPrefix)
	case BackendMemory:
		kv = NewMemoryKV()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if !opts.Seal {
		return kv, nil
	}
	keyFile := opts.KeyFile
	if keyFile == "" {
		if keyFile, err = configPath("session.key"); err != nil {
			_ = kv.Close()
			return nil, err
		}
	}
	identity, err := LoadOrCreateIdentity(keyFile)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	logger.Debug("session values sealed", "backend", opts.Backend, "key_file", keyFile)
	return NewSealedKV(kv, identity), nil
}

// Package storage holds the snapshot backends that let live sessions
// survive a restart.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/eruna/internal/config"
	"github.com/claude/eruna/internal/session"
)

// Backend stores encoded sessions by id.
type Backend interface {
	session.Snapshots
	Close() error
}

var (
	_ Backend = (*SQLite)(nil)
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Redis)(nil)
	_ Backend = (*Memory)(nil)
)

// Open builds the backend selected by cfg.Backend. The postgres backend has
// its migrations applied first.
func Open(ctx context.Context, cfg config.StoreConfig, db config.DatabaseConfig, log *slog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		log.Info("session snapshots in sqlite", "dir", cfg.SQLiteDir)
		return OpenSQLite(cfg.SQLiteDir)
	case config.BackendPostgres:
		dsn := db.DSN()
		if err := RunMigrations(dsn); err != nil {
			return nil, err
		}
		log.Info("session snapshots in postgres", "host", db.Host, "db", db.Name)
		return OpenPostgres(ctx, dsn)
	case config.BackendRedis:
		log.Info("session snapshots in redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.BackendMemory:
		log.Warn("session snapshots in memory; sessions are lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Memory is a process-local backend.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *Memory) All(context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.data))
	for id, data := range m.data {
		out[id] = append([]byte(nil), data...)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

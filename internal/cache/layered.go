package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Layered puts an in-memory front in front of an optional durable backend.
// Backend hits are promoted to the front.
type Layered struct {
	front   *Memory
	backend Store
}

// NewLayered returns a layered store. backend may be nil.
func NewLayered(backend Store) *Layered {
	return &Layered{front: NewMemory(), backend: backend}
}

// Get implements Store. A backend error is returned alongside a miss so the
// caller can log it and carry on.
func (l *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := l.front.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	if l.backend == nil {
		return nil, false, nil
	}
	v, ok, err := l.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := l.front.Put(ctx, key, v); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// Put implements Store. The front is always written; a backend failure is
// reported after.
func (l *Layered) Put(ctx context.Context, key string, value []byte) error {
	if err := l.front.Put(ctx, key, value); err != nil {
		return err
	}
	if l.backend == nil {
		return nil
	}
	if err := l.backend.Put(ctx, key, value); err != nil {
		return fmt.Errorf("cache backend: %w", err)
	}
	return nil
}

// Close implements Store.
func (l *Layered) Close() error {
	err := l.front.Close()
	if l.backend != nil {
		err = errors.Join(err, l.backend.Close())
	}
	return err
}

// Options selects the durable backend.
type Options struct {
	Backend  string        `yaml:"backend"` // memory, sqlite, redis
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Open builds a Layered store for the configured backend.
func Open(opts Options) (*Layered, error) {
	switch opts.Backend {
	case "", "memory":
		return NewLayered(nil), nil
	case "sqlite":
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		db, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return NewLayered(db), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis cache requires redis_url")
		}
		r, err := ConnectRedis(opts.RedisURL, opts.TTL)
		if err != nil {
			return nil, err
		}
		return NewLayered(r), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

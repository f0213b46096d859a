// Package pool caches one database per tenant namespace so that requests for
// the same tenant share connection setup. Entries expire after a TTL and the
// least recently used namespace is closed when the cache is full.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jmoiron/sqlx"
)

// Opener opens the database of one namespace.
type Opener func(ctx context.Context, namespace string) (*sqlx.DB, error)

// ConnHook prepares a connection before Conn hands it out.
type ConnHook func(ctx context.Context, conn *sqlx.Conn) error

// Option configures a Pool.
type Option func(*Pool)

// WithConnHook runs hook on every connection the pool hands out. A hook
// error closes the connection and fails the acquisition.
func WithConnHook(hook ConnHook) Option {
	return func(p *Pool) { p.hook = hook }
}

// Pool implements tenancy.Pool.
type Pool struct {
	open Opener
	hook ConnHook

	mu    sync.Mutex
	cache *expirable.LRU[string, *sqlx.DB]

	// beforeConn runs between the cache lookup and Connx.
	beforeConn func()
}

// New creates a pool holding at most size namespaces for at most ttl each.
func New(open Opener, size int, ttl time.Duration, opts ...Option) *Pool {
	if size <= 0 {
		size = 64
	}
	evict := func(namespace string, db *sqlx.DB) {
		// Connections already handed out stay usable and are closed on release.
		if err := db.Close(); err != nil {
			slog.Warn("closing namespace pool", "namespace", namespace, "error", err)
		}
	}
	p := &Pool{
		open:  open,
		cache: expirable.NewLRU[string, *sqlx.DB](size, evict, ttl),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Conn returns an exclusive connection to namespace. The caller must Close it.
func (p *Pool) Conn(ctx context.Context, namespace string) (*sqlx.Conn, error) {
	conn, err := p.connect(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if p.hook != nil {
		if err := p.hook(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("preparing connection to %s: %w", namespace, err)
		}
	}
	return conn, nil
}

// connect retries once when the database it looked up was evicted, and so
// closed, before a connection could be taken from it.
func (p *Pool) connect(ctx context.Context, namespace string) (*sqlx.Conn, error) {
	for attempt := 1; ; attempt++ {
		db, err := p.db(ctx, namespace)
		if err != nil {
			return nil, err
		}
		if p.beforeConn != nil {
			p.beforeConn()
		}

		conn, err := db.Connx(ctx)
		if err == nil {
			return conn, nil
		}
		if attempt == 1 && p.evicted(namespace, db) {
			continue
		}
		return nil, fmt.Errorf("acquiring connection to %s: %w", namespace, err)
	}
}

func (p *Pool) db(ctx context.Context, namespace string) (*sqlx.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.cache.Get(namespace); ok {
		return db, nil
	}

	db, err := p.open(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("opening namespace %s: %w", namespace, err)
	}
	p.cache.Add(namespace, db)
	return db, nil
}

// evicted reports whether db is no longer the cached database of namespace.
func (p *Pool) evicted(namespace string, db *sqlx.DB) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.cache.Peek(namespace)
	return !ok || cur != db
}

// Len returns the number of cached namespaces.
func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close closes every cached namespace database.
func (p *Pool) Close() error {
	p.cache.Purge()
	return nil
}

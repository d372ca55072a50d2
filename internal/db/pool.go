// Package db implements the per-indexer database session (§4.3) and the
// tagged connection pool (§4.2) it is acquired from. Only the postgres
// backend is supported; the pool is a thin wrapper over pgxpool so that a
// future second backend only has to satisfy the same small surface.
package db

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"indexer-engine/pkg/utils"
)

// ErrBackendNotSupported is returned by Connect for any scheme other than
// "postgres" (spec.md §4.2: "Only postgres is accepted").
var ErrBackendNotSupported = fmt.Errorf("db: backend not supported")

// Pool is a tagged handle over a backend-specific connection pool. The tag
// (Backend) lets callers assert which concrete driver backs a Pool without
// a type switch on the underlying pgxpool type.
type Pool struct {
	Backend string
	pgx     *pgxpool.Pool
}

// HealthStatus is the result of Pool.Health.
type HealthStatus int

const (
	HealthOK HealthStatus = iota
	HealthNotOK
)

// Connect parses url, validates it, and establishes a pool against it.
// Connection establishment is retried with a bounded backoff (pkg/utils.Retry)
// so a transient startup race with the database does not kill the process.
func Connect(ctx context.Context, rawURL string) (*Pool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("db: malformed connection url: %w", err)
	}
	if u.Scheme != "postgres" {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotSupported, u.Scheme)
	}

	u.RawQuery = canonicalQuery(u.RawQuery)

	cfg, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("db: parse pool config: %w", err)
	}
	// Statement-level logging is disabled on created connections; the
	// session logs at the decision-point granularity the pull loop needs,
	// not per-statement (spec.md §4.2).
	cfg.ConnConfig.Tracer = nil

	var pool *pgxpool.Pool
	err = utils.Retry(ctx, 5, 200*time.Millisecond, func() error {
		p, connErr := pgxpool.NewWithConfig(ctx, cfg)
		if connErr != nil {
			logrus.WithError(connErr).Warn("db: connection attempt failed, retrying")
			return connErr
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	return &Pool{Backend: "postgres", pgx: pool}, nil
}

// canonicalQuery parses a URL query string and re-serializes it with keys
// in sorted order, so two connection strings that differ only in the order
// of their query parameters produce the same URL.
func canonicalQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		for j, v := range values[k] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Acquire borrows one connection from the pool.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pgx.Acquire(ctx)
}

// Health runs `SELECT true;` and reports HealthOK iff the result is true.
func (p *Pool) Health(ctx context.Context) (HealthStatus, error) {
	var ok bool
	if err := p.pgx.QueryRow(ctx, "SELECT true;").Scan(&ok); err != nil {
		return HealthNotOK, err
	}
	if !ok {
		return HealthNotOK, nil
	}
	return HealthOK, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pgx.Close()
}

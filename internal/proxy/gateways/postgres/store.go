// Package postgres reads the deny list from and writes connection logs to PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haukened/phishguard/internal/proxy/domain"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
)

const (
	queryActiveDomains = `SELECT domain FROM domain WHERE list_type = 'deny' AND is_active = 1`
	queryActiveCidrs   = `SELECT cidr FROM cidr WHERE list_type = 'deny' AND is_active = 1`
	insertLog          = `INSERT INTO logs (src, dest, dest_ip, dest_port, method, list_type, score, reason, time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS domain (
	id SERIAL PRIMARY KEY,
	domain TEXT NOT NULL,
	list_type TEXT NOT NULL DEFAULT 'deny',
	is_active SMALLINT NOT NULL DEFAULT 1
)`,
	`CREATE TABLE IF NOT EXISTS cidr (
	id SERIAL PRIMARY KEY,
	cidr TEXT NOT NULL,
	list_type TEXT NOT NULL DEFAULT 'deny',
	is_active SMALLINT NOT NULL DEFAULT 1
)`,
	`CREATE TABLE IF NOT EXISTS logs (
	id BIGSERIAL PRIMARY KEY,
	src TEXT NOT NULL,
	dest TEXT NOT NULL,
	dest_ip TEXT,
	dest_port INTEGER,
	method TEXT NOT NULL,
	list_type TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	reason TEXT,
	time TIMESTAMPTZ NOT NULL
)`,
}

// ErrNoDB is returned when a Store is used without a connection.
var ErrNoDB = errors.New("postgres: database is nil")

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PoolConfig holds tunable parameters for the connection pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// Connect opens and pings a pool for dsn.
func Connect(ctx context.Context, dsn string, pc PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.MaxConns = 10
	if pc.MaxConns > 0 {
		config.MaxConns = pc.MaxConns
	}
	config.MinConns = 1
	if pc.MinConns > 0 {
		config.MinConns = pc.MinConns
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return pool, nil
}

// Store serves as both blacklist Source and connection log sink.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrNoDB
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) FetchActiveDomains(ctx context.Context) ([]string, error) {
	return s.column(ctx, queryActiveDomains)
}

func (s *Store) FetchActiveCidrs(ctx context.Context) ([]string, error) {
	return s.column(ctx, queryActiveCidrs)
}

func (s *Store) column(ctx context.Context, sql string) ([]string, error) {
	if s.db == nil {
		return nil, ErrNoDB
	}
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query deny list: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan deny list: %w", err)
	}
	return out, nil
}

// Save inserts one connection record. Reasons are stored as a JSON array, or
// NULL when there are none.
func (s *Store) Save(ctx context.Context, r domain.LogRecord) error {
	if s.db == nil {
		return ErrNoDB
	}
	var reason any
	if js, ok := r.ReasonsJSON(); ok {
		reason = js
	}
	var ip any
	if r.IP != "" {
		ip = r.IP
	}
	var port any
	if r.Port > 0 {
		port = r.Port
	}
	_, err := s.db.Exec(ctx, insertLog,
		r.ClientAddr,
		r.Host,
		ip,
		port,
		r.Method,
		r.Outcome.String(),
		r.Score,
		reason,
		r.Time,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

var _ blacklist.Source = (*Store)(nil)

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cases (
	id             TEXT PRIMARY KEY,
	client_name    TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'OPEN',
	failure_reason TEXT NOT NULL DEFAULT '',
	assessment     JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cases_phone ON cases(phone);

CREATE TABLE IF NOT EXISTS case_messages (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id     TEXT NOT NULL REFERENCES cases(id),
	direction   TEXT NOT NULL,
	body        TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_case_messages_case ON case_messages(case_id, at);

CREATE TABLE IF NOT EXISTS calls (
	conversation_id TEXT PRIMARY KEY,
	case_id         TEXT NOT NULL REFERENCES cases(id),
	workflow_id     TEXT NOT NULL,
	purpose         TEXT NOT NULL,
	completed       BOOLEAN NOT NULL DEFAULT false,
	talked_to_human BOOLEAN NOT NULL DEFAULT false,
	failed          BOOLEAN NOT NULL DEFAULT false,
	failure_reason  TEXT NOT NULL DEFAULT '',
	transcript      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS process_instances (
	id             TEXT PRIMARY KEY,
	parent_id      TEXT REFERENCES process_instances(id),
	name           TEXT NOT NULL,
	entity_ref     TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'running',
	status_message TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	params         JSONB,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_process_instances_parent ON process_instances(parent_id);
CREATE INDEX IF NOT EXISTS idx_process_instances_entity ON process_instances(entity_ref);

CREATE TABLE IF NOT EXISTS providers (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id      TEXT NOT NULL REFERENCES cases(id),
	name         TEXT NOT NULL,
	organization TEXT NOT NULL DEFAULT '',
	specialty    TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	npi          TEXT NOT NULL DEFAULT '',
	contact      JSONB NOT NULL DEFAULT '{}',
	verification TEXT NOT NULL DEFAULT 'unverified',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_providers_case ON providers(case_id, verification);

CREATE TABLE IF NOT EXISTS verification_requests (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id     TEXT NOT NULL REFERENCES cases(id),
	provider_id TEXT NOT NULL REFERENCES providers(id),
	status      TEXT NOT NULL DEFAULT 'pending',
	extracted   JSONB NOT NULL DEFAULT '{}',
	looked_up   JSONB NOT NULL DEFAULT '{}',
	resolved_by TEXT NOT NULL DEFAULT '',
	resolved_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_verification_requests_case ON verification_requests(case_id, status);

CREATE TABLE IF NOT EXISTS records_requests (
	id               TEXT PRIMARY KEY,
	case_id          TEXT NOT NULL REFERENCES cases(id),
	provider_id      TEXT NOT NULL REFERENCES providers(id),
	signature_status TEXT NOT NULL DEFAULT 'unsigned',
	signed_at        TIMESTAMPTZ,
	channel          TEXT NOT NULL DEFAULT '',
	dispatch_id      TEXT NOT NULL DEFAULT '',
	dispatched_at    TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps everything else.
func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "%s %s", what, id)
	}
	return eris.Wrapf(err, "postgres: get %s %s", what, id)
}

// expectOne turns a zero-row update into ErrNotFound.
func expectOne(tag pgconn.CommandTag, err error, what, id string) error {
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", what, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", what, id)
	}
	return nil
}

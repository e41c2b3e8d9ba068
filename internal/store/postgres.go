package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS transactions (
    seq            BIGSERIAL PRIMARY KEY,
    transaction_id TEXT NOT NULL UNIQUE,
    user_id        TEXT,
    amount         DOUBLE PRECISION NOT NULL DEFAULT 0,
    currency       TEXT,
    status         TEXT NOT NULL,
    description    TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at);
`

const pgColumns = "transaction_id, user_id, amount, currency, status, description, created_at, seq"

// PostgresStore is the Postgres record store backend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// OpenPostgres connects to databaseURL, verifies connectivity and ensures the
// transactions table exists.
func OpenPostgres(ctx context.Context, databaseURL string, logger log.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, wrapf(err, "create pgx pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapf(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, wrapf(err, "ensure schema")
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Save implements Store. created_at is assigned by the database.
func (s *PostgresStore) Save(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	persisted := *rec
	err := s.pool.QueryRow(ctx,
		`INSERT INTO transactions (transaction_id, user_id, amount, currency, status, description)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, seq`,
		rec.ID, rec.UserID, rec.Amount, rec.Currency, rec.Status, rec.Description,
	).Scan(&persisted.CreatedAt, &persisted.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateID
		}
		return nil, Transient(wrapf(err, "insert transaction"))
	}
	persisted.CreatedAt = persisted.CreatedAt.UTC()
	return &persisted, nil
}

// FindByID implements Store.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*transaction.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM transactions WHERE transaction_id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, Transient(wrapf(err, "select by id"))
	}
	return rec, nil
}

// FindCreatedSince implements Store. The bound is exclusive.
func (s *PostgresStore) FindCreatedSince(ctx context.Context, t time.Time) ([]*transaction.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM transactions WHERE created_at > $1 ORDER BY created_at ASC, seq ASC`, t)
	if err != nil {
		return nil, Transient(wrapf(err, "select since"))
	}
	return collectRecords(rows)
}

// FindAll implements Store.
func (s *PostgresStore) FindAll(ctx context.Context) ([]*transaction.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM transactions ORDER BY created_at ASC, seq ASC`)
	if err != nil {
		return nil, Transient(wrapf(err, "select all"))
	}
	return collectRecords(rows)
}

func scanRecord(row pgx.Row) (*transaction.Record, error) {
	var rec transaction.Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Amount, &rec.Currency,
		&rec.Status, &rec.Description, &rec.CreatedAt, &rec.Seq)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*transaction.Record, error) {
	defer rows.Close()
	var out []*transaction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, Transient(wrapf(err, "scan row"))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Transient(wrapf(err, "iterate rows"))
	}
	return out, nil
}

// Package postgres provides a PostgreSQL storage.UsageStore backed by a
// pgx/v5 connection pool. The schema is shipped as embedded migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/claudepipe/pkg/storage"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

const selectColumns = `
	SELECT id, tenant_id, model, stream,
	       input_tokens, output_tokens,
	       cache_creation_input_tokens, cache_read_input_tokens,
	       finish_reason, created_at
	FROM usage_records`

// Store is a PostgreSQL-backed usage ledger.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.UsageStore at compile time.
var _ storage.UsageStore = (*Store)(nil)

// New connects to PostgreSQL and, if cfg.MigrateOnStart is set, applies
// pending schema migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Record inserts r. The tenant defaults to the one in ctx.
func (s *Store) Record(ctx context.Context, r *storage.UsageRecord) error {
	tenantID := r.TenantID
	if tenantID == "" {
		tenantID = storage.GetTenant(ctx)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, tenant_id, model, stream,
			input_tokens, output_tokens,
			cache_creation_input_tokens, cache_read_input_tokens,
			finish_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		r.ID, tenantID, r.Model, r.Stream,
		r.InputTokens, r.OutputTokens,
		r.CacheCreationInputTokens, r.CacheReadInputTokens,
		nullString(r.FinishReason), r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// Get returns the record with the given completion ID, scoped by tenant.
func (s *Store) Get(ctx context.Context, id string) (*storage.UsageRecord, error) {
	query := selectColumns + " WHERE id = $1"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying usage record: %w", err)
	}
	return rec, nil
}

// List returns the tenant's records, newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.UsageList, error) {
	query := selectColumns + " WHERE TRUE"
	var args []any

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		args = append(args, tenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	if opts.Model != "" {
		args = append(args, opts.Model)
		query += fmt.Sprintf(" AND model = $%d", len(args))
	}

	limit := opts.EffectiveLimit()
	// Fetch one extra row to detect has_more.
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing usage records: %w", err)
	}
	defer rows.Close()

	var records []*storage.UsageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage records: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return storage.NewUsageList(records, hasMore), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*storage.UsageRecord, error) {
	var rec storage.UsageRecord
	var finish *string
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Model, &rec.Stream,
		&rec.InputTokens, &rec.OutputTokens,
		&rec.CacheCreationInputTokens, &rec.CacheReadInputTokens,
		&finish, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Object = "usage.record"
	if finish != nil {
		rec.FinishReason = *finish
	}
	return &rec, nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

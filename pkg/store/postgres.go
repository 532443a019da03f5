package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/provn-io/provn/pkg/ledger"
)

// PostgresStore backs MetadataStore with a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the artifacts table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS artifacts (
			id          TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			ledger_ref  TEXT NOT NULL,
			token_id    TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			price       BIGINT NOT NULL DEFAULT 0,
			hidden      BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS artifacts_fingerprint_idx ON artifacts (fingerprint, created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure artifacts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveArtifact(ctx context.Context, meta *ArtifactMeta) error {
	if meta.ID == "" {
		meta.ID = uuid.New().String()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, fingerprint, ledger_ref, token_id, title, price, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, meta.ID, string(meta.Fingerprint), meta.LedgerRef, meta.TokenID, meta.Title, meta.Price, meta.Hidden, meta.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListByFingerprint(ctx context.Context, fp ledger.Fingerprint) ([]ArtifactMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, ledger_ref, token_id, title, price, hidden, created_at
		FROM artifacts
		WHERE fingerprint = $1
		ORDER BY created_at ASC
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var result []ArtifactMeta
	for rows.Next() {
		var meta ArtifactMeta
		var fingerprint string
		if err := rows.Scan(&meta.ID, &fingerprint, &meta.LedgerRef, &meta.TokenID, &meta.Title, &meta.Price, &meta.Hidden, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		meta.Fingerprint = ledger.Fingerprint(fingerprint)
		result = append(result, meta)
	}

	return result, rows.Err()
}

func (s *PostgresStore) GetArtifact(ctx context.Context, id string) (*ArtifactMeta, error) {
	var meta ArtifactMeta
	var fingerprint string
	err := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint, ledger_ref, token_id, title, price, hidden, created_at
		FROM artifacts WHERE id = $1
	`, id).Scan(&meta.ID, &fingerprint, &meta.LedgerRef, &meta.TokenID, &meta.Title, &meta.Price, &meta.Hidden, &meta.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", id, ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact: %w", err)
	}
	meta.Fingerprint = ledger.Fingerprint(fingerprint)

	return &meta, nil
}

// Ping verifies the connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ MetadataStore = (*PostgresStore)(nil)

// Package postgres provides a PostgreSQL-backed implementation of the scan
// history store.
//
// All operations share a single [pgxpool.Pool]. [Migrate] creates the scans
// table and its indexes on startup via CREATE TABLE IF NOT EXISTS, so no
// external migration tooling is required.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrivox/nutrivox/pkg/history"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store is the PostgreSQL-backed scan history. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn, verifies it
// with a ping, and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveScan implements [history.Store] as an upsert keyed on the scan ID.
func (s *Store) SaveScan(ctx context.Context, scan history.Scan) error {
	const q = `
		INSERT INTO scans
		    (id, barcode, product_name, detected_allergens, outcome, record, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    barcode            = EXCLUDED.barcode,
		    product_name       = EXCLUDED.product_name,
		    detected_allergens = EXCLUDED.detected_allergens,
		    outcome            = EXCLUDED.outcome,
		    record             = EXCLUDED.record,
		    created_at         = EXCLUDED.created_at`

	createdAt := scan.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		scan.ID,
		scan.Barcode,
		scan.ProductName,
		scan.DetectedAllergens,
		scan.Outcome,
		scan.Record,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("history store: save scan: %w", err)
	}
	return nil
}

// GetScan implements [history.Store].
func (s *Store) GetScan(ctx context.Context, id string) (history.Scan, error) {
	const q = `
		SELECT id, barcode, product_name, detected_allergens, outcome, record, created_at
		FROM   scans
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return history.Scan{}, fmt.Errorf("history store: get scan: %w", err)
	}
	scan, err := pgx.CollectOneRow(rows, scanRow)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Scan{}, history.ErrNotFound
	}
	if err != nil {
		return history.Scan{}, fmt.Errorf("history store: get scan: %w", err)
	}
	return scan, nil
}

// ListScans implements [history.Store]. Filters from opts are combined with
// AND; results are ordered newest first.
func (s *Store) ListScans(ctx context.Context, opts history.QueryOpts) ([]history.Scan, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"TRUE"}
	if opts.Barcode != "" {
		conditions = append(conditions, "barcode = "+next(opts.Barcode))
	}
	if opts.Allergen != "" {
		conditions = append(conditions, next(opts.Allergen)+" = ANY (detected_allergens)")
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}

	q := "SELECT id, barcode, product_name, detected_allergens, outcome, record, created_at\n" +
		"FROM   scans\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list scans: %w", err)
	}
	scans, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if scans == nil {
		scans = []history.Scan{}
	}
	return scans, nil
}

// DeleteScan implements [history.Store].
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("history store: delete scan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return history.ErrNotFound
	}
	return nil
}

// SaveAnswer implements [history.Store].
func (s *Store) SaveAnswer(ctx context.Context, answer history.Answer) error {
	const q = `
		INSERT INTO answers (id, scan_id, question, answer, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	createdAt := answer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, q,
		answer.ID,
		answer.ScanID,
		answer.Question,
		answer.Answer,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("history store: save answer: %w", err)
	}
	return nil
}

// ListAnswers implements [history.Store].
func (s *Store) ListAnswers(ctx context.Context, scanID string) ([]history.Answer, error) {
	const q = `
		SELECT id, scan_id, question, answer, created_at
		FROM   answers
		WHERE  scan_id = $1
		ORDER  BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, scanID)
	if err != nil {
		return nil, fmt.Errorf("history store: list answers: %w", err)
	}
	answers, err := pgx.CollectRows(rows, answerRow)
	if err != nil {
		return nil, fmt.Errorf("history store: answer rows: %w", err)
	}
	if answers == nil {
		answers = []history.Answer{}
	}
	return answers, nil
}

// answerRow scans one pgx row into a history.Answer.
func answerRow(row pgx.CollectableRow) (history.Answer, error) {
	var a history.Answer
	if err := row.Scan(
		&a.ID,
		&a.ScanID,
		&a.Question,
		&a.Answer,
		&a.CreatedAt,
	); err != nil {
		return history.Answer{}, err
	}
	return a, nil
}

// scanRow scans one pgx row into a history.Scan.
func scanRow(row pgx.CollectableRow) (history.Scan, error) {
	var sc history.Scan
	if err := row.Scan(
		&sc.ID,
		&sc.Barcode,
		&sc.ProductName,
		&sc.DetectedAllergens,
		&sc.Outcome,
		&sc.Record,
		&sc.CreatedAt,
	); err != nil {
		return history.Scan{}, err
	}
	return sc, nil
}

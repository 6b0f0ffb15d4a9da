package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlScans = `
CREATE TABLE IF NOT EXISTS scans (
    id                 TEXT         PRIMARY KEY,
    barcode            TEXT         NOT NULL DEFAULT '',
    product_name       TEXT         NOT NULL DEFAULT '',
    detected_allergens TEXT[]       NOT NULL DEFAULT '{}',
    outcome            TEXT         NOT NULL,
    record             JSONB        NOT NULL DEFAULT '{}',
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scans_barcode
    ON scans (barcode);

CREATE INDEX IF NOT EXISTS idx_scans_created_at
    ON scans (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_scans_detected_allergens
    ON scans USING GIN (detected_allergens);
`

const ddlAnswers = `
CREATE TABLE IF NOT EXISTS answers (
    id         TEXT         PRIMARY KEY,
    scan_id    TEXT         NOT NULL REFERENCES scans (id) ON DELETE CASCADE,
    question   TEXT         NOT NULL,
    answer     TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_answers_scan_id
    ON answers (scan_id, created_at DESC);
`

// Migrate creates the scans and answers tables and their indexes if they do
// not exist. Idempotent: safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlScans, ddlAnswers} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"drive-deals-scraper/models"
)

// PostgresWriter mirrors the JSON stores into a drive_listings table for
// ad-hoc SQL. The JSON files stay the source of truth.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return NewPostgresWriterFromDB(ctx, db)
}

// NewPostgresWriterFromDB wraps an open handle and migrates the schema.
func NewPostgresWriterFromDB(ctx context.Context, db *sql.DB) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS drive_listings (
			id           TEXT          PRIMARY KEY,
			title        TEXT          NOT NULL,
			price_sek    NUMERIC(12,2) NOT NULL,
			capacity_tb  NUMERIC(8,3)  NOT NULL,
			price_per_tb NUMERIC(12,2),
			drive_type   VARCHAR(8)    NOT NULL,
			url          TEXT          NOT NULL DEFAULT '',
			location     TEXT          NOT NULL DEFAULT '',
			published_at TEXT          NOT NULL DEFAULT '',
			confidence   VARCHAR(8)    NOT NULL DEFAULT 'low',
			is_deal      BOOLEAN       NOT NULL DEFAULT FALSE,
			mirrored_at  TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_drive_listings_ppt  ON drive_listings(price_per_tb);
		CREATE INDEX IF NOT EXISTS idx_drive_listings_type ON drive_listings(drive_type);
	`)
	return err
}

// Write inserts listings not yet mirrored. Rows that already exist are left
// alone, matching the immutability of the listing store.
func (pw *PostgresWriter) Write(ctx context.Context, listings []models.EnrichedListing, isDeal func(id string) bool) error {
	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(ctx, listings[i:end], isDeal); err != nil {
			return fmt.Errorf("postgres: insert batch: %w", err)
		}
	}
	return nil
}

const listingColumns = 11

func (pw *PostgresWriter) insertBatch(ctx context.Context, batch []models.EnrichedListing, isDeal func(id string) bool) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*listingColumns)

	for idx, l := range batch {
		base := idx * listingColumns
		ph := make([]string, listingColumns)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		var ppt sql.NullFloat64
		if l.PricePerTB != nil {
			ppt = sql.NullFloat64{Float64: *l.PricePerTB, Valid: true}
		}
		valueArgs = append(valueArgs,
			l.ID, l.Title, l.PriceSEK, l.CapacityTB, ppt, string(l.DriveType),
			l.URL, l.Location, l.Date, string(l.Confidence), isDeal != nil && isDeal(l.ID))
	}

	query := fmt.Sprintf(`
		INSERT INTO drive_listings (id, title, price_sek, capacity_tb, price_per_tb, drive_type, url, location, published_at, confidence, is_deal)
		VALUES %s
		ON CONFLICT (id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := pw.db.ExecContext(ctx, query, valueArgs...)
	return err
}

// DeleteListings removes pruned listings from the mirror.
func (pw *PostgresWriter) DeleteListings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := pw.db.ExecContext(ctx, `DELETE FROM drive_listings WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("postgres: delete listings: %w", err)
	}
	return nil
}

// ClearDeals unflags deals pruned from the deal store.
func (pw *PostgresWriter) ClearDeals(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := pw.db.ExecContext(ctx, `UPDATE drive_listings SET is_deal = FALSE WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("postgres: clear deals: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

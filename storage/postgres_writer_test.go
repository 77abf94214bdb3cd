package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drive-deals-scraper/models"
)

func newMockWriter(t *testing.T) (*PostgresWriter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS drive_listings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	pw, err := NewPostgresWriterFromDB(context.Background(), db)
	require.NoError(t, err)
	return pw, mock
}

func TestPostgresWriterInsertsWithDealFlag(t *testing.T) {
	pw, mock := newMockWriter(t)

	a := listing("a", 600, 4, false)
	b := listing("b", 900, 2, true)
	b.PricePerTB = nil

	anyArg := sqlmock.AnyArg()
	mock.ExpectExec(`INSERT INTO drive_listings .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(
			"a", anyArg, anyArg, anyArg, 150.0, "HDD", anyArg, anyArg, anyArg, "high", true,
			"b", anyArg, anyArg, anyArg, nil, "SSD", anyArg, anyArg, anyArg, "high", false,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := pw.Write(context.Background(), []models.EnrichedListing{a, b}, func(id string) bool { return id == "a" })
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterBatches(t *testing.T) {
	pw, mock := newMockWriter(t)

	batch := make([]models.EnrichedListing, 0, 120)
	for i := 0; i < 120; i++ {
		batch = append(batch, listing(string(rune('A'+i%26))+string(rune('0'+i/26)), 600, 4, false))
	}
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO drive_listings").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, pw.Write(context.Background(), batch, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterPruneStatements(t *testing.T) {
	pw, mock := newMockWriter(t)

	mock.ExpectExec(`DELETE FROM drive_listings WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE drive_listings SET is_deal = FALSE WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, pw.DeleteListings(ctx, []string{"b", "c"}))
	require.NoError(t, pw.ClearDeals(ctx, []string{"b"}))
	require.NoError(t, pw.DeleteListings(ctx, nil), "empty id list issues no statement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articlepipe/internal/domain"
)

func TestPostgresStore_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, "summaries")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "summaries" (id,url,original_content,summary) VALUES ($1,$2,$3,$4)`)).
		WithArgs(pgxmock.AnyArg(), "https://example.com/a", "Hello world.", "Short.").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.Save(context.Background(), domain.SummaryRecord{
		URL:             "https://example.com/a",
		OriginalContent: "Hello world.",
		Summary:         "Short.",
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveTwiceKeepsBothRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, "summaries")
	record := domain.SummaryRecord{URL: "u", OriginalContent: "c", Summary: "s"}

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO "summaries"`).
			WithArgs(pgxmock.AnyArg(), "u", "c", "s").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.Save(context.Background(), record))
	require.NoError(t, store.Save(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, "summaries")

	mock.ExpectExec(`INSERT INTO "summaries"`).
		WithArgs(pgxmock.AnyArg(), "u", "c", "s").
		WillReturnError(errors.New("connection refused"))

	err = store.Save(context.Background(), domain.SummaryRecord{URL: "u", OriginalContent: "c", Summary: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert summary")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, "summaries")

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "summaries"`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	assert.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_QuotesTableName(t *testing.T) {
	store := NewPostgresStore(nil, `weird"name`)
	assert.Equal(t, `"weird""name"`, store.table)
}

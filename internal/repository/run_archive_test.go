package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// mockTxRunner adapts a pgxmock pool to the TxRunner interface, mirroring
// what database.DB.WithTransaction does.
type mockTxRunner struct {
	pool pgxmock.PgxPoolIface
}

func (m *mockTxRunner) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func newTestDigest(t *testing.T) *domain.Digest {
	t.Helper()
	return &domain.Digest{
		Topic:             "retrieval augmented generation",
		Query:             "all:%22rag%22",
		Range:             testRange(t),
		Papers:            []*domain.PaperRecord{newTestPaperRecord()},
		Synthesis:         "One paper this week.",
		DuplicatesSkipped: 1,
		Failed:            1,
	}
}

func TestRunArchive_SaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("persists papers and the search in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		digest := newTestDigest(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO searches").
			WithArgs(
				digest.Topic, digest.Query, digest.Range.From, digest.Range.To,
				3, 1, 1, 1,
				pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		archive := NewRunArchive(&mockTxRunner{pool: mock})
		require.NoError(t, archive.SaveRun(ctx, digest, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("paper failure rolls the transaction back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		archive := NewRunArchive(&mockTxRunner{pool: mock})
		err = archive.SaveRun(ctx, newTestDigest(t), 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2508.01234v1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects nil digest", func(t *testing.T) {
		archive := NewRunArchive(nil)
		err := archive.SaveRun(ctx, nil, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

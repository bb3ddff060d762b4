package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ironzo/arxiveparser/internal/database"
	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/pipeline"
)

// TxRunner executes a function inside a database transaction; satisfied by
// *database.DB.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// RunArchive persists completed pipeline runs atomically: all paper upserts
// and the search record commit together or not at all.
type RunArchive struct {
	db TxRunner
}

var (
	_ pipeline.Archive = (*RunArchive)(nil)
	_ TxRunner         = (*database.DB)(nil)
)

// NewRunArchive creates a RunArchive backed by the given transaction runner.
func NewRunArchive(db TxRunner) *RunArchive {
	return &RunArchive{db: db}
}

// SaveRun stores the run's summarized papers and its search record in one
// transaction.
func (r *RunArchive) SaveRun(ctx context.Context, digest *domain.Digest, discovered int) error {
	if digest == nil {
		return domain.NewValidationError("digest", "digest cannot be nil")
	}

	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		archive := NewPgArchive(tx)

		for _, paper := range digest.Papers {
			if err := archive.SavePaper(ctx, paper); err != nil {
				return fmt.Errorf("paper %s: %w", paper.ID, err)
			}
		}

		search := &domain.SearchRecord{
			Topic:      digest.Topic,
			Query:      digest.Query,
			Range:      digest.Range,
			Discovered: discovered,
			Summarized: len(digest.Papers),
			Duplicates: digest.DuplicatesSkipped,
			Failed:     digest.Failed,
		}
		return archive.SaveSearch(ctx, search)
	})
}

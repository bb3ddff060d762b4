package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// PgArchive is a PostgreSQL implementation of the pipeline's archive.
type PgArchive struct {
	db DBTX
}

// NewPgArchive creates a new PostgreSQL archive.
func NewPgArchive(db DBTX) *PgArchive {
	return &PgArchive{db: db}
}

// SavePaper inserts a processed paper or updates an existing one based on
// its arXiv identifier.
func (r *PgArchive) SavePaper(ctx context.Context, paper *domain.PaperRecord) error {
	if paper == nil {
		return domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.ID == "" {
		return domain.NewValidationError("arxiv_id", "arXiv identifier is required")
	}

	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}

	sectionsJSON, err := json.Marshal(paper.SectionSummaries)
	if err != nil {
		return fmt.Errorf("failed to marshal section summaries: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO papers (
			arxiv_id, title, abstract, authors,
			section_summaries, general_summary, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (arxiv_id) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			authors = EXCLUDED.authors,
			section_summaries = EXCLUDED.section_summaries,
			general_summary = EXCLUDED.general_summary,
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		paper.ID,
		paper.Title,
		paper.Abstract,
		authorsJSON,
		sectionsJSON,
		paper.GeneralSummary,
		string(paper.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert paper: %w", err)
	}

	return nil
}

// SaveSearch records the outcome of one completed run.
func (r *PgArchive) SaveSearch(ctx context.Context, search *domain.SearchRecord) error {
	if search == nil {
		return domain.NewValidationError("search", "search cannot be nil")
	}
	if search.Topic == "" {
		return domain.NewValidationError("topic", "topic is required")
	}

	query := `
		INSERT INTO searches (
			topic, query, from_date, to_date,
			discovered, summarized, duplicates, failed,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.db.Exec(ctx, query,
		search.Topic,
		search.Query,
		search.Range.From,
		search.Range.To,
		search.Discovered,
		search.Summarized,
		search.Duplicates,
		search.Failed,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search: %w", err)
	}

	return nil
}

// RecentSearches returns the most recent run records, newest first.
func (r *PgArchive) RecentSearches(ctx context.Context, limit int) ([]*domain.SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT topic, query, from_date, to_date,
			discovered, summarized, duplicates, failed
		FROM searches
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	defer rows.Close()

	var searches []*domain.SearchRecord
	for rows.Next() {
		var s domain.SearchRecord
		if err := rows.Scan(
			&s.Topic, &s.Query, &s.Range.From, &s.Range.To,
			&s.Discovered, &s.Summarized, &s.Duplicates, &s.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		searches = append(searches, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate searches: %w", err)
	}

	return searches, nil
}

// GetPaper retrieves an archived paper by its arXiv identifier.
func (r *PgArchive) GetPaper(ctx context.Context, arxivID string) (*domain.PaperRecord, error) {
	if arxivID == "" {
		return nil, domain.NewValidationError("arxiv_id", "arXiv identifier is required")
	}

	query := `
		SELECT arxiv_id, title, abstract, authors,
			section_summaries, general_summary, status
		FROM papers
		WHERE arxiv_id = $1`

	var (
		paper        domain.PaperRecord
		authorsJSON  []byte
		sectionsJSON []byte
		status       string
	)
	err := r.db.QueryRow(ctx, query, arxivID).Scan(
		&paper.ID, &paper.Title, &paper.Abstract, &authorsJSON,
		&sectionsJSON, &paper.GeneralSummary, &status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", arxivID)
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}

	if err := json.Unmarshal(authorsJSON, &paper.Authors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
	}
	if err := json.Unmarshal(sectionsJSON, &paper.SectionSummaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal section summaries: %w", err)
	}
	paper.Status = domain.PaperStatus(status)

	return &paper, nil
}

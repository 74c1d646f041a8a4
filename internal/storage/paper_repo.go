package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"litchat/internal/models"
)

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

func (r *PaperRepo) UpsertPaper(ctx context.Context, p models.Paper) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO papers (paper_id, source, title, authors, year, abstract, url, venue, doi, status, fail_reason)
VALUES ($1, $2, NULLIF($3,''), $4, $5, NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), $10, NULLIF($11,''))
ON CONFLICT (paper_id)
DO UPDATE SET
  source = EXCLUDED.source,
  title = COALESCE(EXCLUDED.title, papers.title),
  authors = COALESCE(EXCLUDED.authors, papers.authors),
  year = COALESCE(EXCLUDED.year, papers.year),
  abstract = COALESCE(EXCLUDED.abstract, papers.abstract),
  url = COALESCE(EXCLUDED.url, papers.url),
  venue = COALESCE(EXCLUDED.venue, papers.venue),
  doi = COALESCE(EXCLUDED.doi, papers.doi),
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		p.PaperID, p.Source, p.Title, p.Authors, p.Year, p.Abstract, p.URL, p.Venue, p.DOI, p.Status, p.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	return nil
}

func (r *PaperRepo) UpdatePaperStatus(ctx context.Context, paperID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE papers SET status=$2, fail_reason=NULLIF($3,''), updated_at=NOW() WHERE paper_id=$1`, paperID, status, failReason)
	if err != nil {
		return fmt.Errorf("update paper status: %w", err)
	}
	return nil
}

// GetPaper returns ok=false for an unknown id instead of an error.
func (r *PaperRepo) GetPaper(ctx context.Context, paperID string) (models.Paper, bool, error) {
	var p models.Paper
	err := r.db.Pool.QueryRow(ctx, `
SELECT paper_id, source, COALESCE(title,''), COALESCE(authors,'{}'), year, COALESCE(abstract,''),
       COALESCE(url,''), COALESCE(venue,''), COALESCE(doi,''), status, COALESCE(fail_reason,''),
       created_at, updated_at
FROM papers
WHERE paper_id=$1`, paperID).
		Scan(&p.PaperID, &p.Source, &p.Title, &p.Authors, &p.Year, &p.Abstract,
			&p.URL, &p.Venue, &p.DOI, &p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Paper{}, false, nil
	}
	if err != nil {
		return models.Paper{}, false, fmt.Errorf("get paper: %w", err)
	}
	return p, true, nil
}

func (r *PaperRepo) ListPapersByIDs(ctx context.Context, paperIDs []string) ([]models.Paper, error) {
	if len(paperIDs) == 0 {
		return []models.Paper{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id, source, COALESCE(title,''), COALESCE(authors,'{}'), year, COALESCE(abstract,''),
       COALESCE(url,''), COALESCE(venue,''), COALESCE(doi,''), status, COALESCE(fail_reason,''),
       created_at, updated_at
FROM papers
WHERE paper_id = ANY($1)
ORDER BY created_at DESC`, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("list papers by ids: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0, len(paperIDs))
	for rows.Next() {
		var p models.Paper
		if err := rows.Scan(&p.PaperID, &p.Source, &p.Title, &p.Authors, &p.Year, &p.Abstract,
			&p.URL, &p.Venue, &p.DOI, &p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (r *PaperRepo) ListIngestedPapers(ctx context.Context, limit int) ([]models.Paper, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id, source, COALESCE(title,''), COALESCE(authors,'{}'), year, COALESCE(abstract,''),
       COALESCE(url,''), COALESCE(venue,''), COALESCE(doi,''), status, COALESCE(fail_reason,''),
       created_at, updated_at
FROM papers
WHERE status='ingested'
ORDER BY updated_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingested papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0)
	for rows.Next() {
		var p models.Paper
		if err := rows.Scan(&p.PaperID, &p.Source, &p.Title, &p.Authors, &p.Year, &p.Abstract,
			&p.URL, &p.Venue, &p.DOI, &p.Status, &p.FailReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ingested paper: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

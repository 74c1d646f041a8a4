package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queryer is the subset of pgxpool.Pool the store needs.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGVectorStore persists vectors in Postgres with the pgvector extension.
// The chunks table carries a serial insert_seq column so tie-breaking by
// insertion order survives restarts.
type PGVectorStore struct {
	q Queryer
}

func NewPGVectorStore(q Queryer) *PGVectorStore {
	return &PGVectorStore{q: q}
}

func (s *PGVectorStore) Upsert(ctx context.Context, chunkID string, vector []float32, meta Metadata) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO chunks (chunk_id, paper_id, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET
  paper_id = EXCLUDED.paper_id,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding`,
		chunkID, meta.PaperID, meta.ChunkIndex, meta.Text, ToLiteral(vector))
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunkID, err)
	}
	return nil
}

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}
	args := []any{ToLiteral(vector), topK}
	filterSQL := ""
	if filter != nil && len(filter.PaperIDs) > 0 {
		filterSQL = " AND paper_id = ANY($3)"
		args = append(args, filter.PaperIDs)
	}
	query := `
SELECT chunk_id,
       paper_id,
       chunk_index,
       text,
       1 - (embedding <=> $1::vector) AS score
FROM chunks
WHERE embedding IS NOT NULL` + filterSQL + `
ORDER BY embedding <=> $1::vector, insert_seq
LIMIT $2`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, topK)
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Metadata.PaperID, &h.Metadata.ChunkIndex, &h.Metadata.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hits: %w", err)
	}
	return hits, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

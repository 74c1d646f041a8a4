package storage

import (
	"context"
	"fmt"

	"litchat/internal/models"
	"litchat/internal/vectorstore"
)

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// UpsertChunks writes chunk text and embeddings in one transaction. Vectors
// may be nil for chunks whose embedding failed; those rows keep any
// previously stored embedding.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i, c := range chunks {
		var vec *string
		if i < len(vectors) && vectors[i] != nil {
			lit := vectorstore.ToLiteral(vectors[i])
			vec = &lit
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, paper_id, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, CASE WHEN $5::text IS NULL THEN NULL ELSE $5::vector END)
ON CONFLICT (chunk_id)
DO UPDATE SET
  paper_id = EXCLUDED.paper_id,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			c.ChunkID, c.PaperID, c.ChunkIndex, c.Text, vec,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListChunksByPaper(ctx context.Context, paperID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, paper_id, chunk_index, text, created_at
FROM chunks
WHERE paper_id=$1
ORDER BY chunk_index`, paperID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Chunk, 0)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ChunkID, &c.PaperID, &c.ChunkIndex, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) DeleteChunksByPaper(ctx context.Context, paperID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE paper_id=$1`, paperID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

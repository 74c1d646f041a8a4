package vectorstore

import "context"

// Metadata carried with each stored vector; enough to rebuild a Chunk.
type Metadata struct {
	PaperID    string `json:"paper_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type Hit struct {
	ChunkID  string
	Score    float64
	Metadata Metadata
}

type Filter struct {
	PaperIDs []string
}

// Store is the backend-neutral vector index contract. All backends must
// guarantee: upsert is idempotent by chunk id (last write wins); query
// returns at most topK hits in strictly descending cosine similarity with
// ties broken by insertion order; an empty store yields an empty result,
// never an error. Scores are cosine similarity in [-1, 1] regardless of
// backend so thresholds are portable.
type Store interface {
	Upsert(ctx context.Context, chunkID string, vector []float32, meta Metadata) error
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error)
}

func (f *Filter) matches(paperID string) bool {
	if f == nil || len(f.PaperIDs) == 0 {
		return true
	}
	for _, id := range f.PaperIDs {
		if id == paperID {
			return true
		}
	}
	return false
}

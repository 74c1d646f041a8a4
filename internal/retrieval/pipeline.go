package retrieval

import (
	"context"
	"fmt"

	"litchat/internal/embedding"
	"litchat/internal/models"
	"litchat/internal/vectorstore"
)

type Options struct {
	TopK              int
	OverfetchFactor   int
	MinScore          float64
	MaxChunksPerPaper int
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = 4
	}
	if o.MaxChunksPerPaper <= 0 {
		o.MaxChunksPerPaper = 2
	}
	return o
}

// Pipeline turns a query into a ranked chunk list: embed, overfetch from
// the store, drop low scores, cap per-paper dominance, trim to top-k.
// Deterministic for identical inputs and store state.
type Pipeline struct {
	gateway *embedding.Gateway
	store   vectorstore.Store
	opts    Options
}

func NewPipeline(gateway *embedding.Gateway, store vectorstore.Store, opts Options) *Pipeline {
	return &Pipeline{gateway: gateway, store: store, opts: opts.normalized()}
}

func (p *Pipeline) Retrieve(ctx context.Context, queryText string, paperScope []string) (models.RetrievalResult, error) {
	result := models.RetrievalResult{Query: queryText, Chunks: []models.ScoredChunk{}}

	vectors, err := p.gateway.Embed(ctx, []string{queryText})
	if err != nil {
		return result, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return result, nil
	}

	var filter *vectorstore.Filter
	if len(paperScope) > 0 {
		filter = &vectorstore.Filter{PaperIDs: paperScope}
	}
	hits, err := p.store.Query(ctx, vectors[0], p.opts.TopK*p.opts.OverfetchFactor, filter)
	if err != nil {
		return result, fmt.Errorf("vector query: %w", err)
	}

	perPaper := make(map[string]int)
	seen := make(map[string]bool)
	for _, h := range hits {
		if h.Score < p.opts.MinScore {
			continue
		}
		if seen[h.ChunkID] {
			continue
		}
		// Hits arrive in descending score order, so keeping the first
		// MaxChunksPerPaper per paper keeps its highest-scoring chunks.
		if perPaper[h.Metadata.PaperID] >= p.opts.MaxChunksPerPaper {
			continue
		}
		seen[h.ChunkID] = true
		perPaper[h.Metadata.PaperID]++
		result.Chunks = append(result.Chunks, models.ScoredChunk{
			Chunk: models.Chunk{
				ChunkID:    h.ChunkID,
				PaperID:    h.Metadata.PaperID,
				ChunkIndex: h.Metadata.ChunkIndex,
				Text:       h.Metadata.Text,
			},
			Score: h.Score,
		})
		if len(result.Chunks) == p.opts.TopK {
			break
		}
	}
	return result, nil
}

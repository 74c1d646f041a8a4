package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"litchat/internal/embedding"
	"litchat/internal/providers"
	"litchat/internal/vectorstore"
)

type queryEmbedder struct {
	vector []float32
}

func (q *queryEmbedder) Embed(_ context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	out := make([][]float32, len(req.Inputs))
	for i := range out {
		out[i] = q.vector
	}
	return out, providers.ProviderInfo{Name: "fake"}, nil
}

func seedStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	s := vectorstore.NewMemoryStore()
	ctx := context.Background()
	entries := []struct {
		id, paper string
		vec       []float32
	}{
		{"c1", "p1", []float32{1, 0}},
		{"c2", "p1", []float32{0.9, 0.1}},
		{"c3", "p1", []float32{0.5, 0.5}},
		{"c4", "p2", []float32{0.6, 0.4}},
		{"c5", "p3", []float32{0.1, 1}},
	}
	for i, e := range entries {
		meta := vectorstore.Metadata{PaperID: e.paper, ChunkIndex: i, Text: e.id + " text"}
		require.NoError(t, s.Upsert(ctx, e.id, e.vec, meta))
	}
	return s
}

func newTestPipeline(store vectorstore.Store, opts Options) *Pipeline {
	gateway := embedding.NewGateway(&queryEmbedder{vector: []float32{1, 0}}, embedding.Options{}, nil)
	return NewPipeline(gateway, store, opts)
}

func TestRetrieveCapsChunksPerPaper(t *testing.T) {
	p := newTestPipeline(seedStore(t), Options{TopK: 3, OverfetchFactor: 4, MinScore: 0.25, MaxChunksPerPaper: 2})

	res, err := p.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)
	// c3 is p1's third-best chunk and must give way to p2's best.
	require.Equal(t, "c1", res.Chunks[0].Chunk.ChunkID)
	require.Equal(t, "c2", res.Chunks[1].Chunk.ChunkID)
	require.Equal(t, "c4", res.Chunks[2].Chunk.ChunkID)
}

func TestRetrieveFiltersLowScores(t *testing.T) {
	p := newTestPipeline(seedStore(t), Options{TopK: 10, OverfetchFactor: 2, MinScore: 0.25, MaxChunksPerPaper: 10})

	res, err := p.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	for _, c := range res.Chunks {
		require.GreaterOrEqual(t, c.Score, 0.25)
		require.NotEqual(t, "c5", c.Chunk.ChunkID)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	store := seedStore(t)
	p := newTestPipeline(store, Options{TopK: 3, MinScore: 0.25, MaxChunksPerPaper: 2})

	first, err := p.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	second, err := p.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRetrievePaperScope(t *testing.T) {
	p := newTestPipeline(seedStore(t), Options{TopK: 5, MinScore: 0, MaxChunksPerPaper: 10})

	res, err := p.Retrieve(context.Background(), "query", []string{"p2"})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	require.Equal(t, "c4", res.Chunks[0].Chunk.ChunkID)
}

func TestRetrieveEmptyStore(t *testing.T) {
	p := newTestPipeline(vectorstore.NewMemoryStore(), Options{TopK: 5, MinScore: 0.25})

	res, err := p.Retrieve(context.Background(), "query", nil)
	require.NoError(t, err)
	require.Empty(t, res.Chunks)
}

package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryEntry struct {
	chunkID string
	vector  []float32
	meta    Metadata
	seq     int
}

// MemoryStore is an in-process brute-force cosine index. Good enough for
// single-node deployments and deterministic tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
	index   map[string]int
	nextSeq int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunkID string, vector []float32, meta Metadata) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]float32, len(vector))
	copy(v, vector)
	if i, ok := s.index[chunkID]; ok {
		// Last write wins; insertion order (seq) is preserved.
		s.entries[i].vector = v
		s.entries[i].meta = meta
		return nil
	}
	s.index[chunkID] = len(s.entries)
	s.entries = append(s.entries, memoryEntry{chunkID: chunkID, vector: v, meta: meta, seq: s.nextSeq})
	s.nextSeq++
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	_ = ctx
	if topK <= 0 {
		return []Hit{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		hit Hit
		seq int
	}
	candidates := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.matches(e.meta.PaperID) {
			continue
		}
		candidates = append(candidates, scored{
			hit: Hit{ChunkID: e.chunkID, Score: cosine(vector, e.vector), Metadata: e.meta},
			seq: e.seq,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hit.Score != candidates[j].hit.Score {
			return candidates[i].hit.Score > candidates[j].hit.Score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]Hit, 0, topK)
	for _, c := range candidates[:topK] {
		out = append(out, c.hit)
	}
	return out, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

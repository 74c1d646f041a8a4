package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MockProvider produces deterministic vectors and canned completions so the
// whole pipeline runs without any external service.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, ProviderInfo, error) {
	_ = ctx
	text := mockCompletionText(req)
	return CompleteResponse{
		Text:             text,
		PromptTokens:     estimateMockTokens(req),
		CompletionTokens: (len(text) + 3) / 4,
	}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func (m *MockProvider) Stream(ctx context.Context, req CompleteRequest) (<-chan Fragment, ProviderInfo, error) {
	text := mockCompletionText(req)
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, word := range strings.SplitAfter(text, " ") {
			if word == "" {
				continue
			}
			if !emitFragment(ctx, out, Fragment{Text: word}) {
				return
			}
		}
		emitFragment(ctx, out, Fragment{Done: true})
	}()
	return out, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func mockCompletionText(req CompleteRequest) string {
	op := strings.ToLower(req.Operation)
	switch {
	case strings.Contains(op, "rag") || strings.Contains(op, "answer"):
		b := strings.Builder{}
		b.WriteString("Deterministic answer based on retrieved evidence.")
		for i := range req.Context {
			b.WriteString(" [C")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("]")
		}
		if len(req.Context) == 0 {
			b.WriteString(" No sources were available, so this answer draws on general knowledge.")
		}
		return b.String()
	case strings.Contains(op, "summar"):
		return "Mock summary: the paper presents a method, evaluates it, and discusses limitations."
	case strings.Contains(op, "route") || strings.Contains(op, "intent"):
		return "qa"
	default:
		return "Mock response."
	}
}

func estimateMockTokens(req CompleteRequest) int {
	n := len(req.Prompt)
	for _, c := range req.Context {
		n += len(c)
	}
	return (n + 3) / 4
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		v := float32(u%2000)/1000.0 - 1.0
		vec[i] = v
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (math.Sqrt(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}

package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/models"
	"litchat/internal/providers"
	"litchat/internal/util"
)

type Options struct {
	BatchSize   int
	Dimension   int
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.Factor < 1 {
		o.Factor = 2
	}
	return o
}

// Gateway fronts an EmbeddingProvider with batching, duplicate collapsing
// and retry. Output always has one vector per input, in input order.
type Gateway struct {
	provider providers.EmbeddingProvider
	opts     Options
	ledger   *costs.Ledger
	log      *zap.Logger
}

func NewGateway(provider providers.EmbeddingProvider, opts Options, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{provider: provider, opts: opts.normalized(), log: log}
}

// SetLedger routes embedding spend through the cost ledger. Embeds are not
// tied to a session, so they land in the global totals only.
func (g *Gateway) SetLedger(l *costs.Ledger) {
	g.ledger = l
}

// Embed returns one vector per input string, preserving order. Empty input
// yields an empty result, not an error. Identical texts are embedded once
// and the vector shared. After retries are exhausted the error is a
// *core.EmbeddingFailure carrying the original indices that failed.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	unique := make([]string, 0, len(texts))
	position := make(map[string]int, len(texts))
	for _, t := range texts {
		if _, ok := position[t]; ok {
			continue
		}
		position[t] = len(unique)
		unique = append(unique, t)
	}

	vectors := make([][]float32, len(unique))
	for start := 0; start < len(unique); start += g.opts.BatchSize {
		end := start + g.opts.BatchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch, err := g.embedBatch(ctx, unique[start:end])
		if err != nil {
			return nil, &core.EmbeddingFailure{
				FailedIndices: failedIndices(texts, position, start),
				Err:           err,
			}
		}
		copy(vectors[start:end], batch)
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectors[position[t]]
	}
	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	delay := g.opts.BaseDelay
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			g.log.Debug("retrying embed batch",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
			delay = time.Duration(float64(delay) * g.opts.Factor)
		}
		vectors, info, err := g.provider.Embed(ctx, providers.EmbedRequest{
			Operation: "embed",
			Inputs:    batch,
			Dimension: g.opts.Dimension,
		})
		if err == nil {
			if len(vectors) != len(batch) {
				lastErr = fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vectors), len(batch))
				continue
			}
			if g.ledger != nil {
				tokens := 0
				for _, t := range batch {
					tokens += util.EstimateTokens(t)
				}
				g.ledger.Record("", models.OpEmbed, info.Name, info.Model, tokens, 0)
			}
			return vectors, nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// failedIndices maps the unique positions from the failing batch onward
// back to positions in the caller's original slice.
func failedIndices(texts []string, position map[string]int, failedFrom int) []int {
	out := make([]int, 0)
	for i, t := range texts {
		if position[t] >= failedFrom {
			out = append(out, i)
		}
	}
	return out
}

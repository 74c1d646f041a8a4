package sources

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"litchat/internal/core"
	"litchat/internal/models"
)

// Client is one literature source.
type Client interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]models.Paper, error)
}

// Aggregator fans a search out to every configured source in parallel. A
// failing source is reported in FailedSources rather than failing the whole
// search; only when every source fails does Search return an error.
type Aggregator struct {
	clients []Client
	log     *zap.Logger
}

func NewAggregator(log *zap.Logger, clients ...Client) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{clients: clients, log: log}
}

// Search queries every configured source.
func (a *Aggregator) Search(ctx context.Context, query string, limit int) (models.SearchResult, error) {
	return a.search(ctx, query, limit, a.clients)
}

// SearchSource narrows the search to one named source. An unknown source
// name is a validation error, not a silent empty result.
func (a *Aggregator) SearchSource(ctx context.Context, query, source string, limit int) (models.SearchResult, error) {
	if source == "" {
		return a.search(ctx, query, limit, a.clients)
	}
	for _, c := range a.clients {
		if c.Name() == source {
			return a.search(ctx, query, limit, []Client{c})
		}
	}
	return models.SearchResult{}, core.NewValidationError("source", fmt.Sprintf("unknown source %q", source))
}

func (a *Aggregator) search(ctx context.Context, query string, limit int, clients []Client) (models.SearchResult, error) {
	result := models.SearchResult{Query: query, Papers: []models.Paper{}}

	type outcome struct {
		name   string
		papers []models.Paper
		err    error
	}
	outcomes := make([]outcome, len(clients))
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c Client) {
			defer wg.Done()
			papers, err := c.Search(ctx, query, limit)
			outcomes[i] = outcome{name: c.Name(), papers: papers, err: err}
		}(i, c)
	}
	wg.Wait()

	var firstErr error
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.err != nil {
			a.log.Warn("literature source failed",
				zap.String("source", o.name),
				zap.Error(o.err))
			result.FailedSources = append(result.FailedSources, o.name)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		for _, p := range o.papers {
			if seen[p.PaperID] {
				continue
			}
			seen[p.PaperID] = true
			result.Papers = append(result.Papers, p)
		}
	}
	if len(result.Papers) == 0 && len(result.FailedSources) == len(clients) && firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"litchat/internal/chains"
	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/memory"
	"litchat/internal/models"
	"litchat/internal/providers"
	"litchat/internal/retrieval"
	"litchat/internal/util"
)

// Event is one server-sent unit of a streamed answer. Delta events carry
// text only; the single final event carries Done plus citations and flags.
type Event struct {
	Delta                string            `json:"delta,omitempty"`
	Done                 bool              `json:"done,omitempty"`
	Truncated            bool              `json:"truncated,omitempty"`
	Citations            []models.Citation `json:"citations,omitempty"`
	UnsupportedBySources bool              `json:"unsupported_by_sources,omitempty"`
	CitationMismatch     bool              `json:"citation_mismatch,omitempty"`
	SessionID            string            `json:"session_id,omitempty"`
}

// Coordinator runs the retrieval pipeline and streams the model answer as
// events. The session transcript is committed exactly once, after the stream
// finishes: a cancelled stream writes nothing, a timed-out stream commits
// the partial text and flags the final event as truncated.
type Coordinator struct {
	retriever *retrieval.Pipeline
	llm       providers.LLMProvider
	sessions  *memory.Store
	ledger    *costs.Ledger
	log       *zap.Logger
}

func NewCoordinator(retriever *retrieval.Pipeline, llm providers.LLMProvider, sessions *memory.Store, ledger *costs.Ledger, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{retriever: retriever, llm: llm, sessions: sessions, ledger: ledger, log: log}
}

// Stream answers one question, invoking emit for each event in order. The
// event sequence is lazy, finite and not restartable. Stream returns
// core.ErrStreamingAborted (wrapped) when the client cancelled, in which
// case no message was committed.
func (c *Coordinator) Stream(ctx context.Context, sessionID, query string, paperScope []string, emit func(Event) error) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return core.NewValidationError("query", "must not be empty")
	}
	sessionID, scope := c.resolveSession(sessionID, paperScope)

	retrieved, err := c.retriever.Retrieve(ctx, query, scope)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", core.ErrStreamingAborted, err)
		}
		// Degraded retrieval is not a request failure; the final event
		// carries unsupported_by_sources so the client sees it.
		c.log.Warn("retrieval degraded, streaming from general knowledge",
			zap.String("session_id", sessionID),
			zap.Error(err))
		retrieved = models.RetrievalResult{Query: query}
	}
	history, _ := c.sessions.Window(sessionID, 0)

	fragments, info, err := c.llm.Stream(ctx, providers.CompleteRequest{
		Operation: "rag_answer",
		System:    chains.RAGSystemPrompt,
		Prompt:    chains.BuildPrompt(history, query),
		Context:   chains.ContextPassages(retrieved.Chunks),
	})
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	var full strings.Builder
	truncated := false
	for frag := range fragments {
		if frag.Err != nil {
			if errors.Is(frag.Err, context.DeadlineExceeded) {
				truncated = true
				break
			}
			if errors.Is(frag.Err, context.Canceled) {
				return fmt.Errorf("%w: %v", core.ErrStreamingAborted, frag.Err)
			}
			return fmt.Errorf("stream fragment: %w", frag.Err)
		}
		if frag.Text != "" {
			full.WriteString(frag.Text)
			if err := emit(Event{Delta: frag.Text}); err != nil {
				// Emit failing means the client is gone; drop the turn.
				return fmt.Errorf("%w: %v", core.ErrStreamingAborted, err)
			}
		}
		if frag.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil && !truncated {
		if errors.Is(err, context.DeadlineExceeded) {
			truncated = true
		} else {
			return fmt.Errorf("%w: %v", core.ErrStreamingAborted, err)
		}
	}

	text := full.String()
	citations, mismatch := chains.ResolveCitations(text, retrieved.Chunks)

	c.ledger.Record(sessionID, models.OpComplete, info.Name, info.Model,
		util.EstimateTokens(query), util.EstimateTokens(text))

	c.sessions.AppendAll(context.WithoutCancel(ctx), sessionID,
		models.Message{Role: models.RoleUser, Content: query},
		models.Message{Role: models.RoleAssistant, Content: text, Citations: citations},
	)

	final := Event{
		Done:                 true,
		Truncated:            truncated,
		Citations:            citations,
		UnsupportedBySources: len(retrieved.Chunks) == 0,
		CitationMismatch:     mismatch,
		SessionID:            sessionID,
	}
	if err := emit(final); err != nil {
		c.log.Debug("final stream event dropped", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) resolveSession(sessionID string, paperScope []string) (string, []string) {
	if sessionID == "" {
		return c.sessions.Create(paperScope), paperScope
	}
	if len(paperScope) > 0 {
		c.sessions.SetPaperScope(sessionID, paperScope)
		return sessionID, paperScope
	}
	if sess, ok := c.sessions.Get(sessionID); ok {
		return sessionID, sess.PaperScope
	}
	return sessionID, nil
}

package chains

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/memory"
	"litchat/internal/models"
	"litchat/internal/providers"
	"litchat/internal/retrieval"
	"litchat/internal/util"
)

// RAGSystemPrompt instructs the model to cite context passages with their
// [C#] markers. Both the blocking chain and the streaming path send it, so
// citation extraction works the same on either route.
const RAGSystemPrompt = `You are a research assistant answering questions about scholarly papers. Ground every claim in the numbered context passages and cite them inline with their [C#] markers. If the passages do not cover the question, say so and answer from general knowledge.`

// Answer is the result of one grounded question/answer turn. The degradation
// flags are part of the payload so clients can render caveats instead of the
// service silently downgrading.
type Answer struct {
	SessionID            string            `json:"session_id"`
	Text                 string            `json:"text"`
	Citations            []models.Citation `json:"citations"`
	UnsupportedBySources bool              `json:"unsupported_by_sources"`
	CitationMismatch     bool              `json:"citation_mismatch"`
	PromptTokens         int               `json:"prompt_tokens"`
	CompletionTokens     int               `json:"completion_tokens"`
}

// RAG runs the retrieve-then-answer pipeline against session history and
// commits the finished exchange back to memory.
type RAG struct {
	retriever *retrieval.Pipeline
	llm       providers.LLMProvider
	sessions  *memory.Store
	ledger    *costs.Ledger
	log       *zap.Logger
}

func NewRAG(retriever *retrieval.Pipeline, llm providers.LLMProvider, sessions *memory.Store, ledger *costs.Ledger, log *zap.Logger) *RAG {
	if log == nil {
		log = zap.NewNop()
	}
	return &RAG{retriever: retriever, llm: llm, sessions: sessions, ledger: ledger, log: log}
}

// Answer resolves one question. An empty session id starts a new session;
// paperScope narrows retrieval and, when set, replaces the session scope.
func (r *RAG) Answer(ctx context.Context, sessionID, query string, paperScope []string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, core.NewValidationError("query", "must not be empty")
	}
	sessionID, scope := r.resolveSession(sessionID, paperScope)

	retrieved, err := r.retriever.Retrieve(ctx, query, scope)
	if err != nil {
		if ctx.Err() != nil {
			return Answer{}, fmt.Errorf("retrieve context: %w", err)
		}
		// A degraded vector store or embedding provider downgrades the
		// answer to general knowledge instead of failing the turn; the
		// unsupported_by_sources flag makes the degradation visible.
		r.log.Warn("retrieval degraded, answering from general knowledge", zap.Error(err))
		retrieved = models.RetrievalResult{Query: query}
	}

	history, _ := r.sessions.Window(sessionID, 0)
	req := providers.CompleteRequest{
		Operation: "rag_answer",
		System:    RAGSystemPrompt,
		Prompt:    BuildPrompt(history, query),
		Context:   ContextPassages(retrieved.Chunks),
	}
	resp, info, err := r.llm.Complete(ctx, req)
	if err != nil {
		return Answer{}, fmt.Errorf("complete answer: %w", err)
	}
	r.ledger.Record(sessionID, models.OpComplete, info.Name, info.Model, resp.PromptTokens, resp.CompletionTokens)

	ans := Answer{
		SessionID:        sessionID,
		Text:             resp.Text,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}
	ans.Citations, ans.CitationMismatch = ResolveCitations(resp.Text, retrieved.Chunks)
	ans.UnsupportedBySources = len(retrieved.Chunks) == 0

	r.sessions.AppendAll(ctx, sessionID,
		models.Message{Role: models.RoleUser, Content: query},
		models.Message{Role: models.RoleAssistant, Content: ans.Text, Citations: ans.Citations},
	)
	return ans, nil
}

// Chat answers a conversational turn without consulting the vector store.
// The exchange still lands in session memory and the cost ledger, so a chat
// turn and a grounded turn look the same to the rest of the system.
func (r *RAG) Chat(ctx context.Context, sessionID, query string) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, core.NewValidationError("query", "must not be empty")
	}
	sessionID, _ = r.resolveSession(sessionID, nil)

	history, _ := r.sessions.Window(sessionID, 0)
	resp, info, err := r.llm.Complete(ctx, providers.CompleteRequest{
		Operation: "chat",
		System:    "You are a helpful research assistant. Keep conversational replies short.",
		Prompt:    BuildPrompt(history, query),
	})
	if err != nil {
		return Answer{}, fmt.Errorf("complete chat: %w", err)
	}
	r.ledger.Record(sessionID, models.OpComplete, info.Name, info.Model, resp.PromptTokens, resp.CompletionTokens)

	ans := Answer{
		SessionID:        sessionID,
		Text:             resp.Text,
		Citations:        []models.Citation{},
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}
	r.sessions.AppendAll(ctx, sessionID,
		models.Message{Role: models.RoleUser, Content: query},
		models.Message{Role: models.RoleAssistant, Content: ans.Text},
	)
	return ans, nil
}

func (r *RAG) resolveSession(sessionID string, paperScope []string) (string, []string) {
	if sessionID == "" {
		return r.sessions.Create(paperScope), paperScope
	}
	if len(paperScope) > 0 {
		r.sessions.SetPaperScope(sessionID, paperScope)
		return sessionID, paperScope
	}
	if sess, ok := r.sessions.Get(sessionID); ok {
		return sessionID, sess.PaperScope
	}
	return sessionID, nil
}

// BuildPrompt folds the windowed history above the current question so the
// model sees prior turns without a separate message array.
func BuildPrompt(history []models.Message, query string) string {
	if len(history) == 0 {
		return query
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(query)
	return b.String()
}

// ContextPassages renders retrieved chunks as numbered passages. The [C#]
// marker the model must echo is position-based: [C1] is the first passage.
func ContextPassages(chunks []models.ScoredChunk) []string {
	out := make([]string, 0, len(chunks))
	for i, c := range chunks {
		out = append(out, fmt.Sprintf("[C%d] (%s) %s", i+1, c.Chunk.PaperID, c.Chunk.Text))
	}
	return out
}

var citationMarker = regexp.MustCompile(`\[C(\d+)\]`)

// ResolveCitations maps [C#] markers in the answer back to the retrieved
// chunks. Markers pointing outside the passage list set the mismatch flag
// and are dropped; each passage is cited at most once, in first-use order.
func ResolveCitations(answer string, chunks []models.ScoredChunk) ([]models.Citation, bool) {
	citations := []models.Citation{}
	mismatch := false
	seen := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			mismatch = true
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		c := chunks[n-1]
		citations = append(citations, models.Citation{
			RefID:   fmt.Sprintf("C%d", n),
			PaperID: c.Chunk.PaperID,
			ChunkID: c.Chunk.ChunkID,
			Snippet: util.Snippet(c.Chunk.Text, 200),
			Score:   c.Score,
		})
	}
	return citations, mismatch
}

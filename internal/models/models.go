package models

import "time"

// Paper identifiers are source-qualified, e.g. "arxiv:2301.12345" or
// "s2:649def34f8be52c8b66281af98ae884c09aef38b". Re-ingesting a paper
// overwrites the previous record for the same identifier.
type Paper struct {
	PaperID    string    `json:"paper_id"`
	Source     string    `json:"source"`
	Title      string    `json:"title,omitempty"`
	Authors    []string  `json:"authors,omitempty"`
	Year       *int      `json:"year,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
	URL        string    `json:"url,omitempty"`
	Venue      string    `json:"venue,omitempty"`
	DOI        string    `json:"doi,omitempty"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	PaperID    string    `json:"paper_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message entries are append-only within a session.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

type Citation struct {
	RefID   string  `json:"ref_id"`
	PaperID string  `json:"paper_id"`
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}

type Session struct {
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Messages   []Message `json:"messages"`
	PaperScope []string  `json:"paper_scope,omitempty"`
	TokensUsed int       `json:"tokens_used"`
}

type OperationKind string

const (
	OpEmbed    OperationKind = "embed"
	OpComplete OperationKind = "complete"
	OpRetrieve OperationKind = "retrieve"
)

// CostRecord is write-once; the ledger aggregates per session and globally.
type CostRecord struct {
	SessionID        string        `json:"session_id"`
	Operation        OperationKind `json:"operation"`
	Provider         string        `json:"provider,omitempty"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Timestamp        time.Time     `json:"timestamp"`
}

type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult holds scored chunks in descending score order with no
// duplicate chunk ids.
type RetrievalResult struct {
	Query  string        `json:"query"`
	Chunks []ScoredChunk `json:"chunks"`
}

// SearchResult reports per-source paper hits plus the sources that failed,
// so callers see partial degradation instead of a silent subset.
type SearchResult struct {
	Query         string   `json:"query"`
	Papers        []Paper  `json:"papers"`
	FailedSources []string `json:"failed_sources,omitempty"`
}

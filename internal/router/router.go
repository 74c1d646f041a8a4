package router

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"litchat/internal/providers"
)

type Intent string

const (
	IntentQA        Intent = "qa"
	IntentChat      Intent = "chat"
	IntentSummarize Intent = "summarize"
	IntentCite      Intent = "cite"
	IntentSearch    Intent = "search"
)

// Route is the tagged routing decision. Handlers dispatch on Intent alone;
// PaperIDs carries any identifiers found in the query text.
type Route struct {
	Intent   Intent   `json:"intent"`
	PaperIDs []string `json:"paper_ids,omitempty"`
	ViaModel bool     `json:"via_model"`
}

// Keyword tables are checked against the lowercased query. Multi-word
// phrases are substring matches; single words match on word boundaries.
var intentKeywords = map[Intent][]string{
	IntentSummarize: {"summarize", "summary", "summarise", "tl;dr", "tldr", "overview of", "brief me"},
	IntentCite:      {"cite", "citation", "bibtex", "reference for", "bibliography", "apa", "mla"},
	IntentSearch:    {"find papers", "search for", "look up", "papers about", "papers on", "recent work on", "literature on"},
	IntentQA:        {"why", "how does", "what is", "what are", "explain", "compare", "difference between"},
	IntentChat:      {"hello", "hi", "hey", "thanks", "thank you", "good morning", "who are you"},
}

var (
	arxivID      = regexp.MustCompile(`\b(?:arxiv:)?(\d{4}\.\d{4,5})(?:v\d+)?\b`)
	semanticSchl = regexp.MustCompile(`\bs2:([0-9a-f]{40})\b`)
	wordBoundary = regexp.MustCompile(`\w+`)
)

// Router classifies queries into intents. The keyword pass is deterministic;
// the model is consulted only when no keyword matches, and a model failure
// degrades to qa rather than surfacing an error.
type Router struct {
	llm providers.LLMProvider
	log *zap.Logger
}

func New(llm providers.LLMProvider, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{llm: llm, log: log}
}

// Route classifies one turn. activeScope is the session's current paper
// scope; when the query names a paper or a scope is active, an otherwise
// ambiguous turn is about those papers and resolves to qa without a model
// round trip.
func (r *Router) Route(ctx context.Context, query string, activeScope []string) Route {
	route := Route{Intent: IntentQA, PaperIDs: ExtractPaperIDs(query)}

	if intent, decided := classifyKeywords(query); decided {
		route.Intent = intent
		return route
	}
	if len(route.PaperIDs) > 0 || len(activeScope) > 0 {
		return route
	}

	intent, ok := r.classifyModel(ctx, query)
	if !ok {
		return route
	}
	route.Intent = intent
	route.ViaModel = true
	return route
}

// classifyKeywords scores each intent by keyword hits. A unique best score
// wins; a tie between intents falls back to qa so ambiguous queries get the
// most general handler rather than small talk.
func classifyKeywords(query string) (Intent, bool) {
	q := strings.ToLower(query)
	words := make(map[string]bool)
	for _, w := range wordBoundary.FindAllString(q, -1) {
		words[w] = true
	}

	var best Intent
	bestScore, tied := 0, false
	for _, intent := range []Intent{IntentSummarize, IntentCite, IntentSearch, IntentQA, IntentChat} {
		score := 0
		for _, kw := range intentKeywords[intent] {
			if strings.ContainsRune(kw, ' ') || strings.ContainsRune(kw, ';') {
				if strings.Contains(q, kw) {
					score++
				}
			} else if words[kw] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = intent, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore == 0 {
		return "", false
	}
	if tied {
		return IntentQA, true
	}
	return best, true
}

func (r *Router) classifyModel(ctx context.Context, query string) (Intent, bool) {
	if r.llm == nil {
		return "", false
	}
	resp, _, err := r.llm.Complete(ctx, providers.CompleteRequest{
		Operation: "route_intent",
		System:    "Classify the user query into exactly one of: qa, chat, summarize, cite, search. Reply with the single word only.",
		Prompt:    query,
		MaxTokens: 8,
	})
	if err != nil {
		r.log.Debug("intent model fallback failed", zap.Error(err))
		return "", false
	}
	switch intent := Intent(strings.ToLower(strings.TrimSpace(resp.Text))); intent {
	case IntentQA, IntentChat, IntentSummarize, IntentCite, IntentSearch:
		return intent, true
	default:
		return "", false
	}
}

// ExtractPaperIDs pulls source-qualified identifiers out of free text.
// Bare arXiv ids are normalized to the arxiv: prefix.
func ExtractPaperIDs(query string) []string {
	q := strings.ToLower(query)
	seen := make(map[string]bool)
	ids := []string{}
	for _, m := range arxivID.FindAllStringSubmatch(q, -1) {
		id := "arxiv:" + m[1]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range semanticSchl.FindAllStringSubmatch(q, -1) {
		id := "s2:" + m[1]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

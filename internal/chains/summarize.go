package chains

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/models"
	"litchat/internal/providers"
)

type SummaryFormat string

const (
	FormatBrief    SummaryFormat = "brief"
	FormatDetailed SummaryFormat = "detailed"
	FormatBullet   SummaryFormat = "bullet"
)

var formatInstructions = map[SummaryFormat]string{
	FormatBrief:    "Summarize in two to three sentences covering the core contribution.",
	FormatDetailed: "Summarize in several paragraphs: problem, method, results, limitations.",
	FormatBullet:   "Summarize as five to eight bullet points, one finding per bullet.",
}

// ParseSummaryFormat validates a client-supplied format string. Empty input
// defaults to brief.
func ParseSummaryFormat(s string) (SummaryFormat, error) {
	if s == "" {
		return FormatBrief, nil
	}
	f := SummaryFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formatInstructions[f]; !ok {
		return "", core.NewValidationError("format", fmt.Sprintf("unknown format %q, expected brief, detailed or bullet", s))
	}
	return f, nil
}

type Summarizer struct {
	llm    providers.LLMProvider
	ledger *costs.Ledger
}

func NewSummarizer(llm providers.LLMProvider, ledger *costs.Ledger) *Summarizer {
	return &Summarizer{llm: llm, ledger: ledger}
}

// SummarizePaper produces a summary of the given paper from its chunk text,
// falling back to the abstract when no chunks were ingested.
func (s *Summarizer) SummarizePaper(ctx context.Context, paper models.Paper, chunks []models.Chunk, format SummaryFormat) (string, error) {
	instruction, ok := formatInstructions[format]
	if !ok {
		return "", core.NewValidationError("format", fmt.Sprintf("unknown format %q", format))
	}
	body := paper.Abstract
	if len(chunks) > 0 {
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Text)
		}
		body = strings.Join(parts, "\n\n")
	}
	if strings.TrimSpace(body) == "" {
		return "", core.NewValidationError("paper_id", "paper has no text to summarize")
	}

	resp, info, err := s.llm.Complete(ctx, providers.CompleteRequest{
		Operation: "summarize_paper",
		System:    "You summarize scholarly papers faithfully. Do not invent results.",
		Prompt:    fmt.Sprintf("%s\n\nTitle: %s\n\n%s", instruction, paper.Title, body),
	})
	if err != nil {
		return "", fmt.Errorf("summarize paper %s: %w", paper.PaperID, err)
	}
	s.ledger.Record("", models.OpComplete, info.Name, info.Model, resp.PromptTokens, resp.CompletionTokens)
	return resp.Text, nil
}

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s+`)

// ParseBullets splits a bullet-format summary into individual points,
// stripping list markers. Models vary between "-", "*" and numbered lists;
// non-list lines are kept as points too so nothing is silently dropped.
func ParseBullets(text string) []string {
	points := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line != "" {
			points = append(points, line)
		}
	}
	return points
}

// Summarize condenses a conversation prefix into a running summary,
// satisfying the session store's summarizer contract.
func (s *Summarizer) Summarize(ctx context.Context, previous string, messages []models.Message) (string, error) {
	var b strings.Builder
	if previous != "" {
		b.WriteString("Earlier summary: ")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	resp, info, err := s.llm.Complete(ctx, providers.CompleteRequest{
		Operation: "summarize_conversation",
		System:    "Condense the conversation into a short summary that preserves facts, paper ids and open questions.",
		Prompt:    b.String(),
		MaxTokens: 256,
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	s.ledger.Record("", models.OpComplete, info.Name, info.Model, resp.PromptTokens, resp.CompletionTokens)
	return resp.Text, nil
}

package chains

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/models"
	"litchat/internal/providers"
)

func newSummarizerUnderTest(t *testing.T) *Summarizer {
	t.Helper()
	ledger := costs.NewLedger(costs.Pricing{}, nil, nil)
	t.Cleanup(ledger.Close)
	return NewSummarizer(providers.NewMockProvider(8), ledger)
}

func TestParseSummaryFormat(t *testing.T) {
	f, err := ParseSummaryFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatBrief, f)

	f, err = ParseSummaryFormat(" Bullet ")
	require.NoError(t, err)
	require.Equal(t, FormatBullet, f)

	_, err = ParseSummaryFormat("haiku")
	require.Error(t, err)
	require.True(t, core.IsValidation(err))
}

func TestSummarizePaperFromChunks(t *testing.T) {
	s := newSummarizerUnderTest(t)
	paper := models.Paper{PaperID: "arxiv:2301.1", Title: "A Paper"}
	chunks := []models.Chunk{{Text: "method section"}, {Text: "results section"}}

	out, err := s.SummarizePaper(context.Background(), paper, chunks, FormatDetailed)
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestSummarizePaperFallsBackToAbstract(t *testing.T) {
	s := newSummarizerUnderTest(t)
	paper := models.Paper{PaperID: "arxiv:2301.1", Title: "A Paper", Abstract: "we study things"}

	out, err := s.SummarizePaper(context.Background(), paper, nil, FormatBrief)
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestSummarizePaperRejectsEmptyText(t *testing.T) {
	s := newSummarizerUnderTest(t)

	_, err := s.SummarizePaper(context.Background(), models.Paper{PaperID: "arxiv:2301.1"}, nil, FormatBrief)
	require.Error(t, err)
	require.True(t, core.IsValidation(err))
}

func TestSummarizePaperRejectsUnknownFormat(t *testing.T) {
	s := newSummarizerUnderTest(t)

	_, err := s.SummarizePaper(context.Background(), models.Paper{Abstract: "text"}, nil, SummaryFormat("sonnet"))
	require.Error(t, err)
	require.True(t, core.IsValidation(err))
}

func TestParseBullets(t *testing.T) {
	text := "- first finding\n* second finding\n1. third finding\n\n  plain closing line"
	require.Equal(t, []string{
		"first finding",
		"second finding",
		"third finding",
		"plain closing line",
	}, ParseBullets(text))

	require.Empty(t, ParseBullets("  \n\n"))
}

func TestSummarizeConversation(t *testing.T) {
	s := newSummarizerUnderTest(t)
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "what is attention?"},
		{Role: models.RoleAssistant, Content: "a weighting mechanism"},
	}
	out, err := s.Summarize(context.Background(), "prior recap", msgs)
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

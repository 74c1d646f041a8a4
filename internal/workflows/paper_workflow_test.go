package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"litchat/internal/activities"
	"litchat/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newIngestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "FetchPaperActivity", func(context.Context, activities.FetchPaperInput) (activities.FetchPaperOutput, error) {
		return activities.FetchPaperOutput{}, nil
	})
	registerActivityName(env, "DownloadPDFActivity", func(context.Context, activities.DownloadPDFInput) (activities.DownloadPDFOutput, error) {
		return activities.DownloadPDFOutput{}, nil
	})
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "StoreChunksActivity", func(context.Context, activities.StoreChunksInput) error { return nil })
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	return env
}

func TestPaperIngestWorkflowSuccess(t *testing.T) {
	env := newIngestEnv(t)
	paper := models.Paper{PaperID: "arxiv:2301.12345", URL: "https://arxiv.org/pdf/2301.12345", Abstract: "abs"}
	chunks := []models.Chunk{{ChunkID: "c1", PaperID: paper.PaperID, Text: "chunk"}}

	env.OnActivity("FetchPaperActivity", mock.Anything, activities.FetchPaperInput{PaperID: paper.PaperID}).
		Return(activities.FetchPaperOutput{Paper: paper}, nil)
	env.OnActivity("DownloadPDFActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPDFOutput{Path: "/tmp/p.pdf"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{Path: "/tmp/p.pdf"}).
		Return(activities.ExtractTextOutput{Text: "full body text"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, activities.EmbedChunksInput{Chunks: chunks}).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}}, nil)
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, activities.UpdatePaperStatusInput{PaperID: paper.PaperID, Status: "ingested"}).
		Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: paper.PaperID})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ingested", out)
}

func TestPaperIngestWorkflowFallsBackToAbstract(t *testing.T) {
	env := newIngestEnv(t)
	paper := models.Paper{PaperID: "s2:abc", Abstract: "the abstract text"}

	env.OnActivity("FetchPaperActivity", mock.Anything, mock.Anything).
		Return(activities.FetchPaperOutput{Paper: paper}, nil)
	env.OnActivity("DownloadPDFActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPDFOutput{}, errors.New("paper s2:abc has no pdf url"))
	env.OnActivity("ChunkTextActivity", mock.Anything, activities.ChunkTextInput{PaperID: paper.PaperID, Text: paper.Abstract}).
		Return(activities.ChunkTextOutput{Chunks: []models.Chunk{{ChunkID: "c1"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}}}, nil)
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: paper.PaperID})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ingested", out)
}

func TestPaperIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	env := newIngestEnv(t)
	paper := models.Paper{PaperID: "s2:empty"}

	env.OnActivity("FetchPaperActivity", mock.Anything, mock.Anything).
		Return(activities.FetchPaperOutput{Paper: paper}, nil)
	env.OnActivity("DownloadPDFActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPDFOutput{}, errors.New("paper s2:empty has no pdf url"))
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, activities.UpdatePaperStatusInput{
		PaperID: paper.PaperID, Status: "failed", FailReason: "no extractable text and no abstract",
	}).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: paper.PaperID})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out)
}

func TestBatchIngestWorkflowCountsFailures(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerActivityName(env, "FetchPaperActivity", func(context.Context, activities.FetchPaperInput) (activities.FetchPaperOutput, error) {
		return activities.FetchPaperOutput{}, nil
	})
	registerActivityName(env, "DownloadPDFActivity", func(context.Context, activities.DownloadPDFInput) (activities.DownloadPDFOutput, error) {
		return activities.DownloadPDFOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "StoreChunksActivity", func(context.Context, activities.StoreChunksInput) error { return nil })
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })

	env.OnActivity("FetchPaperActivity", mock.Anything, activities.FetchPaperInput{PaperID: "arxiv:1"}).
		Return(activities.FetchPaperOutput{Paper: models.Paper{PaperID: "arxiv:1", Abstract: "abs"}}, nil)
	env.OnActivity("FetchPaperActivity", mock.Anything, activities.FetchPaperInput{PaperID: "arxiv:2"}).
		Return(activities.FetchPaperOutput{Paper: models.Paper{PaperID: "arxiv:2"}}, nil)
	env.OnActivity("DownloadPDFActivity", mock.Anything, mock.Anything).
		Return(activities.DownloadPDFOutput{}, errors.New("no pdf url"))
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Chunks: []models.Chunk{{ChunkID: "c1"}}}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1}}}, nil)
	env.OnActivity("StoreChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{PaperIDs: []string{"arxiv:1", "arxiv:2"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var progress BatchIngestProgress
	require.NoError(t, env.GetWorkflowResult(&progress))
	require.Equal(t, 2, progress.Total)
	require.Equal(t, 2, progress.Done)
	require.Equal(t, 1, progress.Failed)
	require.Equal(t, "ingested", progress.PerPaper["arxiv:1"])
	require.Equal(t, "failed", progress.PerPaper["arxiv:2"])
}

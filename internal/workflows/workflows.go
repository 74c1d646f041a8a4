package workflows

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"litchat/internal/activities"
)

const (
	QueryGetIngestStatus   = "GetIngestStatus"
	QueryGetBatchProgress  = "GetBatchProgress"
	defaultBatchChildLimit = 3
)

// PaperIngestWorkflow turns one discovered paper into indexed chunks. A
// paper whose PDF cannot be fetched or parsed is ingested from its abstract
// instead of failing the whole run; only a paper with no text at all fails.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	status := PaperIngestStatus{
		PaperID:     input.PaperID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (PaperIngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	step := func(name string) {
		status.CurrentStep = name
		status.Steps[name] = "processing"
	}
	done := func(name string) { status.Steps[name] = "done" }
	fail := func(reason string) (string, error) {
		status.Status = "failed"
		status.FailReason = reason
		_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
			PaperID: input.PaperID, Status: "failed", FailReason: reason,
		}).Get(ctx, nil)
		return "failed", nil
	}

	step("fetch_paper")
	var fetched activities.FetchPaperOutput
	if err := workflow.ExecuteActivity(ctx, "FetchPaperActivity", activities.FetchPaperInput{PaperID: input.PaperID}).Get(ctx, &fetched); err != nil {
		return fail("fetch paper: " + err.Error())
	}
	done("fetch_paper")

	text := ""
	step("download_pdf")
	var downloaded activities.DownloadPDFOutput
	pdfErr := workflow.ExecuteActivity(ctx, "DownloadPDFActivity", activities.DownloadPDFInput{
		PaperID: input.PaperID,
		URL:     fetched.Paper.URL,
	}).Get(ctx, &downloaded)
	if pdfErr == nil {
		done("download_pdf")
		step("extract_text")
		var extracted activities.ExtractTextOutput
		if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{Path: downloaded.Path}).Get(ctx, &extracted); err == nil {
			text = extracted.Text
			done("extract_text")
		} else {
			status.Steps["extract_text"] = "failed"
		}
	} else {
		status.Steps["download_pdf"] = "failed"
	}
	if text == "" {
		text = strings.TrimSpace(fetched.Paper.Abstract)
		if text != "" {
			status.Steps["abstract_fallback"] = "done"
		}
	}
	if text == "" {
		return fail("no extractable text and no abstract")
	}

	step("chunk_text")
	var chunked activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{
		PaperID:      input.PaperID,
		Text:         text,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunked); err != nil {
		return fail("chunk text: " + err.Error())
	}
	status.Chunks = len(chunked.Chunks)
	done("chunk_text")

	step("embed_chunks")
	var embedded activities.EmbedChunksOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", activities.EmbedChunksInput{Chunks: chunked.Chunks}).Get(ctx, &embedded); err != nil {
		return fail("embed chunks: " + err.Error())
	}
	done("embed_chunks")

	step("store_chunks")
	if err := workflow.ExecuteActivity(ctx, "StoreChunksActivity", activities.StoreChunksInput{
		Chunks:  chunked.Chunks,
		Vectors: embedded.Vectors,
	}).Get(ctx, nil); err != nil {
		return fail("store chunks: " + err.Error())
	}
	done("store_chunks")

	step("finalize")
	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "ingested",
	}).Get(ctx, nil); err != nil {
		return fail("update status: " + err.Error())
	}
	done("finalize")
	status.Status = "ingested"
	return "ingested", nil
}

// BatchIngestWorkflow fans paper ingestion out to child workflows, at most
// MaxConcurrentChildren at a time. One failed paper never fails the batch.
func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (BatchIngestProgress, error) {
	progress := BatchIngestProgress{
		Total:         len(input.PaperIDs),
		PerPaper:      map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetBatchProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = defaultBatchChildLimit
	}

	for i := 0; i < len(input.PaperIDs); i += maxChildren {
		end := i + maxChildren
		if end > len(input.PaperIDs) {
			end = len(input.PaperIDs)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		ids := make([]string, 0, end-i)
		for _, paperID := range input.PaperIDs[i:end] {
			progress.PerPaper[paperID] = "processing"
			workflowID := "ingest-" + sanitizeID(paperID)
			childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
			f := workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{
				PaperID:      paperID,
				ChunkSize:    input.ChunkSize,
				ChunkOverlap: input.ChunkOverlap,
			})
			futures = append(futures, f)
			ids = append(ids, paperID)
			progress.ChildWorkflow[paperID] = workflowID
		}

		for idx, f := range futures {
			var childStatus string
			err := f.Get(ctx, &childStatus)
			paperID := ids[idx]
			if err != nil {
				progress.Failed++
				progress.PerPaper[paperID] = "failed"
				continue
			}
			if childStatus == "failed" {
				progress.Failed++
			}
			progress.Done++
			progress.PerPaper[paperID] = childStatus
		}
	}
	return progress, nil
}

func sanitizeID(s string) string {
	r := strings.NewReplacer(":", "-", "/", "-", " ", "-")
	return r.Replace(strings.ToLower(s))
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"litchat/internal/chains"
	"litchat/internal/core"
	"litchat/internal/models"
	"litchat/internal/router"
	"litchat/internal/stream"
	"litchat/internal/workflows"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type searchRequest struct {
	Query  string `json:"query" validate:"required"`
	Source string `json:"source" validate:"omitempty,oneof=arxiv semanticscholar"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	req := searchRequest{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Source: strings.TrimSpace(r.URL.Query().Get("source")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErr(w, http.StatusBadRequest, core.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		req.Limit = n
	}
	if req.Query == "" {
		s.writeErr(w, http.StatusBadRequest, core.NewValidationError("q", "must not be empty"))
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req searchRequest) {
	result, err := s.deps.Sources.SearchSource(r.Context(), req.Query, req.Source, req.Limit)
	if err != nil {
		var v *core.ValidationError
		if errors.As(err, &v) {
			s.writeErr(w, http.StatusBadRequest, err)
			return
		}
		s.writeErr(w, http.StatusBadGateway, err)
		return
	}
	// Discovered papers are persisted immediately so ingest and cite can
	// refer to them by id without a second search.
	for _, p := range result.Papers {
		if err := s.deps.PaperRepo.UpsertPaper(r.Context(), p); err != nil {
			s.log.Warn("persist discovered paper failed",
				zap.String("paper_id", p.PaperID),
				zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, result)
}

type chatRequest struct {
	SessionID string   `json:"session_id"`
	Query     string   `json:"query" validate:"required"`
	PaperIDs  []string `json:"paper_ids" validate:"omitempty,dive,required"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Intent    router.Intent  `json:"intent"`
	Answer    *chains.Answer `json:"answer,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	Citations []string       `json:"citations,omitempty"`
	Search    any            `json:"search,omitempty"`
}

// handleChat routes a query by intent and dispatches to the matching
// handler. Paper ids found in the query narrow both summarize and qa.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	var activeScope []string
	if req.SessionID != "" {
		if sess, ok := s.deps.Sessions.Get(req.SessionID); ok {
			activeScope = sess.PaperScope
		}
	}
	route := s.deps.Router.Route(r.Context(), req.Query, activeScope)
	scope := req.PaperIDs
	if len(scope) == 0 {
		scope = route.PaperIDs
	}

	resp := chatResponse{SessionID: req.SessionID, Intent: route.Intent}
	switch route.Intent {
	case router.IntentSearch:
		result, err := s.deps.Sources.Search(r.Context(), req.Query, 10)
		if err != nil {
			s.writeErr(w, http.StatusBadGateway, err)
			return
		}
		resp.Search = result
	case router.IntentSummarize:
		summary, err := s.summarizeFirst(r.Context(), scope)
		if err != nil {
			s.writeChainErr(w, err)
			return
		}
		resp.Summary = summary
	case router.IntentCite:
		cites, err := s.formatCitations(r.Context(), scope, chains.StyleAPA)
		if err != nil {
			s.writeChainErr(w, err)
			return
		}
		resp.Citations = cites
	case router.IntentChat:
		ans, err := s.deps.RAG.Chat(r.Context(), req.SessionID, req.Query)
		if err != nil {
			s.writeChainErr(w, err)
			return
		}
		resp.SessionID = ans.SessionID
		resp.Answer = &ans
	default:
		ans, err := s.deps.RAG.Answer(r.Context(), req.SessionID, req.Query, scope)
		if err != nil {
			s.writeChainErr(w, err)
			return
		}
		resp.SessionID = ans.SessionID
		resp.Answer = &ans
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream answers over SSE: "delta" events carry text, one final
// "done" event carries citations and flags, "error" reports failures that
// happen before any commit.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeErr(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported by connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.RequestTimeoutSecs)*time.Second)
	defer cancel()

	err := s.deps.Streamer.Stream(ctx, req.SessionID, req.Query, req.PaperIDs, func(ev stream.Event) error {
		name := "delta"
		if ev.Done {
			name = "done"
		}
		if err := writeSSE(w, name, ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, core.ErrStreamingAborted) {
		_ = writeSSE(w, "error", map[string]string{"message": toAPIError(http.StatusInternalServerError, err).Message})
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "paperID")
	paper, ok, err := s.deps.PaperRepo.GetPaper(r.Context(), paperID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("paper not found"))
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

type ingestRequest struct {
	PaperIDs              []string `json:"paper_ids" validate:"required,min=1,dive,required"`
	MaxConcurrentChildren int      `json:"max_concurrent_children" validate:"gte=0,lte=16"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	maxChildren := req.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = s.cfg.IngestMaxChildren
	}
	run, err := s.deps.Temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                    "batch-ingest-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		TaskQueue:             s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, workflows.BatchIngestWorkflow, workflows.BatchIngestInput{
		PaperIDs:              req.PaperIDs,
		MaxConcurrentChildren: maxChildren,
		ChunkSize:             s.cfg.ChunkSize,
		ChunkOverlap:          s.cfg.ChunkOverlap,
	})
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"papers":      len(req.PaperIDs),
	})
}

// handleIngestProgress reads live batch progress from the workflow query
// handler; once the workflow is gone the Temporal describe call reports its
// terminal status instead.
func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	var progress workflows.BatchIngestProgress
	resp, err := s.deps.Temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetBatchProgress)
	if err == nil {
		if err := resp.Get(&progress); err != nil {
			s.writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workflow_id": workflowID, "progress": progress})
		return
	}

	desc, dErr := s.deps.Temporal.DescribeWorkflowExecution(r.Context(), workflowID, "")
	if dErr != nil {
		s.writeErr(w, http.StatusNotFound, dErr)
		return
	}
	status := desc.GetWorkflowExecutionInfo().GetStatus()
	name := strings.TrimPrefix(status.String(), "WORKFLOW_EXECUTION_STATUS_")
	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id": workflowID,
		"status":      strings.ToLower(name),
		"running":     status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
	})
}

type summarizeRequest struct {
	PaperID string `json:"paper_id" validate:"required"`
	Format  string `json:"format"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	format, err := chains.ParseSummaryFormat(req.Format)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	paper, ok, err := s.deps.PaperRepo.GetPaper(r.Context(), req.PaperID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("paper not found"))
		return
	}
	chunks, err := s.deps.ChunkRepo.ListChunksByPaper(r.Context(), req.PaperID)
	if err != nil {
		s.writeErr(w, http.StatusInternalServerError, err)
		return
	}
	summary, err := s.deps.Summarizer.SummarizePaper(r.Context(), paper, chunks, format)
	if err != nil {
		s.writeChainErr(w, err)
		return
	}
	payload := map[string]any{
		"paper_id": req.PaperID,
		"format":   string(format),
		"summary":  summary,
	}
	if format == chains.FormatBullet {
		payload["bullets"] = chains.ParseBullets(summary)
	}
	writeJSON(w, http.StatusOK, payload)
}

type citeRequest struct {
	PaperIDs []string `json:"paper_ids" validate:"required,min=1,dive,required"`
	Style    string   `json:"style"`
}

func (s *Server) handleCite(w http.ResponseWriter, r *http.Request) {
	var req citeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	style, err := chains.ParseCitationStyle(req.Style)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	cites, err := s.formatCitations(r.Context(), req.PaperIDs, style)
	if err != nil {
		s.writeChainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"style":     string(style),
		"citations": cites,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := s.deps.Sessions.Get(sessionID)
	if !ok && s.deps.SessionRepo != nil {
		archived, found, err := s.deps.SessionRepo.GetSession(r.Context(), sessionID)
		if err != nil {
			s.writeErr(w, http.StatusInternalServerError, err)
			return
		}
		sess, ok = archived, found
	}
	if !ok {
		s.writeErr(w, http.StatusNotFound, fmt.Errorf("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionCosts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"totals":     s.deps.Ledger.SessionTotals(sessionID),
	})
}

func (s *Server) summarizeFirst(ctx context.Context, paperIDs []string) (string, error) {
	if len(paperIDs) == 0 {
		return "", core.NewValidationError("paper_ids", "summarize needs a paper id")
	}
	paper, ok, err := s.deps.PaperRepo.GetPaper(ctx, paperIDs[0])
	if err != nil {
		return "", err
	}
	if !ok {
		return "", core.NewValidationError("paper_ids", "unknown paper "+paperIDs[0])
	}
	chunks, err := s.deps.ChunkRepo.ListChunksByPaper(ctx, paperIDs[0])
	if err != nil {
		return "", err
	}
	return s.deps.Summarizer.SummarizePaper(ctx, paper, chunks, chains.FormatBrief)
}

func (s *Server) formatCitations(ctx context.Context, paperIDs []string, style chains.CitationStyle) ([]string, error) {
	if len(paperIDs) == 0 {
		return nil, core.NewValidationError("paper_ids", "cite needs at least one paper id")
	}
	papers, err := s.deps.PaperRepo.ListPapersByIDs(ctx, paperIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Paper, len(papers))
	for _, p := range papers {
		byID[p.PaperID] = p
	}
	out := make([]string, 0, len(paperIDs))
	for _, id := range paperIDs {
		p, ok := byID[id]
		if !ok {
			return nil, core.NewValidationError("paper_ids", "unknown paper "+id)
		}
		c, err := chains.FormatCitation(p, style)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// writeChainErr maps pipeline errors onto HTTP statuses: validation to 400,
// provider exhaustion to 503, upstream sources to 502, the rest to 500.
func (s *Server) writeChainErr(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		s.writeErr(w, http.StatusBadRequest, err)
	case errors.Is(err, core.ErrModelUnavailable):
		s.writeErr(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, core.ErrUpstreamAPI):
		s.writeErr(w, http.StatusBadGateway, err)
	default:
		s.writeErr(w, http.StatusInternalServerError, err)
	}
}

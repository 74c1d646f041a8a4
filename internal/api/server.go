package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"litchat/internal/chains"
	"litchat/internal/config"
	"litchat/internal/core"
	"litchat/internal/costs"
	"litchat/internal/memory"
	"litchat/internal/router"
	"litchat/internal/sources"
	"litchat/internal/storage"
	"litchat/internal/stream"
)

// Deps carries the constructed components the server routes requests to.
// Construction happens in cmd/api so tests can inject fakes.
type Deps struct {
	PaperRepo   *storage.PaperRepo
	ChunkRepo   *storage.ChunkRepo
	SessionRepo *storage.SessionRepo
	Sessions    *memory.Store
	Ledger      *costs.Ledger
	RAG         *chains.RAG
	Summarizer  *chains.Summarizer
	Router      *router.Router
	Streamer    *stream.Coordinator
	Sources     *sources.Aggregator
	Temporal    tclient.Client
}

type Server struct {
	cfg      config.Config
	deps     Deps
	log      *zap.Logger
	validate *validator.Validate
}

func NewServer(cfg config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		validate: validator.New(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/search", s.handleSearchGet)
	r.Post("/search", s.handleSearchPost)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Get("/papers/{paperID}", s.handleGetPaper)
	r.Post("/papers/ingest", s.handleIngest)
	r.Get("/papers/ingest/{workflowID}/progress", s.handleIngestProgress)
	r.Post("/papers/summarize", s.handleSummarize)
	r.Post("/papers/cite", s.handleCite)
	r.Get("/sessions/{sessionID}", s.handleGetSession)
	r.Get("/sessions/{sessionID}/costs", s.handleSessionCosts)
	return r
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return core.NewValidationError("body", "invalid json")
	}
	if err := s.validate.Struct(dst); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			f := invalid[0]
			return core.NewValidationError(strings.ToLower(f.Field()), "failed "+f.Tag()+" check")
		}
		return core.NewValidationError("body", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	apiErr := toAPIError(status, err)
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

// toAPIError maps errors to stable client-facing codes. Internal detail
// stays in the logs; 4xx messages carry only user-safe validation context.
func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "LC-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "LC-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		case strings.Contains(raw, "provider unavailable"), strings.Contains(raw, "model provider"):
			return apiError{Code: "LC-API-5030", Message: "Model provider is unavailable. Retry shortly."}
		default:
			return apiError{Code: "LC-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		var v *core.ValidationError
		if errors.As(err, &v) && v.Field != "" {
			msg = "Invalid " + v.Field + ": " + v.Reason + "."
		}
		return apiError{Code: "LC-API-4001", Message: msg}
	case status == http.StatusNotFound:
		return apiError{Code: "LC-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "LC-API-4005", Message: "This endpoint does not support the requested method."}
	case status == http.StatusBadGateway:
		return apiError{Code: "LC-API-5020", Message: "Upstream literature source unavailable. Retry shortly."}
	default:
		return apiError{Code: "LC-API-4000", Message: "Request failed."}
	}
}

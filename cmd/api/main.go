package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"litchat/internal/api"
	"litchat/internal/chains"
	"litchat/internal/config"
	"litchat/internal/costs"
	"litchat/internal/embedding"
	"litchat/internal/memory"
	"litchat/internal/providers"
	"litchat/internal/retrieval"
	"litchat/internal/router"
	"litchat/internal/sources"
	"litchat/internal/storage"
	"litchat/internal/stream"
	"litchat/internal/vectorstore"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx, cfg.EmbedDim); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}
	cancel()

	pm, err := providers.NewManager(cfg)
	if err != nil {
		log.Fatal("configure providers", zap.Error(err))
	}
	retryPolicy := providers.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		Factor:      cfg.RetryFactor,
	}
	llm := providers.NewRetryingLLM(pm.FirstLLMProvider(), retryPolicy)

	gateway := embedding.NewGateway(pm.FirstEmbedProvider(), embedding.Options{
		BatchSize:   cfg.EmbedBatchSize,
		Dimension:   cfg.EmbedDim,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		Factor:      cfg.RetryFactor,
	}, log)

	var store vectorstore.Store
	if cfg.VectorBackend == "pgvector" {
		store = vectorstore.NewPGVectorStore(db.Pool)
	} else {
		// The worker writes embeddings to Postgres; the in-process index
		// only sees chunks this API instance ingested itself.
		log.Warn("memory vector backend selected, worker-ingested chunks will not be searchable")
		store = vectorstore.NewMemoryStore()
	}

	ledger := costs.NewLedger(costs.Pricing{
		PromptPer1K:     cfg.PricePromptPer1K,
		CompletionPer1K: cfg.PriceCompletionPer1K,
	}, storage.NewCostRepo(db), log)
	defer ledger.Close()
	gateway.SetLedger(ledger)

	summarizer := chains.NewSummarizer(llm, ledger)
	sessionRepo := storage.NewSessionRepo(db)
	sessions := memory.NewStore(summarizer, memory.Options{
		TokenBudget: cfg.ContextTokenBudget,
		IdleTimeout: time.Duration(cfg.SessionIdleSeconds) * time.Second,
	}, log)
	sessions.SetArchiver(sessionRepo)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.RunSweeper(sweepCtx, time.Minute)

	pipeline := retrieval.NewPipeline(gateway, store, retrieval.Options{
		TopK:              cfg.TopK,
		OverfetchFactor:   cfg.OverfetchFactor,
		MinScore:          cfg.MinScore,
		MaxChunksPerPaper: cfg.MaxChunksPerPaper,
	})

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("connect temporal", zap.Error(err))
	}
	defer tc.Close()

	srv := api.NewServer(cfg, api.Deps{
		PaperRepo:   storage.NewPaperRepo(db),
		ChunkRepo:   storage.NewChunkRepo(db),
		SessionRepo: sessionRepo,
		Sessions:    sessions,
		Ledger:      ledger,
		RAG:         chains.NewRAG(pipeline, llm, sessions, ledger, log),
		Summarizer:  summarizer,
		Router:      router.New(llm, log),
		Streamer:    stream.NewCoordinator(pipeline, llm, sessions, ledger, log),
		Sources:     sources.NewAggregator(log, sources.NewArxivClient(), sources.NewSemanticScholarClient()),
		Temporal:    tc,
	}, log)

	log.Info("litchat api listening",
		zap.String("addr", cfg.APIAddr),
		zap.String("llm_providers", cfg.LLMProviders),
		zap.String("embed_providers", cfg.EmbedProviders),
		zap.String("vector_backend", cfg.VectorBackend))
	if err := http.ListenAndServe(cfg.APIAddr, srv.Routes()); err != nil {
		log.Fatal("serve http", zap.Error(err))
	}
}

package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"litchat/internal/activities"
	"litchat/internal/config"
	"litchat/internal/costs"
	"litchat/internal/embedding"
	"litchat/internal/providers"
	"litchat/internal/storage"
	"litchat/internal/vectorstore"
	"litchat/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("connect temporal", zap.Error(err))
	}
	defer c.Close()

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
	gateway := embedding.NewGateway(pm.FirstEmbedProvider(), embedding.Options{
		BatchSize:   cfg.EmbedBatchSize,
		Dimension:   cfg.EmbedDim,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		Factor:      cfg.RetryFactor,
	}, log)

	ledger := costs.NewLedger(costs.Pricing{
		PromptPer1K:     cfg.PricePromptPer1K,
		CompletionPer1K: cfg.PriceCompletionPer1K,
	}, storage.NewCostRepo(db), log)
	defer ledger.Close()
	gateway.SetLedger(ledger)

	// The worker always indexes through Postgres so ingested vectors are
	// visible to any number of API replicas.
	store := vectorstore.NewPGVectorStore(db.Pool)

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, db, gateway, store))

	log.Info("litchat worker started",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("embed_providers", cfg.EmbedProviders))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("run worker", zap.Error(err))
	}
}

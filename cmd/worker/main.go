package main

import (
	"context"
	"log"
	"time"

	"docworker/internal/activities"
	"docworker/internal/config"
	"docworker/internal/docgen"
	"docworker/internal/llm"
	"docworker/internal/logger"
	"docworker/internal/providers"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"
	"docworker/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		lg.Fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	backends, err := storage.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("open storage", "store", cfg.Store, "error", err)
	}
	defer backends.Close()

	tok, err := tokenizer.New(cfg.Tokenizer, cfg.Model)
	if err != nil {
		lg.Fatal("load tokenizer", "tokenizer", cfg.Tokenizer, "error", err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		lg.Fatal("load providers", "llm_providers", cfg.LLMProviders, "error", err)
	}
	provider, ref := pm.Preferred()
	completer := llm.NewFromConfig(cfg, provider, tok, backends.Audit, lg)
	driver := docgen.NewDriver(completer, tok, cfg.ChunkBudget, lg)
	activities.Register(w, activities.New(backends.Documents, backends.Quota, driver, lg))

	lg.Info("docworker worker listening", "address", cfg.TemporalAddress, "task_queue", cfg.TemporalTaskQueue, "provider", ref.Name, "model", cfg.Model)
	if err := w.Run(worker.InterruptCh()); err != nil {
		lg.Fatal("worker stopped", "error", err)
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"docworker/internal/api"
	"docworker/internal/config"
	"docworker/internal/logger"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

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
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		lg.Fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer tc.Close()

	h := api.NewServer(cfg, backends, tok, api.NewTemporalLauncher(tc, cfg.TemporalTaskQueue), lg)
	lg.Info("docworker api listening", "addr", cfg.APIAddr, "store", cfg.Store, "task_queue", cfg.TemporalTaskQueue)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		lg.Fatal("api stopped", "error", err)
	}
}

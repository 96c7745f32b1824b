package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"docworker/internal/cli"
	"docworker/internal/config"
	"docworker/internal/docgen"
	"docworker/internal/llm"
	"docworker/internal/logger"
	"docworker/internal/providers"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := storage.Open(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer backends.Close()

	tok, err := tokenizer.New(cfg.Tokenizer, cfg.Model)
	if err != nil {
		return err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return err
	}
	provider, _ := pm.Preferred()
	completer := llm.NewFromConfig(cfg, provider, tok, backends.Audit, lg)

	cli.Configure(&cli.Services{
		Store:   backends.Documents,
		Quota:   backends.Quota,
		Driver:  docgen.NewDriver(completer, tok, cfg.ChunkBudget, lg),
		Tok:     tok,
		Budget:  cfg.ChunkBudget,
		Overlap: cfg.ChunkOverlap,
	})
	return cli.Execute(ctx)
}

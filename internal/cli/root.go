// Package cli is the docgen command line: it uploads documents into the
// store and drives runs in-process.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"docworker/internal/docgen"
	"docworker/internal/document"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"

	"github.com/spf13/cobra"
)

// Services is what the commands run against.
type Services struct {
	Store   storage.DocumentStore
	Quota   storage.TokenQuota
	Driver  *docgen.Driver
	Tok     tokenizer.Tokenizer
	Budget  int
	Overlap float64
}

var services *Services

// owner is the --user flag.
var owner string

var rootCmd = &cobra.Command{
	Use:           "docgen",
	Short:         "Summarize and reduce documents with an LLM",
	Long:          `Upload documents, run prompts over their segments and reduce the results to one, then export or trace what was generated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&owner, "user", "u", defaultOwner(), "Owner of the documents")
}

func defaultOwner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

// Configure sets the services commands use.
func Configure(s *Services) {
	services = s
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func requireServices() error {
	if services == nil || services.Store == nil {
		return errors.New("document store not configured")
	}
	return nil
}

func loadDocument(ctx context.Context, name string) (*document.Document, error) {
	doc, err := services.Store.Load(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// selectRun returns run id, or the latest run when id is 0.
func selectRun(doc *document.Document, id int) (*document.RunRecord, error) {
	run := doc.Run(id)
	if run == nil {
		if id == 0 {
			return nil, fmt.Errorf("document %s has no runs", doc.Name)
		}
		return nil, fmt.Errorf("document %s has no run %d", doc.Name, id)
	}
	return run, nil
}

func save(ctx context.Context, doc *document.Document) error {
	return services.Store.Save(ctx, owner, doc)
}

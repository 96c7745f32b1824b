package cli

import (
	"fmt"
	"os"
	"time"

	"docworker/internal/extract"
	"docworker/internal/models"
	"docworker/internal/storage"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new [file]",
	Short: "Add a document",
	Long:  `Extracts the file's text, cuts it into segments and stores it. Uploading the same content again returns the stored document.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show [document]",
	Short: "Show a document and its runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var showRun int

func init() {
	showCmd.Flags().IntVar(&showRun, "run", 0, "List the items of this run (0 for the latest)")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	build := extract.Builder(services.Tok, services.Budget, services.Overlap)
	doc, created, err := storage.FindOrCreate(cmd.Context(), services.Store, owner, args[0], data, build)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	if created {
		cmd.Printf("Added %s (%d segments, %d tokens)\n", doc.Name, len(doc.Segments), doc.DocTokens())
	} else {
		cmd.Printf("Already stored as %s\n", doc.Name)
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	names, err := services.Store.List(cmd.Context(), owner)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No documents found")
		return nil
	}
	for _, name := range names {
		cmd.Printf("  %s\n", name)
	}
	cmd.Printf("\nTotal: %d documents\n", len(names))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	doc, err := loadDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sum := models.Summarize(doc, time.Now())
	cmd.Printf("Document: %s\n\n", sum.Name)
	cmd.Printf("  Segments:   %d\n", sum.Segments)
	cmd.Printf("  Tokens:     %d\n", sum.Tokens)
	cmd.Printf("  Token cost: %d\n", sum.TokenCost)

	if len(sum.Runs) == 0 {
		return nil
	}
	cmd.Println("\n  Runs:")
	for _, r := range sum.Runs {
		state := "stopped"
		if r.Running {
			state = "running"
		}
		cmd.Printf("    #%d %s [%s] steps=%d cost=%d", r.RunID, r.Prompt, state, r.CompletedSteps, r.TokenCost)
		if r.Status != "" {
			cmd.Printf(" %q", r.Status)
		}
		cmd.Println()
	}

	run, err := selectRun(doc, showRun)
	if err != nil {
		return err
	}
	items := run.OrderedItems()
	if run.Result() == nil {
		items = run.GenItems()
	}
	cmd.Printf("\n  Items of run %d:\n", run.RunID)
	for _, v := range models.Items(items, false) {
		marker := ""
		if v.Final {
			marker = " (final)"
		}
		cmd.Printf("    %-16s %-10s %5d tokens%s\n", v.Name, v.Kind, v.TokenCount, marker)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	if err := services.Store.Delete(cmd.Context(), owner, args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}

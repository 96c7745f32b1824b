package cli

import (
	"errors"
	"fmt"
	"strings"

	"docworker/internal/docgen"
	"docworker/internal/document"
	"docworker/internal/models"
	"docworker/internal/util"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [document]",
	Short: "List prompts",
	Long:  `Lists the built-in prompts, or the prompts registered on a document.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPrompts,
}

var runCmd = &cobra.Command{
	Use:   "run [document]",
	Short: "Run a prompt over a document",
	Long: `Runs the prompt over every segment, or over the named items of an earlier
run, and reduces the results until one remains. Interrupting the command
cancels the run and keeps what was generated.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runPrompt  string
	runItems   []string
	runFromRun int
)

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "Summarize", "Prompt name or text")
	runCmd.Flags().StringSliceVar(&runItems, "items", nil, "Item names to run over")
	runCmd.Flags().IntVar(&runFromRun, "from-run", 0, "Run the item names refer to (0 for the latest)")

	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(runCmd)
}

func runPrompts(cmd *cobra.Command, args []string) error {
	ps := document.NewPromptSet()
	if len(args) == 1 {
		if err := requireServices(); err != nil {
			return err
		}
		doc, err := loadDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ps = doc.Prompts
	}
	for _, p := range models.Prompts(ps) {
		marker := " "
		if p.Consolidate {
			marker = "*"
		}
		cmd.Printf("%s %-24s %s\n", marker, p.Name, p.Text)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	if services.Driver == nil {
		return errors.New("completion driver not configured")
	}
	ctx := cmd.Context()
	doc, err := loadDocument(ctx, args[0])
	if err != nil {
		return err
	}

	prompt := strings.TrimSpace(runPrompt)
	if prompt == "" {
		return errors.New("a prompt is required")
	}
	if p, ok := doc.Prompts.ByName(prompt); ok {
		prompt = p.Text
	}
	ids, err := resolveItems(doc, runFromRun, runItems)
	if err != nil {
		return err
	}

	run, err := services.Driver.Launch(ctx, doc, services.Quota, owner, prompt, ids)
	if errors.Is(err, util.ErrInsufficientTokens) {
		_ = save(ctx, doc)
		return fmt.Errorf("not enough tokens left to run over %d tokens of input", doc.RunInputTokens())
	}
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	if err := save(ctx, doc); err != nil {
		return err
	}
	cmd.Printf("Run %d: %s over %d items\n", run.RunID, doc.Prompts.Name(run.PromptID), len(doc.State.ToRun))

	runErr := services.Driver.RunToCompletion(ctx, doc, save)
	if services.Quota != nil {
		if cost := docgen.RunTokenCost(run); cost > 0 {
			if err := services.Quota.ConsumeTokens(ctx, owner, cost); err != nil {
				return fmt.Errorf("failed to charge tokens: %w", err)
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("run %d stopped: %w", run.RunID, runErr)
	}

	cmd.Printf("Completed %d steps, %d tokens\n\n", run.CompletedSteps, run.TokenCost())
	if res := run.Result(); res != nil {
		cmd.Println(res.Text)
	}
	return nil
}

// resolveItems maps names to ids in the given run, or in the document's
// segments when it has no runs. No names selects every segment.
func resolveItems(doc *document.Document, runID int, names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if run := doc.Run(runID); run != nil {
		return run.ItemIDs(names)
	}
	if runID != 0 {
		return nil, fmt.Errorf("document %s has no run %d", doc.Name, runID)
	}
	byName := make(map[string]int, len(doc.Segments))
	for _, s := range doc.Segments {
		byName[s.Name] = s.ID
	}
	ids := make([]int, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("item %q: %w", name, util.ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

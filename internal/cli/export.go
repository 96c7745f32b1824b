package cli

import (
	"fmt"
	"strings"

	"docworker/internal/models"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [document]",
	Short: "Print the text of run items",
	Long:  `Prints the named items separated by blank lines. Without --items the run's final result is printed.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var familyCmd = &cobra.Command{
	Use:   "family [document]",
	Short: "Show how a completion was generated",
	Long:  `Prints the tree of inputs below a completion, the run's final result by default.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runFamily,
}

var (
	exportItems []string
	exportRun   int
	familyItem  string
	familyRun   int
)

func init() {
	exportCmd.Flags().StringSliceVar(&exportItems, "items", nil, "Item names to export")
	exportCmd.Flags().IntVar(&exportRun, "run", 0, "Run to export from (0 for the latest)")
	familyCmd.Flags().StringVar(&familyItem, "item", "", "Completion to start from")
	familyCmd.Flags().IntVar(&familyRun, "run", 0, "Run to inspect (0 for the latest)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(familyCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	doc, err := loadDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	run, err := selectRun(doc, exportRun)
	if err != nil {
		return err
	}
	names := exportItems
	if len(names) == 0 {
		res := run.Result()
		if res == nil {
			return fmt.Errorf("run %d has no result; name the items to export", run.RunID)
		}
		names = []string{res.Name}
	}
	cmd.Println(run.Export(names))
	return nil
}

func runFamily(cmd *cobra.Command, args []string) error {
	if err := requireServices(); err != nil {
		return err
	}
	doc, err := loadDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	run, err := selectRun(doc, familyRun)
	if err != nil {
		return err
	}
	id := 0
	if familyItem != "" {
		it := run.ItemByName(familyItem)
		if it == nil {
			return fmt.Errorf("run %d has no item %q", run.RunID, familyItem)
		}
		id = it.Record().ID
	}
	depth, entries := run.CompletionFamily(id)
	if len(entries) == 0 {
		cmd.Println("No completion to trace")
		return nil
	}
	for _, e := range models.Family(entries) {
		cmd.Printf("%s%s\n", strings.Repeat("  ", e.Depth-1), e.Name)
	}
	cmd.Printf("\nDepth: %d\n", depth)
	return nil
}

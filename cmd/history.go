package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagecompressor/internal/models"
	"imagecompressor/internal/storage"
)

var (
	historyJSON    bool
	historyVerbose bool
	historyLimit   int
	historyOffset  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded compression runs",
	Long: `Display recorded compression runs, newest first.

Each run shows when it ran, the quality used, how many images were
compressed and how many bytes were saved. With --verbose every image of
the run is listed with its output path and perceptual distance from the
original (0 means visually identical).

Example:
  imagecompressor history              # Show the last 10 runs
  imagecompressor history -n 0         # Show all runs
  imagecompressor history -v -n 1      # Latest run with its images
  imagecompressor history --offset 10  # Runs 11-20`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
	historyCmd.Flags().BoolVarP(&historyVerbose, "verbose", "v", false, "List the images of each run")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Limit number of runs to display (0 = all)")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Skip the newest N runs")
	rootCmd.AddCommand(historyCmd)
}

type runView struct {
	*models.CompressionRun
	Items []*models.CompressionItem `json:"items,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	total, err := store.CountRuns()
	if err != nil {
		return fmt.Errorf("failed to count runs: %w", err)
	}
	if total == 0 {
		fmt.Println("No compression runs recorded.")
		fmt.Println("Run 'imagecompressor compress <path>' to compress images.")
		return nil
	}

	runs, err := store.ListRuns(historyLimit, historyOffset)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	views := make([]runView, len(runs))
	for i, run := range runs {
		views[i].CompressionRun = run
		if historyVerbose || historyJSON {
			if views[i].Items, err = store.ItemsForRun(run.ID); err != nil {
				return fmt.Errorf("failed to load run #%d: %w", run.ID, err)
			}
		}
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Printf("No runs in range (offset %d exceeds total %d)\n", historyOffset, total)
		return nil
	}

	fmt.Printf("%-6s  %-19s  %-7s  %-7s  %-6s  %s\n", "Run", "Started", "Quality", "Images", "Failed", "Saved")
	fmt.Println(strings.Repeat("-", 64))
	for _, v := range views {
		fmt.Printf("#%-5d  %-19s  %-7d  %-7d  %-6d  %s\n",
			v.ID, v.StartedAt.Local().Format("2006-01-02 15:04:05"), v.Quality,
			v.Total, v.Failed, formatSaved(v.BytesSaved))
		if historyVerbose {
			for _, item := range v.Items {
				printItem(item)
			}
			fmt.Println()
		}
	}

	end := historyOffset + len(views)
	fmt.Printf("\nShowing runs %d-%d of %d\n", historyOffset+1, end, total)
	if end < total {
		limitArg := ""
		if historyLimit > 0 {
			limitArg = fmt.Sprintf(" -n %d", historyLimit)
		}
		fmt.Printf("Next page: imagecompressor history%s --offset %d\n", limitArg, end)
	}
	return nil
}

func printItem(item *models.CompressionItem) {
	name := shortenPath(item.SourcePath, 40)
	if item.Error != "" {
		fmt.Printf("  ✗ %-40s  %s\n", name, item.Error)
		return
	}

	fidelity := "-"
	if item.Fidelity >= 0 {
		fidelity = fmt.Sprintf("%d", item.Fidelity)
	}
	fmt.Printf("  ✓ %-40s  %-4s  %8s → %-8s  distance %s\n",
		name, strings.ToUpper(item.Format),
		humanize.Bytes(uint64(item.OriginalSize)), humanize.Bytes(uint64(item.CompressedSize)), fidelity)
	if item.OutputPath != "" {
		fmt.Printf("      %s\n", item.OutputPath)
	}
}

// formatSaved renders a byte delta; negative when outputs grew
func formatSaved(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

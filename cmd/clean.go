package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagecompressor/internal/fileutil"
	"imagecompressor/internal/models"
	"imagecompressor/internal/storage"
)

var (
	dryRun    bool
	moveTo    string
	permanent bool
	noConfirm bool
	runIDs    []int64
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove compressed files written by earlier runs",
	Long: `Remove the compressed outputs recorded in history. Originals are never
touched.

Outputs are moved to the trash by default. Files that no longer exist are
skipped. Removed outputs are dropped from history so they are not cleaned
twice.

Options:
  --dry-run     Preview what would be removed without actually removing
  --permanent   Delete files permanently instead of moving to trash
  --move-to     Move outputs to a specific folder
  --yes         Skip confirmation prompt
  --run         Limit to these run IDs (can be used multiple times)

Example:
  imagecompressor clean                     # Move all outputs to trash
  imagecompressor clean --run 4 --run 5     # Only runs 4 and 5
  imagecompressor clean --move-to=./backup  # Move to specific folder
  imagecompressor clean --dry-run           # Preview only`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without removing")
	cleanCmd.Flags().BoolVar(&permanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().StringVar(&moveTo, "move-to", "", "Move outputs to this folder")
	cleanCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().Int64SliceVarP(&runIDs, "run", "r", nil, "Run IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	if moveTo != "" && permanent {
		return fmt.Errorf("--move-to and --permanent cannot be combined")
	}

	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	items, err := store.OutputsForRuns(runIDs)
	if err != nil {
		return fmt.Errorf("failed to load outputs: %w", err)
	}

	toRemove, totalSize, missing := existingOutputs(items)
	if !dryRun {
		// already gone, stop tracking them
		for _, path := range missing {
			if err := store.ForgetOutput(path); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to update history for %s: %v\n", path, err)
			}
		}
	}

	if len(toRemove) == 0 {
		fmt.Println("No compressed files to remove.")
		return nil
	}

	var action string
	switch {
	case moveTo != "":
		action = fmt.Sprintf("move to %s", moveTo)
	case permanent:
		action = "permanently delete"
	default:
		action = "move to trash"
	}

	fmt.Printf("Will %s %d files (%s)\n\n", action, len(toRemove), humanize.Bytes(uint64(totalSize)))

	if dryRun {
		fmt.Println("Files to be removed:")
		for _, path := range toRemove {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
		fmt.Println("(Dry run - no files were modified)")
		return nil
	}

	if !noConfirm {
		fmt.Printf("Are you sure you want to %s %d files? [y/N]: ", action, len(toRemove))
		response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var processed, failed int
	for _, path := range toRemove {
		var err error
		switch {
		case moveTo != "":
			_, err = fileutil.MoveFile(path, moveTo)
		case permanent:
			err = os.Remove(path)
		default:
			err = fileutil.MoveToTrash(path)
		}

		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to process %s: %v\n", path, err)
			failed++
			continue
		}
		processed++
		if err := store.ForgetOutput(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to update history for %s: %v\n", path, err)
		}
	}

	fmt.Println()
	switch {
	case moveTo != "":
		fmt.Printf("Moved %d files to %s\n", processed, moveTo)
	case permanent:
		fmt.Printf("Permanently deleted %d files\n", processed)
	default:
		fmt.Printf("Moved %d files to trash\n", processed)
	}
	if failed > 0 {
		fmt.Printf("Failed: %d files\n", failed)
	}
	return nil
}

// existingOutputs splits recorded outputs into files still on disk and
// paths that are gone. The same path may be recorded by several runs.
func existingOutputs(items []*models.CompressionItem) (present []string, size int64, missing []string) {
	seen := make(map[string]bool)
	for _, item := range items {
		if seen[item.OutputPath] {
			continue
		}
		seen[item.OutputPath] = true

		info, err := os.Stat(item.OutputPath)
		if err != nil {
			missing = append(missing, item.OutputPath)
			continue
		}
		present = append(present, item.OutputPath)
		size += info.Size()
	}
	return present, size, missing
}

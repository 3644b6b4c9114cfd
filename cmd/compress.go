package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagecompressor/internal/batch"
	"imagecompressor/internal/compress"
	"imagecompressor/internal/fileutil"
	"imagecompressor/internal/models"
	"imagecompressor/internal/registry"
	"imagecompressor/internal/scan"
	"imagecompressor/internal/storage"
	"imagecompressor/internal/tui"
	"imagecompressor/internal/worker"
)

var (
	outputDir       string
	compressWorkers int
	compressQuiet   bool
	compressVerbose bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <path>...",
	Short: "Compress image files and folders",
	Long: `Compress images at the configured quality and write the results next to
the originals (or into --output) as <name>_compressed.<ext>.

Folders are walked recursively. Existing files are never overwritten: a
counter is appended instead (photo_compressed_1.jpg). Images that fail to
decode or encode are reported and left alone.

Example:
  imagecompressor compress ./photos
  imagecompressor compress a.png b.webp -q 50
  imagecompressor compress ./photos -o ./small --quiet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompress,
}

func init() {
	compressCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Write compressed files into this folder")
	compressCmd.Flags().IntVar(&compressWorkers, "workers", 8, "Number of parallel readers for scanning")
	compressCmd.Flags().BoolVar(&compressQuiet, "quiet", false, "Disable the progress display")
	compressCmd.Flags().BoolVarP(&compressVerbose, "verbose", "v", false, "List every image in the summary")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	scanOpts := []scan.Option{scan.WithWorkers(compressWorkers)}
	if outputDir != "" {
		scanOpts = append(scanOpts, scan.WithExclude(outputDir))
	}
	lastLine := ""
	if !compressQuiet {
		scanOpts = append(scanOpts, scan.WithProgress(func(scanned, total int, current string) {
			if lastLine != "" {
				fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
			}
			lastLine = fmt.Sprintf("Reading: %d/%d  %s", scanned, total, shortenPath(current, 50))
			fmt.Print(lastLine)
		}))
	}

	scanned, err := scan.NewScanner(scanOpts...).Collect(args...)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if lastLine != "" {
		fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
	}

	if len(scanned.Files) == 0 {
		fmt.Println("No images found.")
		printSkipped(scanned.Skipped)
		return nil
	}

	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	job := compressJob{quality: quality, outDir: outputDir, logger: logger}

	var res *compressResult
	if compressQuiet {
		res, err = compressFiles(ctx, scanned.Files, job)
	} else {
		res, err = compressWithProgress(ctx, cancel, scanned.Files, job)
	}
	if res == nil {
		return err
	}

	if res.run.Total > 0 {
		if rerr := store.RecordRun(res.run, res.items); rerr != nil {
			logger.Warn("failed to record run", "err", rerr)
		}
	}

	printCompressSummary(res, scanned.Skipped)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.New("compression interrupted")
	}
	return err
}

func compressWithProgress(ctx context.Context, cancel context.CancelFunc, files []scan.File, job compressJob) (*compressResult, error) {
	// one slot per possible emit, so the batch never waits on the renderer
	updates := make(chan models.BatchProgress, len(files)+1)
	job.progress = func(p models.BatchProgress) {
		select {
		case updates <- p:
		default:
		}
	}

	type finished struct {
		res *compressResult
		err error
	}
	done := make(chan finished, 1)
	go func() {
		res, err := compressFiles(ctx, files, job)
		close(updates)
		done <- finished{res, err}
	}()

	final, err := tea.NewProgram(tui.NewModel(updates, job.quality)).Run()
	if err != nil {
		job.logger.Warn("progress display failed", "err", err)
	}
	if m, ok := final.(tui.Model); ok && m.Interrupted() {
		cancel()
	}

	out := <-done
	return out.res, out.err
}

type compressJob struct {
	quality  int
	outDir   string
	progress func(models.BatchProgress)
	logger   *slog.Logger
}

type compressResult struct {
	report  batch.Report
	run     *models.CompressionRun
	items   []*models.CompressionItem
	elapsed time.Duration
}

// compressFiles runs one batch over files and writes every successful
// artifact. The returned items line up with report.Outcomes.
func compressFiles(ctx context.Context, files []scan.File, job compressJob) (*compressResult, error) {
	logger := job.logger
	if logger == nil {
		logger = slog.Default()
	}

	w := worker.New(worker.WithLogger(logger))
	defer w.Close()

	reg := registry.New(registry.NewMemoryPreviews(), registry.WithLogger(logger))
	defer reg.Clear()

	sources := make([]compress.Source, len(files))
	for i, f := range files {
		sources[i] = f.Source
	}
	recs, err := reg.Append(sources...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]scan.File, len(recs))
	for i, rec := range recs {
		byID[rec.ID] = files[i]
	}

	ctrl := batch.NewController(reg, compress.NewService(w, logger),
		batch.WithQuality(job.quality),
		batch.WithSettleDelay(0),
		batch.WithProgress(job.progress),
		batch.WithLogger(logger),
	)

	start := time.Now()
	report, runErr := ctrl.CompressAll(ctx)
	if runErr != nil && !errors.Is(runErr, ctx.Err()) {
		return nil, runErr
	}

	run, items := report.Run()
	for i, o := range report.Outcomes {
		f := byID[o.ID]
		item := items[i]
		if abs, err := filepath.Abs(f.Path); err == nil {
			item.SourcePath = abs
		} else {
			item.SourcePath = f.Path
		}
		if !o.OK() {
			continue
		}

		dir := job.outDir
		if dir == "" {
			dir = filepath.Dir(item.SourcePath)
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}

		path, err := fileutil.WriteUnique(dir, models.OutputName(o.Name, o.Format), o.Data)
		if err != nil {
			logger.Warn("failed to write output", "name", o.Name, "err", err)
			item.Error = err.Error()
			item.CompressedSize = 0
			run.Succeeded--
			run.Failed++
			run.BytesSaved -= o.Saved()
			continue
		}
		item.OutputPath = path

		if d, err := compress.Fidelity(f.Source.Data, o.Data); err == nil {
			item.Fidelity = d
		} else {
			logger.Debug("fidelity unavailable", "name", o.Name, "err", err)
		}
	}

	return &compressResult{
		report:  report,
		run:     run,
		items:   items,
		elapsed: time.Since(start),
	}, runErr
}

func printCompressSummary(res *compressResult, skipped []scan.Skipped) {
	var original, compressed int64
	for _, item := range res.items {
		if item.Error == "" {
			original += item.OriginalSize
			compressed += item.CompressedSize
		}
	}

	rows := []tui.SummaryRow{
		{Label: "Images", Value: fmt.Sprintf("%d", res.run.Total)},
		{Label: "Compressed", Value: fmt.Sprintf("%d", res.run.Succeeded)},
		{Label: "Failed", Value: fmt.Sprintf("%d", res.run.Failed)},
		{Label: "Quality", Value: fmt.Sprintf("%d", res.run.Quality)},
		{Label: "Before", Value: humanize.Bytes(uint64(original))},
		{Label: "After", Value: humanize.Bytes(uint64(compressed))},
		{Label: "Saved", Value: formatSaved(res.run.BytesSaved) + savedPercent(res.run.BytesSaved, original)},
		{Label: "Elapsed", Value: res.elapsed.Round(time.Millisecond).String()},
	}
	if res.run.ID > 0 {
		rows = append(rows, tui.SummaryRow{Label: "Run", Value: fmt.Sprintf("#%d", res.run.ID)})
	}

	fmt.Println()
	fmt.Println(tui.RenderSummary(rows))

	if compressVerbose {
		fmt.Println()
		for _, item := range res.items {
			printItem(item)
		}
	}

	var failures []tui.Failure
	for _, item := range res.items {
		if item.Error != "" {
			failures = append(failures, tui.Failure{Name: filepath.Base(item.SourcePath), Err: errors.New(item.Error)})
		}
	}
	for _, s := range skipped {
		failures = append(failures, tui.Failure{Name: filepath.Base(s.Path), Err: s.Err})
	}
	if out := tui.RenderFailures(failures); out != "" {
		fmt.Println()
		fmt.Println(out)
	}

	if res.run.ID > 0 && res.run.Succeeded > 0 {
		fmt.Println()
		fmt.Println("Run 'imagecompressor history' to see recorded runs")
		fmt.Printf("Run 'imagecompressor clean --run %d' to remove these outputs\n", res.run.ID)
	}
}

func printSkipped(skipped []scan.Skipped) {
	if len(skipped) == 0 {
		return
	}
	failures := make([]tui.Failure, len(skipped))
	for i, s := range skipped {
		failures[i] = tui.Failure{Name: filepath.Base(s.Path), Err: s.Err}
	}
	fmt.Println(tui.RenderFailures(failures))
}

func savedPercent(saved, original int64) string {
	if original <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%.0f%%)", float64(saved)/float64(original)*100)
}

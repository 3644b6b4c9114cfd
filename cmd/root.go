package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imagecompressor/internal/batch"
	"imagecompressor/internal/logging"
)

var (
	dbPath   string
	quality  int
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "imagecompressor",
	Short: "Compress images in batches",
	Long: `imagecompressor re-encodes images at a chosen quality to make them smaller.

JPEG and WebP inputs keep their format, PNG stays PNG and is downscaled at low
quality, and everything else becomes JPEG. Each run is recorded in a local
SQLite database.

Example usage:
  imagecompressor compress ./photos           # Compress a folder
  imagecompressor compress a.png -q 60 -o out # Single file into ./out
  imagecompressor history                     # Show recorded runs
  imagecompressor clean --dry-run             # Preview removing outputs
  imagecompressor serve                       # Start the web service`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return err
		}
		if quality < 1 || quality > 100 {
			return fmt.Errorf("quality must be between 1 and 100, got %d", quality)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".imagecompressor", "history.db")

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDB, "Path to SQLite database")
	rootCmd.PersistentFlags().IntVarP(&quality, "quality", "q", batch.DefaultQuality, "Compression quality (1-100)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (error, warn, info, debug)")
}

func newLogger() *slog.Logger {
	logger, err := logging.New(os.Stderr, logLevel)
	if err != nil {
		return slog.Default()
	}
	return logger
}

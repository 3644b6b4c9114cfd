package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"imagecompressor/internal/config"
	"imagecompressor/internal/mail"
	"imagecompressor/internal/server"
	"imagecompressor/internal/storage"
)

var (
	servePort int
	serveOpen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compression web service",
	Long: `Start the HTTP service: a gallery page for uploading and compressing
images, a JSON API for the same operations, a websocket that pushes batch
progress, and the health and contact endpoints.

Configuration comes from the environment (PORT, APP_ENV, CORS_ORIGIN,
APP_VERSION, SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS, SMTP_TLS, TO_EMAIL,
FROM_EMAIL). Flags override the environment. Without SMTP settings contact
messages are logged and stored but not mailed.

Example:
  imagecompressor serve              # Start on $PORT or 5137
  imagecompressor serve -p 3000      # Use custom port
  imagecompressor serve --open       # Open the gallery in a browser`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the gallery in a browser")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	logger := newLogger()

	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	var mailer mail.Mailer = mail.NewLogMailer(logger)
	if cfg.MailConfigured() {
		smtp, err := mail.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("invalid smtp configuration: %w", err)
		}
		mailer = smtp
	} else {
		logger.Warn("smtp not configured, contact messages will not be mailed")
	}

	srv := server.New(cfg, quality,
		server.WithStorage(store),
		server.WithMailer(mailer),
		server.WithLogger(logger),
	)

	url := fmt.Sprintf("http://localhost:%d", cfg.Port)
	fmt.Printf("Starting server at %s (%s, v%s)\n", url, cfg.Env, cfg.Version)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if serveOpen {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(url)
		}()
	}

	return srv.Start()
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Run()
}

package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"imagecompressor/internal/batch"
	"imagecompressor/internal/compress"
	"imagecompressor/internal/config"
	"imagecompressor/internal/mail"
	"imagecompressor/internal/registry"
	"imagecompressor/internal/storage"
	"imagecompressor/internal/worker"
)

//go:embed static/*
var staticFiles embed.FS

const (
	maxBodySize   = 10 << 20
	maxUploadSize = 50 << 20
)

// Server exposes the image registry, the batch controller and the contact
// relay over HTTP
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	storage    *storage.Storage
	mailer     mail.Mailer
	compressor batch.Compressor
	settle     time.Duration

	worker   *worker.Worker
	previews *registry.MemoryPreviews
	registry *registry.Registry
	batch    *batch.Controller
	hub      *hub

	// background batches run on baseCtx and are cancelled on Close
	baseCtx    context.Context
	cancel     context.CancelFunc
	bgMu       sync.Mutex
	wg         sync.WaitGroup
	closeOnce  sync.Once
	httpServer *http.Server
	stopped    chan struct{}
}

// Option configures a Server
type Option func(*Server)

// WithStorage records batch runs and contact messages in store
func WithStorage(store *storage.Storage) Option {
	return func(s *Server) {
		s.storage = store
	}
}

// WithMailer sets the contact relay. Defaults to a LogMailer.
func WithMailer(m mail.Mailer) Option {
	return func(s *Server) {
		s.mailer = m
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompressor replaces the worker-backed compression service
func WithCompressor(c batch.Compressor) Option {
	return func(s *Server) {
		s.compressor = c
	}
}

// WithSettleDelay sets how long a finished batch stays Running
func WithSettleDelay(d time.Duration) Option {
	return func(s *Server) {
		s.settle = d
	}
}

// New wires the compression pipeline. Call Close to stop the worker.
func New(cfg config.Config, quality int, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
		settle: batch.DefaultSettleDelay,
		hub:    newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = mail.NewLogMailer(s.logger)
	}
	if s.compressor == nil {
		s.worker = worker.New(worker.WithLogger(s.logger))
		s.compressor = compress.NewService(s.worker, s.logger)
	}

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.previews = registry.NewMemoryPreviews()
	s.registry = registry.New(s.previews, registry.WithLogger(s.logger))
	s.batch = batch.NewController(s.registry, s.compressor,
		batch.WithQuality(quality),
		batch.WithSettleDelay(s.settle),
		batch.WithLogger(s.logger),
		batch.WithProgress(s.hub.progress),
		batch.WithDone(s.batchDone),
	)
	return s
}

// Handler returns the full middleware chain around the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	contactLimit := newRateLimiter(20, 10*time.Minute, "Too many contact form submissions, please try again later.")
	uploadLimit := newRateLimiter(50, 15*time.Minute, "Too many uploads, please try again later.")

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("POST /api/contact", contactLimit.middleware(http.HandlerFunc(s.handleContact)))
	mux.Handle("POST /api/upload", uploadLimit.middleware(http.HandlerFunc(s.handleUpload)))

	mux.HandleFunc("GET /api/images", s.handleListImages)
	mux.Handle("POST /api/images", uploadLimit.middleware(http.HandlerFunc(s.handleAddImages)))
	mux.HandleFunc("DELETE /api/images", s.handleClearImages)
	mux.HandleFunc("DELETE /api/images/{id}", s.handleRemoveImage)
	mux.HandleFunc("POST /api/images/{id}/compress", s.handleCompressImage)
	mux.HandleFunc("GET /api/images/{id}/download", s.handleDownload)

	mux.HandleFunc("GET /api/batch", s.handleBatchStatus)
	mux.HandleFunc("POST /api/batch", s.handleStartBatch)
	mux.HandleFunc("PUT /api/settings/quality", s.handleSetQuality)

	mux.HandleFunc("/api/", s.handleNotFound)
	mux.HandleFunc("GET /previews/{handle}", s.handlePreview)

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	// the websocket needs the raw connection, so it skips gzip
	compressed := gzhttp.GzipHandler(mux)
	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			s.hub.serveWS(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})

	globalLimit := newRateLimiter(200, 15*time.Minute, "Too many requests from this IP, please try again later.")

	var h http.Handler = routes
	h = limitBody(h)
	h = globalLimit.middleware(h)
	h = s.cors().Handler(h)
	h = securityHeaders(h)
	h = s.logRequests(h)
	h = s.recoverPanics(h)
	return h
}

// Start listens on the configured port until SIGINT/SIGTERM
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.stopped = make(chan struct{})
	go s.handleShutdownSignals()

	s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-s.stopped
		return nil
	}
	return err
}

func (s *Server) handleShutdownSignals() {
	defer close(s.stopped)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		fmt.Printf("\n%s received, shutting down...\n", sig)
	case <-s.baseCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.closeAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown", "err", err)
	}
	s.Close()
}

// Close cancels running batches, waits for them and stops the worker
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.bgMu.Lock()
		s.cancel()
		s.bgMu.Unlock()
		s.wg.Wait()
		if s.worker != nil {
			s.worker.Close()
		}
		if _, err := s.registry.Clear(); err != nil {
			s.logger.Warn("releasing previews", "err", err)
		}
	})
}

// batchDone pushes the summary to websocket clients and records the run
func (s *Server) batchDone(report batch.Report) {
	s.hub.batchComplete(report)

	if s.storage == nil || report.Total() == 0 {
		return
	}
	run, items := report.Run()
	if err := s.storage.RecordRun(run, items); err != nil {
		s.logger.Error("failed to record batch", "err", err)
	}
}

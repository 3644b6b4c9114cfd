// Package worker runs image encoding on a dedicated goroutine. Callers talk to
// it only through Request/Response messages; failures come back as an error
// Response, never as a panic or a returned encode error.
package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"imagecompressor/internal/models"
)

// MessageType discriminates worker messages
type MessageType string

const (
	MessageCompress MessageType = "compress"
	MessageComplete MessageType = "compression-complete"
	MessageError    MessageType = "error"
)

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("worker closed")

// Request asks the worker to encode a bitmap
type Request struct {
	Type      MessageType   `json:"type"`
	ImageData image.Image   `json:"-"`
	Quality   int           `json:"quality"`
	Format    models.Format `json:"format"`
}

// Response is either a completed compression or an error message
type Response struct {
	Type           MessageType `json:"type"`
	CompressedBlob []byte      `json:"-"`
	OriginalSize   int64       `json:"originalSize,omitempty"` // width*height*4, not the file size
	CompressedSize int64       `json:"compressedSize,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// OK reports whether the response carries a compressed blob
func (r Response) OK() bool {
	return r.Type == MessageComplete
}

// NewCompressRequest builds a compress request
func NewCompressRequest(img image.Image, quality int, format models.Format) Request {
	return Request{Type: MessageCompress, ImageData: img, Quality: quality, Format: format}
}

// Handle processes one request. Panics and encode errors are turned into an
// error Response.
func Handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = errorResponse(fmt.Errorf("encoder panic: %v", r))
		}
	}()

	if req.Type != MessageCompress {
		return errorResponse(fmt.Errorf("unknown message type: %q", req.Type))
	}

	format, err := models.ParseFormat(string(req.Format))
	if err != nil {
		return errorResponse(err)
	}

	blob, err := Encode(req.ImageData, req.Quality, format)
	if err != nil {
		return errorResponse(err)
	}

	return Response{
		Type:           MessageComplete,
		CompressedBlob: blob,
		OriginalSize:   ApproxRawSize(req.ImageData),
		CompressedSize: int64(len(blob)),
	}
}

func errorResponse(err error) Response {
	msg := "unknown error occurred"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{Type: MessageError, Error: msg}
}

type envelope struct {
	req   Request
	reply chan Response // buffered, one per request
}

// Worker owns a single goroutine that handles requests one at a time
type Worker struct {
	requests chan envelope
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	handle   func(Request) Response
	logger   *slog.Logger
}

// Option configures a Worker
type Option func(*Worker)

// WithHandler replaces the request handler
func WithHandler(fn func(Request) Response) Option {
	return func(w *Worker) {
		if fn != nil {
			w.handle = fn
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Worker and starts its goroutine
func New(opts ...Option) *Worker {
	w := &Worker{
		requests: make(chan envelope),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		handle:   Handle,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case env := <-w.requests:
			env.reply <- w.safeHandle(env.req)
		case <-w.done:
			return
		}
	}
}

// safeHandle guards custom handlers the same way Handle guards itself
func (w *Worker) safeHandle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker handler panic", "panic", r)
			resp = errorResponse(fmt.Errorf("worker error: %v", r))
		}
	}()
	return w.handle(req)
}

// Submit sends a request and waits for its response. The error is non-nil
// only when the request never got a response (closed worker, cancelled ctx).
func (w *Worker) Submit(ctx context.Context, req Request) (Response, error) {
	reply := make(chan Response, 1)

	select {
	case <-w.done:
		return Response{}, ErrClosed
	default:
	}

	select {
	case w.requests <- envelope{req: req, reply: reply}:
	case <-w.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close stops the goroutine after the in-flight request, if any
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.done)
	})
	<-w.stopped
}

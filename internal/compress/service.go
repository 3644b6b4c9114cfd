package compress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"imagecompressor/internal/models"
	"imagecompressor/internal/worker"
)

var (
	// ErrDecode means the source could not be decoded into a bitmap
	ErrDecode = errors.New("decode failed")
	// ErrEncode means the worker reported a failure
	ErrEncode = errors.New("encode failed")
)

// Source is an uploaded file: its declared MIME type and content
type Source struct {
	Name string
	Type string
	Data []byte
}

// Size returns the byte length of the source content
func (s Source) Size() int64 {
	return int64(len(s.Data))
}

// Format returns the output format derived from the declared type
func (s Source) Format() models.Format {
	return models.FormatForType(s.Type)
}

// Submitter sends requests to a compression worker
type Submitter interface {
	Submit(ctx context.Context, req worker.Request) (worker.Response, error)
}

// Service decodes sources and hands them to the worker
type Service struct {
	worker Submitter
	logger *slog.Logger
}

// NewService creates a Service that owns w
func NewService(w Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{worker: w, logger: logger}
}

// Compress performs one decode and one worker round trip. Decode and encode
// failures are both returned as errors; only the message tells them apart.
func (s *Service) Compress(ctx context.Context, src Source, quality int) ([]byte, error) {
	start := time.Now()

	img, _, err := Decode(src.Data)
	if err != nil {
		return nil, err
	}

	format := src.Format()
	resp, err := s.worker.Submit(ctx, worker.NewCompressRequest(img, quality, format))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s", ErrEncode, resp.Error)
	}

	// resp.OriginalSize is a raw-buffer estimate; callers use the blob length
	s.logger.Debug("compressed image",
		"name", src.Name,
		"format", string(format),
		"quality", quality,
		"original", src.Size(),
		"compressed", len(resp.CompressedBlob),
		"took", time.Since(start),
	)

	return resp.CompressedBlob, nil
}

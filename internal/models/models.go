package models

import (
	"fmt"
	"strings"
	"time"
)

// Format is a target encoding understood by the compression worker
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
)

// ParseFormat accepts the worker's format names. Anything else is an error,
// never a silent fallback.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJPEG, FormatWebP, FormatPNG:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// FormatForType maps a declared MIME type to the output format.
// Undetermined types compress to JPEG.
func FormatForType(mimeType string) Format {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	default:
		return FormatJPEG
	}
}

// Extension returns the file extension (with dot) for compressed output
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

// ContentType returns the MIME type of compressed output
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Dimensions is an image size in pixels
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CompressionState is the per-record compression status
type CompressionState int

const (
	Pending CompressionState = iota
	Compressed
)

func (s CompressionState) String() string {
	if s == Compressed {
		return "compressed"
	}
	return "pending"
}

// MarshalText renders the state as its name in JSON
func (s CompressionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ImageRecord is one uploaded image and its compression result.
// CompressedData and CompressedSize are set together, and only when
// State is Compressed.
type ImageRecord struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Type           string           `json:"type"`
	Source         []byte           `json:"-"`
	OriginalSize   int64            `json:"original_size"`
	Preview        string           `json:"preview"`
	Dimensions     *Dimensions      `json:"dimensions,omitempty"`
	State          CompressionState `json:"state"`
	CompressedData []byte           `json:"-"`
	CompressedSize *int64           `json:"compressed_size,omitempty"`
	AddedAt        time.Time        `json:"added_at"`
}

// IsCompressed reports whether the record holds a compressed artifact
func (r ImageRecord) IsCompressed() bool {
	return r.State == Compressed
}

// BatchProgress counts successful compressions in the active batch
type BatchProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// CompressionRun is a recorded batch run
type CompressionRun struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Quality    int       `json:"quality"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	BytesSaved int64     `json:"bytes_saved"`
}

// CompressionItem is one image within a recorded run
type CompressionItem struct {
	ID             int64  `json:"id"`
	RunID          int64  `json:"run_id"`
	SourcePath     string `json:"source_path"`
	OutputPath     string `json:"output_path,omitempty"`
	Format         string `json:"format"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
	Fidelity       int    `json:"fidelity"` // pHash distance, -1 when unknown
	Error          string `json:"error,omitempty"`
}

// ContactMessage is a persisted contact form submission
type ContactMessage struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// OutputName derives the file name for a compressed artifact:
// "photo.png" compressed to JPEG becomes "photo_compressed.jpg".
func OutputName(name string, f Format) string {
	base := name
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "image"
	}
	return base + "_compressed" + f.Extension()
}

package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownPreview is returned when releasing a handle that was never
// issued or was already released
var ErrUnknownPreview = errors.New("unknown preview handle")

// PreviewStore issues handles for displaying image bytes without re-reading
// the source. Every handle must be released exactly once.
type PreviewStore interface {
	Create(data []byte, contentType string) (string, error)
	Release(handle string) error
}

type preview struct {
	data        []byte
	contentType string
}

// MemoryPreviews keeps previews in process memory
type MemoryPreviews struct {
	mu    sync.RWMutex
	items map[string]preview
}

// NewMemoryPreviews creates an empty store
func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{items: make(map[string]preview)}
}

// Create stores data and returns a new handle
func (m *MemoryPreviews) Create(data []byte, contentType string) (string, error) {
	handle := uuid.NewString()

	m.mu.Lock()
	m.items[handle] = preview{data: data, contentType: contentType}
	m.mu.Unlock()

	return handle, nil
}

// Release frees a handle
func (m *MemoryPreviews) Release(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[handle]; !ok {
		return ErrUnknownPreview
	}
	delete(m.items, handle)
	return nil
}

// Open returns the bytes and content type behind a live handle
func (m *MemoryPreviews) Open(handle string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.items[handle]
	return p.data, p.contentType, ok
}

// Len returns the number of live handles
func (m *MemoryPreviews) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

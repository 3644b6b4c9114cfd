// Package registry holds the ordered set of uploaded images for a session.
//
// Every mutation builds a new record slice and swaps it in under the lock, so
// readers always see whole records. Lookups for updates go by id; an update
// for an id that has been removed is dropped silently.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagecompressor/internal/compress"
	"imagecompressor/internal/models"
)

// Registry is the in-memory image collection
type Registry struct {
	mu       sync.RWMutex
	records  []models.ImageRecord
	previews PreviewStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now for AddedAt stamps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty Registry issuing previews from previews
func New(previews PreviewStore, opts ...Option) *Registry {
	r := &Registry{
		previews: previews,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append adds one record per source at the end, in argument order.
// Undecodable sources are still added, just without dimensions.
func (r *Registry) Append(sources ...compress.Source) ([]models.ImageRecord, error) {
	added := make([]models.ImageRecord, 0, len(sources))

	for _, src := range sources {
		handle, err := r.previews.Create(src.Data, src.Type)
		if err != nil {
			for _, rec := range added {
				r.release(rec.Preview)
			}
			return nil, fmt.Errorf("failed to create preview for %s: %w", src.Name, err)
		}

		rec := models.ImageRecord{
			ID:           uuid.NewString(),
			Name:         src.Name,
			Type:         src.Type,
			Source:       src.Data,
			OriginalSize: src.Size(),
			Preview:      handle,
			State:        models.Pending,
			AddedAt:      r.now(),
		}
		if dims, err := compress.DecodeConfig(src.Data); err == nil {
			rec.Dimensions = &dims
		} else {
			r.logger.Debug("could not read dimensions", "name", src.Name, "err", err)
		}
		added = append(added, rec)
	}

	r.mu.Lock()
	next := make([]models.ImageRecord, 0, len(r.records)+len(added))
	next = append(next, r.records...)
	next = append(next, added...)
	r.records = next
	r.mu.Unlock()

	out := make([]models.ImageRecord, len(added))
	copy(out, added)
	return out, nil
}

// UpdateByID replaces the record with patch(record). Returns false, and does
// nothing, when the id is unknown. The id cannot be changed by patch.
func (r *Registry) UpdateByID(id string, patch func(models.ImageRecord) models.ImageRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}

	updated := patch(r.records[idx])
	updated.ID = id

	next := make([]models.ImageRecord, len(r.records))
	copy(next, r.records)
	next[idx] = updated
	r.records = next
	return true
}

// MarkCompressed stores a compressed artifact on the record
func (r *Registry) MarkCompressed(id string, data []byte) bool {
	return r.UpdateByID(id, func(rec models.ImageRecord) models.ImageRecord {
		size := int64(len(data))
		rec.State = models.Compressed
		rec.CompressedData = data
		rec.CompressedSize = &size
		return rec
	})
}

// RemoveByID deletes a record and releases its preview. The returned error
// reports a failed release; the record is removed either way.
func (r *Registry) RemoveByID(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return false, nil
	}

	err := r.release(r.records[idx].Preview)

	next := make([]models.ImageRecord, 0, len(r.records)-1)
	next = append(next, r.records[:idx]...)
	next = append(next, r.records[idx+1:]...)
	r.records = next
	return true, err
}

// Clear removes every record, releasing all previews. Returns how many
// records were removed.
func (r *Registry) Clear() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, rec := range r.records {
		if err := r.release(rec.Preview); err != nil {
			errs = append(errs, err)
		}
	}

	n := len(r.records)
	r.records = nil
	return n, errors.Join(errs...)
}

// Get returns a record by id
func (r *Registry) Get(id string) (models.ImageRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return models.ImageRecord{}, false
	}
	return r.records[idx], true
}

// List returns all records in insertion order
func (r *Registry) List() []models.ImageRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ImageRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Pending returns the records not yet compressed, in insertion order
func (r *Registry) Pending() []models.ImageRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ImageRecord
	for _, rec := range r.records {
		if rec.State == models.Pending {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the number of records
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *Registry) indexOf(id string) int {
	for i, rec := range r.records {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) release(handle string) error {
	if handle == "" {
		return nil
	}
	if err := r.previews.Release(handle); err != nil {
		r.logger.Warn("failed to release preview", "preview", handle, "err", err)
		return err
	}
	return nil
}

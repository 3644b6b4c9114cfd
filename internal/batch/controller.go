package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"imagecompressor/internal/compress"
	"imagecompressor/internal/models"
	"imagecompressor/internal/registry"
)

var (
	ErrBatchRunning      = errors.New("batch already running")
	ErrNotFound          = errors.New("image not found")
	ErrAlreadyCompressed = errors.New("image already compressed")
)

const (
	DefaultQuality     = 80
	DefaultSettleDelay = time.Second
)

// State of the batch controller
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText renders the state as its name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Compressor turns a source into compressed bytes
type Compressor interface {
	Compress(ctx context.Context, src compress.Source, quality int) ([]byte, error)
}

// Controller compresses pending registry records one at a time
type Controller struct {
	registry   *registry.Registry
	compressor Compressor
	settle     time.Duration
	logger     *slog.Logger
	onProgress func(models.BatchProgress)
	onDone     func(Report)

	mu       sync.Mutex
	state    State
	progress models.BatchProgress
	quality  int
	last     *Report
}

// Option configures a Controller
type Option func(*Controller)

// WithSettleDelay sets how long the controller stays Running after the last
// item so the completion is visible
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.settle = d
		}
	}
}

// WithQuality sets the initial quality
func WithQuality(q int) Option {
	return func(c *Controller) {
		c.quality = ClampQuality(q)
	}
}

// WithProgress sets a callback invoked whenever batch progress changes
func WithProgress(fn func(models.BatchProgress)) Option {
	return func(c *Controller) {
		c.onProgress = fn
	}
}

// WithDone sets a callback invoked with the report when a batch returns to Idle
func WithDone(fn func(Report)) Option {
	return func(c *Controller) {
		c.onDone = fn
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates an Idle controller
func NewController(reg *registry.Registry, comp Compressor, opts ...Option) *Controller {
	c := &Controller{
		registry:   reg,
		compressor: comp,
		settle:     DefaultSettleDelay,
		logger:     slog.Default(),
		quality:    DefaultQuality,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClampQuality bounds a quality setting to 1-100
func ClampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	default:
		return q
	}
}

// SetQuality changes the quality used by subsequent invocations
func (c *Controller) SetQuality(q int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quality = ClampQuality(q)
	return c.quality
}

// Quality returns the current quality setting
func (c *Controller) Quality() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// State returns Idle or Running
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the progress of the current or most recent batch
func (c *Controller) Progress() models.BatchProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// LastReport returns the report of the most recent finished batch
func (c *Controller) LastReport() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// CompressAll snapshots the pending records and compresses them in order.
// A failed item stays Pending and does not stop the batch. Records appended
// after the snapshot are left for the next run.
func (c *Controller) CompressAll(ctx context.Context) (Report, error) {
	b, err := c.Begin()
	if err != nil {
		return Report{}, err
	}
	return b.Run(ctx)
}

// Batch is a claimed snapshot of pending records. Exactly one Run call
// releases the controller back to Idle.
type Batch struct {
	c        *Controller
	snapshot []models.ImageRecord
	quality  int
}

// Begin snapshots the pending records and moves the controller to Running
// before returning, so a second Begin fails with ErrBatchRunning right away.
// An empty snapshot leaves the controller Idle and yields a batch whose Run
// returns an empty report.
func (c *Controller) Begin() (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return nil, ErrBatchRunning
	}
	b := &Batch{c: c, snapshot: c.registry.Pending(), quality: c.quality}
	if len(b.snapshot) == 0 {
		return b, nil
	}
	c.state = Running
	c.progress = models.BatchProgress{Current: 0, Total: len(b.snapshot)}
	return b, nil
}

// Total is the snapshot size
func (b *Batch) Total() int {
	return len(b.snapshot)
}

// Run compresses the snapshot, waits the settle delay and returns to Idle
func (b *Batch) Run(ctx context.Context) (Report, error) {
	if len(b.snapshot) == 0 {
		return Report{}, nil
	}
	c := b.c

	report := Report{Quality: b.quality, Started: time.Now()}
	c.logger.Info("batch started", "images", len(b.snapshot), "quality", b.quality)
	c.emit(models.BatchProgress{Current: 0, Total: len(b.snapshot)})

	for _, rec := range b.snapshot {
		if err := ctx.Err(); err != nil {
			report.Outcomes = append(report.Outcomes, newOutcome(rec, nil, err))
			continue
		}

		out := c.compressRecord(ctx, rec, b.quality)
		report.Outcomes = append(report.Outcomes, out)
		if out.Err != nil {
			continue
		}

		c.mu.Lock()
		c.progress.Current++
		progress := c.progress
		c.mu.Unlock()
		c.emit(progress)
	}
	report.Finished = time.Now()

	c.logger.Info("batch finished",
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"saved", report.Saved(),
	)

	err := ctx.Err()
	if err == nil && c.settle > 0 {
		timer := time.NewTimer(c.settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err = ctx.Err()
		}
	}

	c.mu.Lock()
	c.state = Idle
	c.last = &report
	c.mu.Unlock()

	if c.onDone != nil {
		c.onDone(report)
	}
	return report, err
}

// CompressOne compresses a single record without touching batch progress.
// A record that is already compressed is left alone and ErrAlreadyCompressed
// is returned.
func (c *Controller) CompressOne(ctx context.Context, id string) (Outcome, error) {
	rec, ok := c.registry.Get(id)
	if !ok {
		return Outcome{ID: id}, ErrNotFound
	}
	if rec.IsCompressed() {
		return newOutcome(rec, rec.CompressedData, nil), ErrAlreadyCompressed
	}

	out := c.compressRecord(ctx, rec, c.Quality())
	return out, out.Err
}

// ClearAll empties the registry and resets progress. While a batch is
// running its progress is left alone; the removed records end up as
// ErrNotFound outcomes of that batch.
func (c *Controller) ClearAll() (int, error) {
	n, err := c.registry.Clear()

	c.mu.Lock()
	if c.state == Idle {
		c.progress = models.BatchProgress{}
	}
	c.mu.Unlock()
	return n, err
}

func (c *Controller) compressRecord(ctx context.Context, rec models.ImageRecord, quality int) Outcome {
	if _, ok := c.registry.Get(rec.ID); !ok {
		return newOutcome(rec, nil, ErrNotFound)
	}

	src := compress.Source{Name: rec.Name, Type: rec.Type, Data: rec.Source}
	data, err := c.compressor.Compress(ctx, src, quality)
	if err != nil {
		c.logger.Warn("compression failed", "id", rec.ID, "name", rec.Name, "err", err)
		return newOutcome(rec, nil, err)
	}

	if !c.registry.MarkCompressed(rec.ID, data) {
		c.logger.Debug("record removed before compression finished", "id", rec.ID)
		return newOutcome(rec, nil, ErrNotFound)
	}
	return newOutcome(rec, data, nil)
}

func (c *Controller) emit(p models.BatchProgress) {
	if c.onProgress != nil {
		c.onProgress(p)
	}
}

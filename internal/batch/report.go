package batch

import (
	"time"

	"imagecompressor/internal/models"
)

// Outcome is the result of compressing one record
type Outcome struct {
	ID             string
	Name           string
	Format         models.Format
	OriginalSize   int64
	CompressedSize int64
	Data           []byte
	Err            error
}

func newOutcome(rec models.ImageRecord, data []byte, err error) Outcome {
	o := Outcome{
		ID:           rec.ID,
		Name:         rec.Name,
		Format:       models.FormatForType(rec.Type),
		OriginalSize: rec.OriginalSize,
		Err:          err,
	}
	if err == nil {
		o.Data = data
		o.CompressedSize = int64(len(data))
	}
	return o
}

// OK reports whether the record was compressed
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Saved returns the bytes saved, negative when the output grew
func (o Outcome) Saved() int64 {
	if o.Err != nil {
		return 0
	}
	return o.OriginalSize - o.CompressedSize
}

// Report aggregates the outcomes of one batch, in snapshot order
type Report struct {
	Quality  int
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

// Total returns the snapshot size
func (r Report) Total() int {
	return len(r.Outcomes)
}

// Succeeded counts compressed records
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts records left pending
func (r Report) Failed() int {
	return r.Total() - r.Succeeded()
}

// Saved sums bytes saved over the successful outcomes
func (r Report) Saved() int64 {
	var total int64
	for _, o := range r.Outcomes {
		total += o.Saved()
	}
	return total
}

// Failures returns the outcomes that failed
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Run converts the report into history rows. Items carry the record name as
// source path and no output; callers that write files fill those in.
func (r Report) Run() (*models.CompressionRun, []*models.CompressionItem) {
	run := &models.CompressionRun{
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
		Quality:    r.Quality,
		Total:      r.Total(),
		Succeeded:  r.Succeeded(),
		Failed:     r.Failed(),
		BytesSaved: r.Saved(),
	}

	items := make([]*models.CompressionItem, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		item := &models.CompressionItem{
			SourcePath:     o.Name,
			Format:         string(o.Format),
			OriginalSize:   o.OriginalSize,
			CompressedSize: o.CompressedSize,
			Fidelity:       -1,
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		items = append(items, item)
	}
	return run, items
}

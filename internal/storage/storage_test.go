package storage

import (
	"path/filepath"
	"testing"
	"time"

	"imagecompressor/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed to create directories: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("db should not be nil")
	}
}

func TestNewStorage_ReopenKeepsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	if v := store.getSchemaVersion(); v != schemaVersion {
		t.Errorf("schema version = %d, want %d", v, schemaVersion)
	}
	store.Close()

	store, err = NewStorage(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	if !store.columnExists("compression_items", "fidelity") {
		t.Error("fidelity column missing after reopen")
	}
}

func TestRecordRun_AndList(t *testing.T) {
	store := newTestStorage(t)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &models.CompressionRun{
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Quality:    75,
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		BytesSaved: 4096,
	}
	items := []*models.CompressionItem{
		{SourcePath: "/in/a.jpg", OutputPath: "/out/a.jpg", Format: "jpeg", OriginalSize: 10000, CompressedSize: 5904, Fidelity: 2},
		{SourcePath: "/in/b.png", Format: "png", OriginalSize: 300, Fidelity: -1, Error: "decode failed"},
	}

	if err := store.RecordRun(run, items); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run id not set")
	}

	runs, err := store.ListRuns(0, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Quality != 75 || got.Succeeded != 1 || got.Failed != 1 || got.BytesSaved != 4096 {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	stored, err := store.ItemsForRun(run.ID)
	if err != nil {
		t.Fatalf("ItemsForRun failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored))
	}
	if stored[0].OutputPath != "/out/a.jpg" || stored[0].Fidelity != 2 {
		t.Errorf("item 0 = %+v", stored[0])
	}
	if stored[1].Error != "decode failed" || stored[1].OutputPath != "" {
		t.Errorf("item 1 = %+v", stored[1])
	}
}

func TestListRuns_Pagination(t *testing.T) {
	store := newTestStorage(t)

	for q := 10; q <= 50; q += 10 {
		run := &models.CompressionRun{StartedAt: time.Now(), FinishedAt: time.Now(), Quality: q}
		if err := store.RecordRun(run, nil); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	count, err := store.CountRuns()
	if err != nil || count != 5 {
		t.Fatalf("CountRuns = %d, %v; want 5", count, err)
	}

	tests := []struct {
		name          string
		limit, offset int
		wantQualities []int
	}{
		{"first page", 2, 0, []int{50, 40}},
		{"second page", 2, 2, []int{30, 20}},
		{"offset only", 0, 3, []int{20, 10}},
		{"past end", 2, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListRuns failed: %v", err)
			}
			if len(runs) != len(tt.wantQualities) {
				t.Fatalf("got %d runs, want %d", len(runs), len(tt.wantQualities))
			}
			for i, r := range runs {
				if r.Quality != tt.wantQualities[i] {
					t.Errorf("run %d quality = %d, want %d", i, r.Quality, tt.wantQualities[i])
				}
			}
		})
	}
}

func TestOutputsForRuns_AndForget(t *testing.T) {
	store := newTestStorage(t)

	var runIDs []int64
	for _, out := range []string{"/out/1.jpg", "/out/2.jpg"} {
		run := &models.CompressionRun{StartedAt: time.Now(), FinishedAt: time.Now()}
		items := []*models.CompressionItem{
			{SourcePath: "/in/x", OutputPath: out, Format: "jpeg"},
			{SourcePath: "/in/failed", Format: "jpeg", Error: "boom"},
		}
		if err := store.RecordRun(run, items); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
		runIDs = append(runIDs, run.ID)
	}

	all, err := store.OutputsForRuns(nil)
	if err != nil {
		t.Fatalf("OutputsForRuns failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(all))
	}

	one, err := store.OutputsForRuns(runIDs[1:])
	if err != nil {
		t.Fatalf("OutputsForRuns failed: %v", err)
	}
	if len(one) != 1 || one[0].OutputPath != "/out/2.jpg" {
		t.Errorf("filtered outputs = %+v", one)
	}

	if err := store.ForgetOutput("/out/1.jpg"); err != nil {
		t.Fatalf("ForgetOutput failed: %v", err)
	}
	all, _ = store.OutputsForRuns(nil)
	if len(all) != 1 {
		t.Errorf("expected 1 output after forget, got %d", len(all))
	}
}

func TestSaveContact(t *testing.T) {
	store := newTestStorage(t)

	msg := &models.ContactMessage{
		MessageID: "<abc@example.com>",
		Name:      "Ada",
		Email:     "ada@example.com",
		Subject:   "Hello there",
		Body:      "A message body",
	}
	if err := store.SaveContact(msg); err != nil {
		t.Fatalf("SaveContact failed: %v", err)
	}
	if msg.ID == 0 || msg.CreatedAt.IsZero() {
		t.Errorf("id/created_at not set: %+v", msg)
	}

	list, err := store.ListContacts()
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(list) != 1 || list[0].Email != "ada@example.com" || list[0].MessageID != "<abc@example.com>" {
		t.Errorf("contacts = %+v", list)
	}
}

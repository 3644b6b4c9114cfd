package scan

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

// 1x1 PNG
var pngData = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xDE,
	0x00, 0x00, 0x00, 0x0C, 0x49, 0x44, 0x41, 0x54,
	0x08, 0xD7, 0x63, 0xF8, 0xFF, 0xFF, 0x3F, 0x00,
	0x05, 0xFE, 0x02, 0xFE, 0xDC, 0xCC, 0x59, 0xE7,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44,
	0xAE, 0x42, 0x60, 0x82,
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
}

func TestNewScanner_Options(t *testing.T) {
	s := NewScanner()
	if s.workers != 8 {
		t.Errorf("default workers = %d, want 8", s.workers)
	}
	if s.maxSize != 50<<20 {
		t.Errorf("default maxSize = %d", s.maxSize)
	}

	s = NewScanner(WithWorkers(0))
	if s.workers != 8 {
		t.Errorf("workers with 0 = %d, want 8", s.workers)
	}

	s = NewScanner(WithWorkers(3), WithMaxSize(10), WithExclude("out"))
	if s.workers != 3 || s.maxSize != 10 || len(s.exclude) != 1 {
		t.Errorf("options not applied: %+v", s)
	}
}

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPEG", true},
		{"a.png", true},
		{"a.webp", true},
		{"a.tif", true},
		{"a.qoi", true},
		{"a.txt", false},
		{"a", false},
	}
	for _, tt := range tests {
		if got := IsSupportedImage(tt.path); got != tt.want {
			t.Errorf("IsSupportedImage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		path string
		data []byte
		want string
	}{
		{"sniffed png", "photo.jpg", pngData, "image/png"},
		{"tiff by extension", "scan.tiff", []byte("II*\x00not much else"), "image/tiff"},
		{"qoi by extension", "pic.qoi", []byte("qoif\x00\x00\x00\x01"), "image/qoi"},
		{"unknown", "notes.bin", []byte("hello"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectType(tt.path, tt.data); got != tt.want {
				t.Errorf("DetectType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollect_EmptyAndNoImages(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "test.txt"), []byte("content"))

	res, err := NewScanner().Collect(tmpDir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(res.Files) != 0 || len(res.Skipped) != 0 {
		t.Errorf("expected nothing, got %+v", res)
	}
}

func TestCollect_OrderAndRecursion(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "b.png"), pngData)
	writeFile(t, filepath.Join(tmpDir, "a.png"), pngData)
	writeFile(t, filepath.Join(tmpDir, "sub", "c.png"), pngData)
	single := filepath.Join(t.TempDir(), "single.png")
	writeFile(t, single, pngData)

	res, err := NewScanner(WithWorkers(4)).Collect(single, tmpDir, filepath.Join(tmpDir, "a.png"))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []string{"single.png", "a.png", "b.png", "c.png"}
	if len(res.Files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(res.Files))
	}
	for i, f := range res.Files {
		if f.Source.Name != want[i] {
			t.Errorf("file %d = %s, want %s", i, f.Source.Name, want[i])
		}
		if f.Source.Type != "image/png" {
			t.Errorf("file %d type = %s", i, f.Source.Type)
		}
		if len(f.Source.Data) != len(pngData) {
			t.Errorf("file %d data length = %d", i, len(f.Source.Data))
		}
	}
}

func TestCollect_ExcludeAndMaxSize(t *testing.T) {
	tmpDir := t.TempDir()
	out := filepath.Join(tmpDir, "compressed")
	writeFile(t, filepath.Join(tmpDir, "keep.png"), pngData)
	writeFile(t, filepath.Join(out, "keep_compressed.png"), pngData)
	writeFile(t, filepath.Join(tmpDir, "big.png"), make([]byte, 200))

	res, err := NewScanner(WithExclude(out), WithMaxSize(100)).Collect(tmpDir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Source.Name != "keep.png" {
		t.Errorf("files = %+v", res.Files)
	}
	if len(res.Skipped) != 1 || filepath.Base(res.Skipped[0].Path) != "big.png" {
		t.Errorf("skipped = %+v", res.Skipped)
	}
}

func TestCollect_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	if _, err := NewScanner().Collect(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}

	txt := filepath.Join(tmpDir, "notes.txt")
	writeFile(t, txt, []byte("x"))
	if _, err := NewScanner().Collect(txt); err == nil {
		t.Error("expected error for unsupported explicit file")
	}
}

func TestCollect_ProgressCallback(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeFile(t, filepath.Join(tmpDir, name), pngData)
	}

	var callCount int64
	s := NewScanner(
		WithWorkers(1),
		WithProgress(func(scanned, total int, current string) {
			atomic.AddInt64(&callCount, 1)
			if total != 3 {
				t.Errorf("total = %d, want 3", total)
			}
		}),
	)

	if _, err := s.Collect(tmpDir); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if callCount != 3 {
		t.Errorf("progress called %d times, want 3", callCount)
	}
}

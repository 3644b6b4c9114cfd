package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"imagecompressor/internal/compress"
	"imagecompressor/internal/logging"
	"imagecompressor/internal/models"
	"imagecompressor/internal/scan"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCompressFiles(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	good := testPNG(t, 32, 32)
	files := []scan.File{
		{Path: filepath.Join(srcDir, "good.png"), Source: compress.Source{Name: "good.png", Type: "image/png", Data: good}},
		{Path: filepath.Join(srcDir, "bad.png"), Source: compress.Source{Name: "bad.png", Type: "image/png", Data: []byte("not an image")}},
	}

	var progress []models.BatchProgress
	res, err := compressFiles(context.Background(), files, compressJob{
		quality:  80,
		outDir:   outDir,
		logger:   logging.Discard(),
		progress: func(p models.BatchProgress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("compressFiles failed: %v", err)
	}

	if res.run.Total != 2 || res.run.Succeeded != 1 || res.run.Failed != 1 {
		t.Errorf("run = %+v", res.run)
	}
	if len(progress) != 2 || progress[1].Current != 1 || progress[1].Total != 2 {
		t.Errorf("progress = %+v", progress)
	}

	ok, failed := res.items[0], res.items[1]
	if ok.OutputPath != filepath.Join(outDir, "good_compressed.png") {
		t.Errorf("output path = %s", ok.OutputPath)
	}
	if ok.SourcePath != files[0].Path {
		t.Errorf("source path = %s", ok.SourcePath)
	}
	if ok.Fidelity < 0 {
		t.Errorf("fidelity should be computed, got %d", ok.Fidelity)
	}
	data, err := os.ReadFile(ok.OutputPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if int64(len(data)) != ok.CompressedSize {
		t.Errorf("output size %d, recorded %d", len(data), ok.CompressedSize)
	}

	if failed.Error == "" || failed.OutputPath != "" {
		t.Errorf("failed item = %+v", failed)
	}

	// a second run must not overwrite the first output
	res, err = compressFiles(context.Background(), files[:1], compressJob{quality: 80, outDir: outDir, logger: logging.Discard()})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.items[0].OutputPath != filepath.Join(outDir, "good_compressed_1.png") {
		t.Errorf("second output path = %s", res.items[0].OutputPath)
	}
}

func TestCompressFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := []scan.File{
		{Path: "a.png", Source: compress.Source{Name: "a.png", Type: "image/png", Data: testPNG(t, 4, 4)}},
	}
	res, err := compressFiles(ctx, files, compressJob{quality: 80, outDir: t.TempDir(), logger: logging.Discard()})
	if err == nil {
		t.Fatal("expected context error")
	}
	if res == nil || res.run.Failed != 1 || res.items[0].OutputPath != "" {
		t.Errorf("cancelled run should record the item as failed: %+v", res)
	}
}

func TestExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a_compressed.jpg")
	if err := os.WriteFile(present, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	gone := filepath.Join(dir, "b_compressed.jpg")

	items := []*models.CompressionItem{
		{OutputPath: present},
		{OutputPath: gone},
		{OutputPath: present},
	}
	files, size, missing := existingOutputs(items)
	if len(files) != 1 || files[0] != present {
		t.Errorf("present = %v", files)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
	if len(missing) != 1 || missing[0] != gone {
		t.Errorf("missing = %v", missing)
	}
}

func TestFormatSaved(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1500, "1.5 kB"},
		{-2000, "-2.0 kB"},
	}
	for _, tt := range tests {
		if got := formatSaved(tt.n); got != tt.want {
			t.Errorf("formatSaved(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestShortenPath(t *testing.T) {
	if got := shortenPath("/a/b.png", 40); got != "/a/b.png" {
		t.Errorf("short path changed: %s", got)
	}
	long := "/very/long/directory/name/that/keeps/going/photo.png"
	got := shortenPath(long, 30)
	if len(got) > 30 || got[:3] != "..." || filepath.Base(got) != "photo.png" {
		t.Errorf("shortenPath = %q", got)
	}
}

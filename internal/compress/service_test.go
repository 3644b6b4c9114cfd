package compress

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"imagecompressor/internal/models"
	"imagecompressor/internal/worker"
)

type fakeWorker struct {
	calls []worker.Request
	resp  worker.Response
	err   error
}

func (f *fakeWorker) Submit(ctx context.Context, req worker.Request) (worker.Response, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestCompress_FormatFromDeclaredType(t *testing.T) {
	data := pngBytes(t, 8, 8)

	tests := []struct {
		declared string
		want     models.Format
	}{
		{"image/png", models.FormatPNG},
		{"image/webp", models.FormatWebP},
		{"image/jpeg", models.FormatJPEG},
		{"image/gif", models.FormatJPEG},
		{"", models.FormatJPEG},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			fw := &fakeWorker{resp: worker.Response{Type: worker.MessageComplete, CompressedBlob: []byte("out")}}
			svc := NewService(fw, nil)

			out, err := svc.Compress(context.Background(), Source{Name: "a", Type: tt.declared, Data: data}, 55)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if string(out) != "out" {
				t.Errorf("Compress returned %q, want worker blob", out)
			}
			if len(fw.calls) != 1 {
				t.Fatalf("worker called %d times, want 1", len(fw.calls))
			}
			req := fw.calls[0]
			if req.Format != tt.want {
				t.Errorf("format = %q, want %q", req.Format, tt.want)
			}
			if req.Quality != 55 {
				t.Errorf("quality = %d, want 55", req.Quality)
			}
			if b := req.ImageData.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
				t.Errorf("bitmap %dx%d, want original 8x8", b.Dx(), b.Dy())
			}
		})
	}
}

func TestCompress_DecodeError(t *testing.T) {
	fw := &fakeWorker{}
	svc := NewService(fw, nil)

	_, err := svc.Compress(context.Background(), Source{Name: "bad", Type: "image/png", Data: []byte("not an image")}, 80)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if len(fw.calls) != 0 {
		t.Error("worker should not be called when decode fails")
	}
}

func TestCompress_WorkerFailures(t *testing.T) {
	data := pngBytes(t, 4, 4)

	t.Run("error response", func(t *testing.T) {
		svc := NewService(&fakeWorker{resp: worker.Response{Type: worker.MessageError, Error: "Failed to get canvas context"}}, nil)
		_, err := svc.Compress(context.Background(), Source{Type: "image/png", Data: data}, 80)
		if !errors.Is(err, ErrEncode) {
			t.Fatalf("err = %v, want ErrEncode", err)
		}
		if !strings.Contains(err.Error(), "Failed to get canvas context") {
			t.Errorf("worker message lost: %v", err)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		svc := NewService(&fakeWorker{err: worker.ErrClosed}, nil)
		if _, err := svc.Compress(context.Background(), Source{Type: "image/png", Data: data}, 80); !errors.Is(err, ErrEncode) {
			t.Fatalf("err = %v, want ErrEncode", err)
		}
	})
}

func TestCompress_RealWorker(t *testing.T) {
	w := worker.New()
	defer w.Close()
	svc := NewService(w, nil)

	src := Source{Name: "photo.png", Type: "image/png", Data: pngBytes(t, 100, 50)}
	out, err := svc.Compress(context.Background(), src, 60)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	dims, err := DecodeConfig(out)
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if dims.Width != 80 || dims.Height != 40 {
		t.Errorf("output %dx%d, want 80x40", dims.Width, dims.Height)
	}
}

func TestDecodeConfig(t *testing.T) {
	dims, err := DecodeConfig(pngBytes(t, 30, 20))
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if dims.Width != 30 || dims.Height != 20 {
		t.Errorf("dims = %dx%d, want 30x20", dims.Width, dims.Height)
	}

	if _, err := DecodeConfig([]byte{0x00, 0x01}); !errors.Is(err, ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestApplyOrientation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 20))

	tests := []struct {
		orientation int
		wantW       int
		wantH       int
	}{
		{1, 30, 20},
		{2, 30, 20},
		{3, 30, 20},
		{6, 20, 30},
		{8, 20, 30},
		{99, 30, 20},
	}

	for _, tt := range tests {
		b := applyOrientation(img, tt.orientation).Bounds()
		if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
			t.Errorf("orientation %d: %dx%d, want %dx%d", tt.orientation, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
		}
	}
}

func TestFidelity(t *testing.T) {
	data := pngBytes(t, 64, 64)

	d, err := Fidelity(data, data)
	if err != nil {
		t.Fatalf("Fidelity failed: %v", err)
	}
	if d != 0 {
		t.Errorf("identical images distance = %d, want 0", d)
	}

	if _, err := Fidelity(data, []byte("junk")); err == nil {
		t.Error("expected error for undecodable artifact")
	}
}

package worker

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"

	"imagecompressor/internal/models"
)

// PNG has no quality knob; below this quality the image is downscaled instead
const pngScaleThreshold = 80

// Encode converts a decoded bitmap into compressed bytes.
// quality is 0-100 and is clamped into that range.
func Encode(img image.Image, quality int, format models.Format) ([]byte, error) {
	if img == nil {
		return nil, errors.New("missing image data")
	}
	quality = clampQuality(quality)

	var buf bytes.Buffer
	switch format {
	case models.FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	case models.FormatWebP:
		// chai2010/webp takes the fraction scaled back to 0-100
		q := float32(fraction(quality) * 100)
		if err := webp.Encode(&buf, img, &webp.Options{Quality: q}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case models.FormatPNG:
		src := img
		b := img.Bounds()
		if quality < pngScaleThreshold {
			w, h := ScaledSize(b.Dx(), b.Dy(), quality)
			dst := image.NewNRGBA(image.Rect(0, 0, w, h))
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
			src = dst
		}
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, src); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return buf.Bytes(), nil
}

// ScaledSize returns the PNG output size for a quality below the threshold:
// scale = 0.5 + quality/100*0.5, each side rounded. At or above the threshold
// the size is unchanged.
func ScaledSize(width, height, quality int) (int, int) {
	quality = clampQuality(quality)
	if quality >= pngScaleThreshold {
		return width, height
	}
	scale := 0.5 + fraction(quality)*0.5
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// ApproxRawSize is the size of an uncompressed RGBA buffer for the bitmap.
// It is not the source file size.
func ApproxRawSize(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

func fraction(quality int) float64 {
	return float64(quality) / 100
}

func clampQuality(q int) int {
	switch {
	case q < 0:
		return 0
	case q > 100:
		return 100
	default:
		return q
	}
}

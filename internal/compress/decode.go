package compress

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagecompressor/internal/models"
)

// Decode turns source bytes into a bitmap with EXIF orientation applied
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return applyOrientation(img, readOrientation(data)), format, nil
}

// DecodeConfig reads image dimensions without decoding pixel data
func DecodeConfig(data []byte) (models.Dimensions, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.Dimensions{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	dims := models.Dimensions{Width: cfg.Width, Height: cfg.Height}
	// Orientations 5-8 swap the displayed axes
	if o := readOrientation(data); o >= 5 && o <= 8 {
		dims.Width, dims.Height = dims.Height, dims.Width
	}
	return dims, nil
}

// readOrientation returns the EXIF orientation tag, or 1 when absent
func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

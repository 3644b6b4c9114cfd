package models

import "testing"

func TestFormatForType(t *testing.T) {
	tests := []struct {
		mime string
		want Format
	}{
		{"image/png", FormatPNG},
		{"IMAGE/WEBP", FormatWebP},
		{"image/jpeg", FormatJPEG},
		{"image/gif", FormatJPEG},
		{"", FormatJPEG},
	}
	for _, tt := range tests {
		if got := FormatForType(tt.mime); got != tt.want {
			t.Errorf("FormatForType(%q) = %s, want %s", tt.mime, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" PNG "); err != nil || f != FormatPNG {
		t.Errorf("ParseFormat(PNG) = %s, %v", f, err)
	}
	if _, err := ParseFormat("avif"); err == nil || err.Error() != "unsupported format: avif" {
		t.Errorf("ParseFormat(avif) error = %v", err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{"photo.png", FormatPNG, "photo_compressed.png"},
		{"scan.gif", FormatJPEG, "scan_compressed.jpg"},
		{"archive.tar.webp", FormatWebP, "archive.tar_compressed.webp"},
		{".hidden", FormatJPEG, ".hidden_compressed.jpg"},
		{"", FormatJPEG, "image_compressed.jpg"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.name, tt.format); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

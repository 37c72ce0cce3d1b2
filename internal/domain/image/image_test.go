package image

import (
	"bytes"
	"errors"
	stdimage "image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/U201311/clip-image-search-v2/internal/domain"
)

func encoded(t *testing.T, f Format) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})

	var buf bytes.Buffer
	var err error
	switch f {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatJPG:
		err = jpeg.Encode(&buf, img, nil)
	case FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", f, err)
	}
	return buf.Bytes()
}

func TestDetect_AcceptedFormats(t *testing.T) {
	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			got, err := Detect(encoded(t, f))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != f {
				t.Errorf("Detect() = %q, want %q", got, f)
			}
		})
	}
}

func TestDetect_Rejects(t *testing.T) {
	tests := map[string][]byte{
		"empty": nil,
		"text":  []byte("hello, this is not an image"),
		"pdf":   []byte("%PDF-1.7\n1 0 obj\n"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Detect(data)
			if !errors.Is(err, domain.ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", FormatPNG, false},
		{".JPG", FormatJPG, false},
		{"jpeg", FormatJPG, false},
		{"Gif", FormatGIF, false},
		{"bmp", FormatBMP, false},
		{".JPEG", FormatJPG, false},
		{"BMP", FormatBMP, false},
		{"webp", "", true},
		{".", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func validMeta() Meta {
	return Meta{
		ScopeID:     "ws-file-1",
		Location:    "/data/png/ab/abcd.png",
		Format:      FormatPNG,
		Width:       640,
		Height:      480,
		FileSize:    1234,
		CreatedTime: time.UnixMilli(1700000000000),
	}
}

func TestNewRecord_Valid(t *testing.T) {
	rec, err := New("", validMeta(), make([]byte, 16), 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status() != StatusActive {
		t.Errorf("Status() = %d, want %d", rec.Status(), StatusActive)
	}
	withID := rec.WithID("id-1")
	if withID.ID() != "id-1" || rec.ID() != "" {
		t.Errorf("WithID must copy: got %q / %q", withID.ID(), rec.ID())
	}
	if withID.Width() != 640 || withID.Format() != FormatPNG {
		t.Errorf("unexpected metadata %+v", withID.Meta())
	}
}

func TestNewRecord_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Meta)
		feat   int
	}{
		{"zero width", func(m *Meta) { m.Width = 0 }, 16},
		{"negative height", func(m *Meta) { m.Height = -1 }, 16},
		{"unknown format", func(m *Meta) { m.Format = "tiff" }, 16},
		{"no location", func(m *Meta) { m.Location = "" }, 16},
		{"feature length", func(*Meta) {}, 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := validMeta()
			tc.mutate(&m)
			if _, err := New("", m, make([]byte, tc.feat), 16); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

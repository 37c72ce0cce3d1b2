package image

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/U201311/clip-image-search-v2/internal/domain"
)

// Format is one of the accepted image encodings, named by its canonical file extension.
type Format string

const (
	// FormatPNG is a PNG image.
	FormatPNG Format = "png"
	// FormatJPG is a JPEG image.
	FormatJPG Format = "jpg"
	// FormatGIF is a GIF image.
	FormatGIF Format = "gif"
	// FormatBMP is a Windows bitmap.
	FormatBMP Format = "bmp"
)

var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"image/png", FormatPNG},
	{"image/jpeg", FormatJPG},
	{"image/gif", FormatGIF},
	{"image/bmp", FormatBMP},
}

// Formats returns the accepted formats.
func Formats() []Format {
	return []Format{FormatPNG, FormatJPG, FormatGIF, FormatBMP}
}

// IsValid reports whether f is an accepted format.
func (f Format) IsValid() bool {
	switch f {
	case FormatPNG, FormatJPG, FormatGIF, FormatBMP:
		return true
	default:
		return false
	}
}

// ParseFormat normalizes a user supplied extension ("JPEG", ".png") into a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	if f == "jpeg" {
		f = FormatJPG
	}
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, s)
	}
	return f, nil
}

// Detect sniffs the format from content. File names are never consulted.
func Detect(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrUnsupportedFormat)
	}
	mt := mimetype.Detect(data)
	for _, m := range mimeFormats {
		if mt.Is(m.mime) {
			return m.format, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, mt.String())
}

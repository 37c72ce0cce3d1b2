// Package query holds the closed set of things a search can be driven by.
package query

import "fmt"

// MaxTextLength is the maximum accepted text query length in bytes.
const MaxTextLength = 1024

// MaxImageBytes is the maximum accepted image query size.
const MaxImageBytes = 32 << 20

// Query is either a Text or an Image. The unexported method closes the set.
type Query interface {
	isQuery()
}

// Text is a natural-language query.
type Text struct {
	phrase string
}

// Image is an example-image query carrying the raw encoded bytes.
type Image struct {
	data []byte
}

func (Text) isQuery()  {}
func (Image) isQuery() {}

// NewText validates a text query.
func NewText(phrase string) (Text, error) {
	if phrase == "" {
		return Text{}, fmt.Errorf("text query is required")
	}
	if len(phrase) > MaxTextLength {
		return Text{}, fmt.Errorf("text query too long (max %d bytes)", MaxTextLength)
	}
	return Text{phrase: phrase}, nil
}

// NewImage validates an image query.
func NewImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image query is required")
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("image query too large (max %d bytes)", MaxImageBytes)
	}
	return Image{data: data}, nil
}

// Phrase returns the query text.
func (t Text) Phrase() string { return t.phrase }

// Data returns the encoded image.
func (i Image) Data() []byte { return i.data }

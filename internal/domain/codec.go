package domain

import (
	"encoding/binary"
	"fmt"
	"math"
)

// StorageType is the float width used to persist embeddings.
type StorageType string

const (
	// StorageFloat32 stores 4 bytes per component.
	StorageFloat32 StorageType = "float32"
	// StorageFloat64 stores 8 bytes per component.
	StorageFloat64 StorageType = "float64"
)

// Width returns bytes per component, or 0 for an unknown type.
func (t StorageType) Width() int {
	switch t {
	case StorageFloat32:
		return 4
	case StorageFloat64:
		return 8
	default:
		return 0
	}
}

// Codec converts embeddings to and from their raw little-endian form.
// The encoding has no header or padding: len(bytes) == dim * width.
type Codec struct {
	storage StorageType
	dim     int
}

// NewCodec creates a codec for the given storage type and feature dimension.
func NewCodec(storage StorageType, dim int) (Codec, error) {
	if storage == "" {
		storage = StorageFloat32
	}
	if storage.Width() == 0 {
		return Codec{}, fmt.Errorf("unknown storage type %q", storage)
	}
	if dim <= 0 {
		return Codec{}, fmt.Errorf("feature dimension must be positive, got %d", dim)
	}
	return Codec{storage: storage, dim: dim}, nil
}

// Dim returns the feature dimension.
func (c Codec) Dim() int { return c.dim }

// Storage returns the storage type.
func (c Codec) Storage() StorageType { return c.storage }

// ByteLen returns the encoded size of one embedding.
func (c Codec) ByteLen() int { return c.dim * c.storage.Width() }

// Encode serializes v. Fails with ErrVectorDimMismatch when len(v) != Dim().
func (c Codec) Encode(v []float32) ([]byte, error) {
	if len(v) != c.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVectorDimMismatch, len(v), c.dim)
	}
	buf := make([]byte, c.ByteLen())
	switch c.storage {
	case StorageFloat64:
		for i, f := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(float64(f)))
		}
	default:
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
	}
	return buf, nil
}

// Decode allocates and fills a new vector from b.
func (c Codec) Decode(b []byte) ([]float32, error) {
	v := make([]float32, c.dim)
	if err := c.DecodeInto(v, b); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto fills dst (len(dst) must equal Dim()) from b without allocating.
func (c Codec) DecodeInto(dst []float32, b []byte) error {
	if len(dst) != c.dim {
		return fmt.Errorf("%w: destination has %d components, want %d", ErrVectorDimMismatch, len(dst), c.dim)
	}
	if len(b) != c.ByteLen() {
		return fmt.Errorf("%w: %d bytes, want %d", ErrVectorDimMismatch, len(b), c.ByteLen())
	}
	switch c.storage {
	case StorageFloat64:
		for i := range dst {
			dst[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
		}
	default:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	}
	return nil
}

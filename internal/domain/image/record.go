package image

import (
	"fmt"
	"time"
)

// StatusActive marks a record as visible to search. It is the only status the pipeline writes.
const StatusActive = 1

// Attribute names shared by search filters and the store schema.
const (
	AttrID          = "id"
	AttrScopeID     = "scope_id"
	AttrLocation    = "location"
	AttrWidth       = "width"
	AttrHeight      = "height"
	AttrExtension   = "extension"
	AttrFileSize    = "filesize"
	AttrCreatedTime = "created_time"
	AttrStatus      = "status"
	AttrFeature     = "feature"
)

// Meta is the descriptive part of a record.
type Meta struct {
	ScopeID     string
	Location    string
	Format      Format
	Width       int
	Height      int
	FileSize    int64
	CreatedTime time.Time
}

// Record is one stored image: metadata plus its encoded embedding (immutable value object).
type Record struct {
	id      string
	meta    Meta
	status  int
	feature []byte
}

// New validates and creates an active Record. featureLen is the expected encoded length
// (feature dimension times storage width). id may be empty until the store assigns one.
func New(id string, meta Meta, feature []byte, featureLen int) (Record, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return Record{}, fmt.Errorf("image size must be positive, got %dx%d", meta.Width, meta.Height)
	}
	if !meta.Format.IsValid() {
		return Record{}, fmt.Errorf("unsupported extension %q", meta.Format)
	}
	if meta.Location == "" {
		return Record{}, fmt.Errorf("location is required")
	}
	if len(feature) != featureLen {
		return Record{}, fmt.Errorf("feature is %d bytes, want %d", len(feature), featureLen)
	}
	return Record{id: id, meta: meta, status: StatusActive, feature: feature}, nil
}

// Reconstruct creates a Record without validation (storage hydration).
func Reconstruct(id string, meta Meta, status int, feature []byte) Record {
	return Record{id: id, meta: meta, status: status, feature: feature}
}

// WithID returns a copy carrying the store-assigned identifier.
func (r Record) WithID(id string) Record {
	r.id = id
	return r
}

// ID returns the store-assigned identifier.
func (r *Record) ID() string { return r.id }

// ScopeID returns the owning workspace file or dataset member identifier.
func (r *Record) ScopeID() string { return r.meta.ScopeID }

// Location returns the content-store location or source path.
func (r *Record) Location() string { return r.meta.Location }

// Format returns the image format.
func (r *Record) Format() Format { return r.meta.Format }

// Width returns the pixel width.
func (r *Record) Width() int { return r.meta.Width }

// Height returns the pixel height.
func (r *Record) Height() int { return r.meta.Height }

// FileSize returns the source size in bytes.
func (r *Record) FileSize() int64 { return r.meta.FileSize }

// CreatedTime returns the source modification time.
func (r *Record) CreatedTime() time.Time { return r.meta.CreatedTime }

// Status returns the record status.
func (r *Record) Status() int { return r.status }

// Feature returns the encoded embedding.
func (r *Record) Feature() []byte { return r.feature }

// Meta returns the descriptive metadata.
func (r *Record) Meta() Meta { return r.meta }

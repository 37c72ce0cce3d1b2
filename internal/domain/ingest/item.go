package ingest

import "time"

// Item is one source image handed to the pipeline.
// Either Path or Data is set; Data wins when both are present.
// An item without a Path has no location of its own, so it is always copied
// into the content store regardless of Options.CopyIntoStore, and fails when
// no content store is configured.
type Item struct {
	// ID identifies the item in outcomes. Defaults to Path.
	ID string
	// ScopeID overrides Options.ScopeID for this item.
	ScopeID string
	Path    string
	Data    []byte
	// ModTime is used for Data items; path items take the file's modification time.
	ModTime time.Time
}

// Identifier returns ID, falling back to Path.
func (i Item) Identifier() string {
	if i.ID != "" {
		return i.ID
	}
	return i.Path
}

// Options controls one ingestion run.
type Options struct {
	// ScopeID is written to every record whose item has no ScopeID of its own.
	ScopeID string
	// CopyIntoStore copies each accepted file into the content-addressed store.
	CopyIntoStore bool
}

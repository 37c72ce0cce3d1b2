package image

import (
	"github.com/U201311/clip-image-search-v2/internal/db"
	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
)

// buildIndex declares the filterable record attributes. The feature stays unindexed:
// ranking is an exact scan, not a vector index lookup.
func buildIndex(name, keyPrefix string) *db.IndexDefinition {
	return db.NewIndex(name).
		Prefix(keyPrefix).
		TagWithOpts(domimg.AttrScopeID, "|", true).
		Tag(domimg.AttrExtension).
		Numeric(domimg.AttrWidth).
		Numeric(domimg.AttrHeight).
		Numeric(domimg.AttrFileSize).
		SortableNumeric(domimg.AttrCreatedTime).
		Numeric(domimg.AttrStatus).
		MustBuild()
}

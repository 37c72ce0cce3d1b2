package image

import (
	"strconv"
	"time"

	domimg "github.com/U201311/clip-image-search-v2/internal/domain/image"
)

var loadFields = []string{
	domimg.AttrID,
	domimg.AttrScopeID,
	domimg.AttrLocation,
	domimg.AttrWidth,
	domimg.AttrHeight,
	domimg.AttrExtension,
	domimg.AttrFileSize,
	domimg.AttrCreatedTime,
	domimg.AttrStatus,
	domimg.AttrFeature,
}

// buildHashFields converts a record into a flat map for HSET. The feature is stored as raw bytes.
func buildHashFields(id string, rec *domimg.Record) map[string]string {
	return map[string]string{
		domimg.AttrID:          id,
		domimg.AttrScopeID:     rec.ScopeID(),
		domimg.AttrLocation:    rec.Location(),
		domimg.AttrWidth:       strconv.Itoa(rec.Width()),
		domimg.AttrHeight:      strconv.Itoa(rec.Height()),
		domimg.AttrExtension:   string(rec.Format()),
		domimg.AttrFileSize:    strconv.FormatInt(rec.FileSize(), 10),
		domimg.AttrCreatedTime: strconv.FormatInt(rec.CreatedTime().UnixMilli(), 10),
		domimg.AttrStatus:      strconv.Itoa(rec.Status()),
		domimg.AttrFeature:     string(rec.Feature()),
	}
}

// parseHashFields hydrates a record from a hash. Malformed numbers decode as zero;
// the feature is passed through untouched and validated by its reader.
func parseHashFields(m map[string]string) domimg.Record {
	width, _ := strconv.Atoi(m[domimg.AttrWidth])
	height, _ := strconv.Atoi(m[domimg.AttrHeight])
	size, _ := strconv.ParseInt(m[domimg.AttrFileSize], 10, 64)
	status, _ := strconv.Atoi(m[domimg.AttrStatus])

	var created time.Time
	if ms, err := strconv.ParseInt(m[domimg.AttrCreatedTime], 10, 64); err == nil {
		created = time.UnixMilli(ms).UTC()
	}

	var feature []byte
	if raw, ok := m[domimg.AttrFeature]; ok {
		feature = []byte(raw)
	}

	return domimg.Reconstruct(m[domimg.AttrID], domimg.Meta{
		ScopeID:     m[domimg.AttrScopeID],
		Location:    m[domimg.AttrLocation],
		Format:      domimg.Format(m[domimg.AttrExtension]),
		Width:       width,
		Height:      height,
		FileSize:    size,
		CreatedTime: created,
	}, status, feature)
}

package result

import "github.com/U201311/clip-image-search-v2/internal/domain/image"

// Match is a single ranked image.
type Match struct {
	id       string
	scopeID  string
	location string
	width    int
	height   int
	format   image.Format
	score    float64
}

// New creates a match from a stored record and its cosine similarity.
func New(rec *image.Record, score float64) Match {
	return Match{
		id:       rec.ID(),
		scopeID:  rec.ScopeID(),
		location: rec.Location(),
		width:    rec.Width(),
		height:   rec.Height(),
		format:   rec.Format(),
		score:    score,
	}
}

// ID returns the store-assigned record identifier.
func (m *Match) ID() string { return m.id }

// ScopeID returns the workspace file identifier of the record.
func (m *Match) ScopeID() string { return m.scopeID }

// Location returns where the image bytes live.
func (m *Match) Location() string { return m.location }

// Width returns the pixel width.
func (m *Match) Width() int { return m.width }

// Height returns the pixel height.
func (m *Match) Height() int { return m.height }

// Format returns the image format.
func (m *Match) Format() image.Format { return m.format }

// Score returns the cosine similarity in [-1, 1].
func (m *Match) Score() float64 { return m.score }

// Ranking is the output of one similarity scan, best match first.
type Ranking struct {
	Matches []Match
	// Partial is set when the scan stopped early on a store fault.
	Partial bool
	// Scanned counts rows compared against the query.
	Scanned int
	// Excluded counts rows dropped for zero norm or an undecodable feature.
	Excluded int
}

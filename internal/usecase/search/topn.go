package search

import (
	"slices"

	"github.com/U201311/clip-image-search-v2/internal/domain/search/result"
)

type candidate struct {
	match result.Match
	score float32
	seq   int
}

// worse orders candidates for eviction: lower score first, later arrival on ties.
func worse(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq > b.seq
}

// topN is a bounded min-heap keeping the best n candidates seen so far.
// The root is always the weakest kept candidate.
type topN struct {
	n     int
	items []candidate
}

func newTopN(n int) *topN {
	return &topN{n: n, items: make([]candidate, 0, min(n, 1024))}
}

// admits reports whether a candidate with this score and sequence would be kept.
func (h *topN) admits(score float32, seq int) bool {
	if len(h.items) < h.n {
		return true
	}
	return worse(h.items[0], candidate{score: score, seq: seq})
}

func (h *topN) push(c candidate) {
	if len(h.items) < h.n {
		h.items = append(h.items, c)
		h.siftUp(len(h.items) - 1)
		return
	}
	if !worse(h.items[0], c) {
		return
	}
	h.items[0] = c
	h.siftDown(0)
}

func (h *topN) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !worse(h.items[i], h.items[p]) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *topN) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && worse(h.items[r], h.items[l]) {
			best = r
		}
		if !worse(h.items[best], h.items[i]) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

// sorted returns the kept matches, best first.
func (h *topN) sorted() []result.Match {
	items := slices.Clone(h.items)
	slices.SortFunc(items, func(a, b candidate) int {
		switch {
		case worse(b, a):
			return -1
		case worse(a, b):
			return 1
		default:
			return 0
		}
	})
	out := make([]result.Match, len(items))
	for i := range items {
		out[i] = items[i].match
	}
	return out
}

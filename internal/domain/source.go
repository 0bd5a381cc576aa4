package domain

import "sort"

// SourceCandidate is one result returned by the external source
// aggregator: a magnet link with enough metadata to rank it.
type SourceCandidate struct {
	Title    string `json:"title"`
	Seeds    int    `json:"seeds"`
	URL      string `json:"url"`
	Quality  string `json:"quality,omitempty"`
	Size     string `json:"size,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Valid reports whether the candidate carries a resolvable magnet link.
func (c SourceCandidate) Valid() bool {
	if c.Title == "" || c.URL == "" {
		return false
	}
	_, _, err := ParseMagnet(c.URL)
	return err == nil
}

const maxSourceResults = 10

// FilterSourceCandidates drops invalid and zero-seed candidates, orders
// the remainder by seed count descending and caps the list at ten
// entries. The input slice is not modified.
func FilterSourceCandidates(candidates []SourceCandidate) []SourceCandidate {
	filtered := make([]SourceCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Seeds <= 0 || !c.Valid() {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Seeds > filtered[j].Seeds
	})
	if len(filtered) > maxSourceResults {
		filtered = filtered[:maxSourceResults]
	}
	return filtered
}

package gallery

import "sort"

// Match is the outcome of scoring a probe against the gallery.
// An empty Identity means no identity scored above the threshold.
type Match struct {
	Identity string
	Score    float64
}

// Matched reports whether an identity was found.
func (m Match) Matched() bool {
	return m.Identity != ""
}

// Snapshot is an immutable view of every identity's representations.
// The gallery swaps in a new snapshot on each mutation and never edits an
// existing one, so a snapshot may be read without holding any lock.
type Snapshot struct {
	reps map[string][][]float32
	keys []string
}

// NewSnapshot builds a snapshot from representation vectors keyed by identity.
// The map is taken over by the snapshot and must not be modified afterwards.
func NewSnapshot(reps map[string][][]float32) *Snapshot {
	keys := make([]string, 0, len(reps))
	for k, v := range reps {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &Snapshot{reps: reps, keys: keys}
}

// Identities returns identities with at least one representation, sorted.
func (s *Snapshot) Identities() []string {
	return s.keys
}

// Representations returns the representation vectors of one identity.
func (s *Snapshot) Representations(identity string) [][]float32 {
	return s.reps[identity]
}

// Len returns the number of identities that can be matched.
func (s *Snapshot) Len() int {
	return len(s.keys)
}

// Identify scores probe against every representation of every identity.
// The best score starts at threshold and an identity only takes over with a
// strictly higher similarity, so a similarity equal to the threshold never
// matches. Identities are visited in sorted order, so ties keep the
// lexicographically smallest identity.
func (s *Snapshot) Identify(probe []float32, threshold float64) Match {
	best := Match{Score: threshold}
	for _, id := range s.keys {
		for _, rep := range s.reps[id] {
			if sim := CosineSimilarity(probe, rep); sim > best.Score {
				best = Match{Identity: id, Score: sim}
			}
		}
	}
	if !best.Matched() {
		return Match{}
	}
	return best
}

// Package facematch resolves loosely typed identity names against the
// enrolled identities of a gallery.
package facematch

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeIdentity normalizes an identity name for comparison: lowercase, no
// diacritics, dashes and underscores read as spaces, runs of spaces collapsed.
func NormalizeIdentity(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// MatchIdentity returns the identities query refers to. An exact match is
// returned alone; otherwise every identity whose normalized form equals the
// normalized query is returned, sorted.
func MatchIdentity(identities []string, query string) []string {
	for _, id := range identities {
		if id == query {
			return []string{id}
		}
	}

	want := NormalizeIdentity(query)
	if want == "" {
		return nil
	}
	var out []string
	for _, id := range identities {
		if NormalizeIdentity(id) == want {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

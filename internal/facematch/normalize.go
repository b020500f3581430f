package facematch

import (
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

// NormalizePersonName folds an identity name for comparison: no diacritics,
// lowercase, dashes and underscores become spaces, runs of spaces collapse.
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// SamePerson reports whether two distinct identity names most likely refer to the same person,
// e.g. "jan_novak" and "Jan Novák".
func SamePerson(a, b string) bool {
	return a != b && NormalizePersonName(a) == NormalizePersonName(b)
}

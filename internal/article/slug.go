package article

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]`)
)

// combining diacritical marks block, U+0300..U+036F
var isDiacritic = runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
})

func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(isDiacritic))
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Slug builds the URL slug for an article title: "Šport a zdravie!" becomes
// "sport-a-zdravie". Titles with no usable characters map to "untitled".
func Slug(title string) string {
	s := nonSlugRun.ReplaceAllString(foldASCII(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// NormalizeCategory folds a backend category to the slug form used in
// /category/{slug} routes, e.g. "Technológie" -> "technologie".
func NormalizeCategory(v string) string {
	return nonAlnum.ReplaceAllString(foldASCII(v), "")
}

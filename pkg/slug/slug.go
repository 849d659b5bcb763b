package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugRegexp = regexp.MustCompile(`[^a-z0-9]+`)

var symbols = strings.NewReplacer(
	"&", " and ",
	"%", " percent ",
	"+", " plus ",
)

// foldDiacritics strips combining marks so "crème" becomes "creme".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Generate creates a URL-friendly slug from a product or campaign name.
//
//   - "Vitamin C Serum 10%" → "vitamin-c-serum-10-percent"
//   - "Aloe & Cucumber Gel" → "aloe-and-cucumber-gel"
//   - "Crème Brûlée Lip Balm" → "creme-brulee-lip-balm"
func Generate(name string) string {
	s := symbols.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = slugRegexp.ReplaceAllString(foldDiacritics(s), "-")
	return strings.Trim(s, "-")
}

// WithSuffix appends a numeric suffix used to resolve slug collisions.
// A suffix below 2 returns base unchanged.
func WithSuffix(base string, n int) string {
	if n < 2 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketedRe    = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	leadingTrackRe = regexp.MustCompile(`^\d{1,3}\s*[-._]?\s+`)

	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize prepares a string for similarity comparison: lowercase, strip
// diacritics, drop bracketed qualifiers ("[remastered]", "(live)"), strip a
// leading track number, and collapse whitespace.
func Normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if stripped, _, err := transform.String(stripMarks, value); err == nil {
		value = stripped
	}
	value = bracketedRe.ReplaceAllString(value, " ")
	value = leadingTrackRe.ReplaceAllString(value, "")
	return strings.Join(strings.Fields(value), " ")
}

// CleanTag trims a tag value and collapses internal whitespace. Returns ""
// for values that are only whitespace.
func CleanTag(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// SortTokens returns the normalized string with its words sorted, which makes
// similarity robust against word reordering ("Sun Comes Here" vs "Here Comes
// the Sun").
func SortTokens(value string) string {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return value
	}
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j] < fields[j-1]; j-- {
			fields[j], fields[j-1] = fields[j-1], fields[j]
		}
	}
	return strings.Join(fields, " ")
}

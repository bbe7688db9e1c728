package string

import (
	"slices"
	"strings"
	"unicode"
)

const BYTE_ORDER_MARK = "\ufeff"

// CleanAlphaNumerics drops leading & trailing characters that are not letters, digits or kept,
// and collapses each inner run of such characters into a single sep.
// It returns an empty string when nothing is kept.
func CleanAlphaNumerics(s string, sep rune, keep ...rune) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return !isKept(r, keep)
	})
	return strings.Join(parts, string(sep))
}

// CleanHeader normalizes one CSV header name: the byte order mark, surrounding
// punctuation & whitespace are stripped, inner separators become '_' and the name is lower cased.
// "-" and "_" are kept as is.
func CleanHeader(h string) string {
	h = strings.TrimPrefix(h, BYTE_ORDER_MARK)
	return strings.ToLower(CleanAlphaNumerics(h, '_', '-', '_'))
}

// CleanHeaders normalizes header names in place.
func CleanHeaders(headers []string) []string {
	for i, h := range headers {
		headers[i] = CleanHeader(h)
	}
	return headers
}

func isKept(r rune, keep []rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || slices.Contains(keep, r)
}

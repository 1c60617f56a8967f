package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"and": {},
	"or":  {},
	",":   {},
}

// Tokenize splits an interpreted slot value into search keywords. Text is NFKC-normalised,
// split on whitespace and commas, and the connectives "and" and "or" are dropped.
func Tokenize(value string) []string {
	value = norm.NFKC.String(value)
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})

	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopWords[strings.ToLower(f)]; skip {
			continue
		}
		keywords = append(keywords, f)
	}
	return keywords
}

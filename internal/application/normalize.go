package application

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// rewrite replaces every occurrence of the word sequence from with to.
type rewrite struct {
	from []string
	to   []string
}

// Applied in order; later rewrites see the output of earlier ones.
var rewrites = []rewrite{
	{from: []string{"switch", "on"}, to: []string{"turn", "on"}},
	{from: []string{"switch", "off"}, to: []string{"turn", "off"}},
	{from: []string{"please"}},
	{from: []string{"the"}},
	{from: []string{"a"}},
	{from: []string{"an"}},
	{from: []string{"my"}},
}

// Normalize canonicalizes an utterance. The result is the plan cache key
// and the fast-path input, so it must not depend on anything but text.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lowered := cases.Lower(language.Und).String(text)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		switch r {
		case '%', '.', '-':
			return r
		}
		return ' '
	}, lowered)

	words := strings.Fields(stripped)
	// Deleting a filler can bring a new "switch on" together, so run the
	// list until nothing changes.
	for {
		next := words
		for _, rw := range rewrites {
			next = applyRewrite(next, rw)
		}
		if slices.Equal(next, words) {
			break
		}
		words = next
	}

	return strings.Join(words, " ")
}

func applyRewrite(words []string, rw rewrite) []string {
	out := make([]string, 0, len(words))
	for i := 0; i < len(words); {
		if hasPrefix(words[i:], rw.from) {
			out = append(out, rw.to...)
			i += len(rw.from)
			continue
		}
		out = append(out, words[i])
		i++
	}
	return out
}

func hasPrefix(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	return slices.Equal(words[:len(prefix)], prefix)
}

// Tokenize splits text into lower-case word tokens, breaking on anything
// that is not a letter or digit.
func Tokenize(text string) []string {
	lowered := cases.Lower(language.Und).String(text)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Package segment splits reply text into bounded-length chunks at natural
// language boundaries so each chunk can be synthesized on its own.
//
// Split is pure and deterministic. Boundaries are tried in order of
// preference: sentence ends (. ! ?), then clause marks (, ; :), then single
// spaces. A word is never cut, so the only chunk that may exceed the limit
// is a single word longer than the limit.
package segment

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the chunk limit used when none is configured.
const DefaultMaxLength = 250

const (
	sentenceEnds = ".!?"
	clauseMarks  = ",;:"
)

// Split normalizes whitespace in text and returns its chunks in order.
// Lengths are counted in runes. Empty input yields no chunks; maxLen < 1
// is treated as DefaultMaxLength.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		maxLen = DefaultMaxLength
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	normalized := strings.Join(words, " ")
	if runeLen(normalized) <= maxLen {
		return []string{normalized}
	}

	var units []string
	for _, sentence := range group(words, sentenceEnds) {
		if runeLen(sentence) <= maxLen {
			units = append(units, sentence)
			continue
		}
		for _, clause := range group(strings.Fields(sentence), clauseMarks) {
			if runeLen(clause) <= maxLen {
				units = append(units, clause)
				continue
			}
			units = append(units, strings.Fields(clause)...)
		}
	}
	return pack(units, maxLen)
}

// group joins consecutive words into runs that end with a word whose last
// rune is one of marks. Trailing words without a mark form the last run.
func group(words []string, marks string) []string {
	var (
		out []string
		cur []string
	)
	for _, w := range words {
		cur = append(cur, w)
		r, _ := utf8.DecodeLastRuneInString(w)
		if strings.ContainsRune(marks, r) {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// pack greedily accumulates units, joined by single spaces, while the
// running chunk stays within maxLen.
func pack(units []string, maxLen int) []string {
	var (
		out     []string
		running string
		n       int
	)
	for _, u := range units {
		ul := runeLen(u)
		switch {
		case running == "":
			running, n = u, ul
		case n+1+ul <= maxLen:
			running += " " + u
			n += 1 + ul
		default:
			out = append(out, running)
			running, n = u, ul
		}
	}
	if running != "" {
		out = append(out, running)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

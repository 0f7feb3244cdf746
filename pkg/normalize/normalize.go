/*
Package normalize canonicalizes free-text street and place names.

A normalized name is a sequence of lowercase ASCII alphanumeric tokens joined
by single spaces. Spelled-out numbers from the numeral table are replaced by
their digits, and known abbreviations can optionally be expanded to their full
form. Replacements only ever match whole tokens.

	n := normalize.New(normalize.DefaultTables(), normalize.Options{})
	n.Normalize("Avenida Dieciocho de Julio!") // "avenida 18 de julio"

Normalize is idempotent for any table set accepted by Tables.Validate.
*/
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options toggles the optional steps of the pipeline.
type Options struct {
	// ExpandSynonyms replaces abbreviations with their canonical form.
	ExpandSynonyms bool
	// FoldAccents strips combining marks before filtering, so "Millán"
	// becomes "millan" instead of "mill n".
	FoldAccents bool
}

// Normalizer is safe for concurrent use; it is never mutated after New.
type Normalizer struct {
	opts     Options
	toDigit  map[string]string
	toWord   map[string]string
	synonyms map[string]string
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// New builds a normalizer over the given tables.
func New(t Tables, opts Options) *Normalizer {
	syn := make(map[string]string, len(t.Synonyms))
	for k, v := range t.Synonyms {
		syn[k] = v
	}
	return &Normalizer{
		opts:     opts,
		toDigit:  t.wordsToDigits(),
		toWord:   t.digitsToWords(),
		synonyms: syn,
	}
}

// Normalize returns the canonical form of raw. It never fails; empty or
// symbol-only input yields "".
func (n *Normalizer) Normalize(raw string) string {
	if n.opts.FoldAccents {
		if folded, _, err := transform.String(stripMarks, raw); err == nil {
			raw = folded
		}
	}
	s := canonical(raw)
	if s == "" {
		return s
	}
	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if d, ok := n.toDigit[tok]; ok {
			tokens[i] = d
		}
	}
	if n.opts.ExpandSynonyms {
		for i, tok := range tokens {
			if full, ok := n.synonyms[tok]; ok {
				tokens[i] = full
			}
		}
	}
	return strings.Join(tokens, " ")
}

// Inverse rewrites digit tokens back into number words. Normalize never
// calls it.
func (n *Normalizer) Inverse(name string) string {
	if name == "" {
		return name
	}
	tokens := strings.Fields(name)
	for i, tok := range tokens {
		if w, ok := n.toWord[tok]; ok {
			tokens[i] = w
		}
	}
	return strings.Join(tokens, " ")
}

// canonical lowercases s, maps everything outside [a-z0-9 ] to a space and
// collapses whitespace.
func canonical(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

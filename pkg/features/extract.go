// Package features turns a pair of names into the numeric vector the
// classifiers consume.
package features

import (
	"math"

	"github.com/agnivade/levenshtein"

	"github.com/bastiangx/streetmatch/pkg/normalize"
)

// NumericFeatures is the number of columns appended after the bag of words:
// edit distance and similarity ratio.
const NumericFeatures = 2

// Pair is the result of extracting features from two raw names.
type Pair struct {
	Name1      string
	Name2      string
	Distance   int
	Similarity float64
	// Cosine is the token-count cosine of the two names. It is reported for
	// the cosine decision policy and is not part of Vector.
	Cosine float64
	Vector []float64
}

// Extractor is a pure function of its inputs and the immutable vocabulary.
type Extractor struct {
	norm  *normalize.Normalizer
	vocab *Vocabulary
}

// NewExtractor binds a normalizer to a fitted vocabulary.
func NewExtractor(n *normalize.Normalizer, v *Vocabulary) *Extractor {
	return &Extractor{norm: n, vocab: v}
}

// Dim is the length of every vector produced by Extract.
func (e *Extractor) Dim() int {
	return e.vocab.Len() + NumericFeatures
}

// Vocabulary returns the vocabulary the extractor was built with.
func (e *Extractor) Vocabulary() *Vocabulary {
	return e.vocab
}

// Normalizer returns the normalizer the extractor was built with.
func (e *Extractor) Normalizer() *normalize.Normalizer {
	return e.norm
}

// Extract normalizes both names and builds their feature vector.
func (e *Extractor) Extract(name1, name2 string) Pair {
	n1 := e.norm.Normalize(name1)
	n2 := e.norm.Normalize(name2)
	d, s := Similarity(n1, n2)

	vec := make([]float64, e.Dim())
	e.vocab.Counts(Joined(n1, n2), vec[:e.vocab.Len()])
	vec[e.vocab.Len()] = float64(d)
	vec[e.vocab.Len()+1] = s

	return Pair{
		Name1:      n1,
		Name2:      n2,
		Distance:   d,
		Similarity: s,
		Cosine:     Cosine(n1, n2, e.vocab.opts.MinTokenLen),
		Vector:     vec,
	}
}

// Joined is the document the bag of words is computed over.
func Joined(n1, n2 string) string {
	switch {
	case n1 == "":
		return n2
	case n2 == "":
		return n1
	}
	return n1 + " " + n2
}

// EditDistance is the unit-cost Levenshtein distance.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Similarity returns the edit distance and the ratio 1 - d/max(len(a), len(b)),
// clamped to [0,1]. Two empty strings are identical.
func Similarity(a, b string) (int, float64) {
	if a == "" && b == "" {
		return 0, 1
	}
	d := EditDistance(a, b)
	longest := max(len([]rune(a)), len([]rune(b)))
	s := 1 - float64(d)/float64(longest)
	return d, math.Max(0, math.Min(1, s))
}

// Cosine compares the token counts of a and b. When neither side has a
// token of at least minLen characters the names are compared verbatim.
func Cosine(a, b string, minLen int) float64 {
	ta, tb := Tokens(a, minLen), Tokens(b, minLen)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == 0 && len(tb) == 0 && a == b {
			return 1
		}
		return 0
	}
	ca := make(map[string]float64, len(ta))
	for _, t := range ta {
		ca[t]++
	}
	cb := make(map[string]float64, len(tb))
	for _, t := range tb {
		cb[t]++
	}
	var dot, na, nb float64
	for t, x := range ca {
		na += x * x
		dot += x * cb[t]
	}
	for _, y := range cb {
		nb += y * y
	}
	// identical bags, exactly 1 rather than a rounding of it
	if dot == na && na == nb {
		return 1
	}
	return math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

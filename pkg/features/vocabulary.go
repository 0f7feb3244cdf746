package features

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// DefaultMinTokenLen drops single character tokens from the bag of words.
const DefaultMinTokenLen = 2

// VocabOptions controls how documents are split into terms.
type VocabOptions struct {
	// NGramMax is the longest token n-gram indexed. Values below 1 mean 1.
	NGramMax int
	// MinTokenLen is the shortest token kept. Values below 1 mean DefaultMinTokenLen.
	MinTokenLen int
}

func (o VocabOptions) withDefaults() VocabOptions {
	if o.NGramMax < 1 {
		o.NGramMax = 1
	}
	if o.MinTokenLen < 1 {
		o.MinTokenLen = DefaultMinTokenLen
	}
	return o
}

// Vocabulary maps terms to dense column indexes in lexicographic order.
// It is never modified after FitVocabulary or RestoreVocabulary, so a single
// instance can be shared across goroutines.
type Vocabulary struct {
	terms []string
	index *patricia.Trie
	opts  VocabOptions
}

// VocabularyState is the persisted form of a Vocabulary.
type VocabularyState struct {
	Terms       []string `msgpack:"terms"`
	NGramMax    int      `msgpack:"ngram_max"`
	MinTokenLen int      `msgpack:"min_token_len"`
}

// FitVocabulary collects every term found in docs. The docs are expected to
// be normalized already.
func FitVocabulary(docs []string, opts VocabOptions) *Vocabulary {
	opts = opts.withDefaults()
	seen := make(map[string]struct{})
	for _, doc := range docs {
		for _, term := range terms(doc, opts) {
			seen[term] = struct{}{}
		}
	}
	list := make([]string, 0, len(seen))
	for term := range seen {
		list = append(list, term)
	}
	sort.Strings(list)
	return buildVocabulary(list, opts)
}

// RestoreVocabulary rebuilds a vocabulary from its persisted state.
func RestoreVocabulary(state VocabularyState) (*Vocabulary, error) {
	if len(state.Terms) == 0 {
		return nil, errors.New("vocabulary: no terms")
	}
	for i := 1; i < len(state.Terms); i++ {
		if state.Terms[i-1] >= state.Terms[i] {
			return nil, fmt.Errorf("vocabulary: terms not strictly ordered at %d (%q, %q)", i, state.Terms[i-1], state.Terms[i])
		}
	}
	list := make([]string, len(state.Terms))
	copy(list, state.Terms)
	opts := VocabOptions{NGramMax: state.NGramMax, MinTokenLen: state.MinTokenLen}.withDefaults()
	return buildVocabulary(list, opts), nil
}

func buildVocabulary(list []string, opts VocabOptions) *Vocabulary {
	trie := patricia.NewTrie()
	for i, term := range list {
		trie.Insert(patricia.Prefix(term), i)
	}
	return &Vocabulary{terms: list, index: trie, opts: opts}
}

// State returns the persisted form.
func (v *Vocabulary) State() VocabularyState {
	list := make([]string, len(v.terms))
	copy(list, v.terms)
	return VocabularyState{
		Terms:       list,
		NGramMax:    v.opts.NGramMax,
		MinTokenLen: v.opts.MinTokenLen,
	}
}

// Len is the number of columns in a bag-of-words vector.
func (v *Vocabulary) Len() int {
	return len(v.terms)
}

// Terms returns a copy of the terms in column order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Index returns the column of term.
func (v *Vocabulary) Index(term string) (int, bool) {
	item := v.index.Get(patricia.Prefix(term))
	if item == nil {
		return 0, false
	}
	return item.(int), true
}

// WithPrefix lists the indexed terms starting with prefix, in column order.
func (v *Vocabulary) WithPrefix(prefix string) []string {
	var out []string
	_ = v.index.VisitSubtree(patricia.Prefix(prefix), func(p patricia.Prefix, item patricia.Item) error {
		out = append(out, string(p))
		return nil
	})
	sort.Strings(out)
	return out
}

// Counts fills dst with the term counts of doc. Out of vocabulary terms are
// ignored. dst must have length Len().
func (v *Vocabulary) Counts(doc string, dst []float64) {
	for _, term := range terms(doc, v.opts) {
		if i, ok := v.Index(term); ok {
			dst[i]++
		}
	}
}

// Tokens splits a normalized string and drops tokens shorter than minLen.
func Tokens(doc string, minLen int) []string {
	if minLen < 1 {
		minLen = DefaultMinTokenLen
	}
	fields := strings.Fields(doc)
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= minLen {
			out = append(out, f)
		}
	}
	return out
}

func terms(doc string, opts VocabOptions) []string {
	tokens := Tokens(doc, opts.MinTokenLen)
	if opts.NGramMax <= 1 {
		return tokens
	}
	out := make([]string, 0, len(tokens)*opts.NGramMax)
	out = append(out, tokens...)
	for n := 2; n <= opts.NGramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

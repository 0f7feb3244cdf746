package normalize

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed tables.toml
var defaultTables string

// Tables holds the lookup data used by the normalizer.
type Tables struct {
	// Numerals maps a spelled-out number word to its value.
	Numerals map[string]int `toml:"numerals"`
	// Synonyms maps an abbreviation token to its canonical form.
	Synonyms map[string]string `toml:"synonyms"`
}

// DefaultTables returns the tables shipped with the binary.
func DefaultTables() Tables {
	t, err := ParseTables(defaultTables)
	if err != nil {
		// embedded data is covered by tests
		panic(fmt.Sprintf("normalize: embedded tables: %v", err))
	}
	return t
}

// ParseTables decodes TOML table data and validates it.
func ParseTables(data string) (Tables, error) {
	var t Tables
	if _, err := toml.Decode(data, &t); err != nil {
		return Tables{}, fmt.Errorf("decode tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// LoadTables reads tables from a TOML file. An empty path yields the defaults.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	var t Tables
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return Tables{}, fmt.Errorf("load tables %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, fmt.Errorf("tables %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that applying the tables keeps normalization idempotent.
// Every key and value must be a normalized string, numeral values must be
// unique positive integers, and no synonym may expand into a token that the
// numeral or synonym pass would rewrite again.
func (t Tables) Validate() error {
	seen := make(map[int]string, len(t.Numerals))
	for word, n := range t.Numerals {
		if !isToken(word) {
			return fmt.Errorf("numeral %q is not a single normalized token", word)
		}
		if isDigits(word) {
			return fmt.Errorf("numeral word %q must not be digits", word)
		}
		if n <= 0 {
			return fmt.Errorf("numeral %q has non-positive value %d", word, n)
		}
		if prev, dup := seen[n]; dup {
			return fmt.Errorf("numeral value %d used by both %q and %q", n, prev, word)
		}
		seen[n] = word
	}
	for abbr, full := range t.Synonyms {
		if !isToken(abbr) {
			return fmt.Errorf("synonym key %q is not a single normalized token", abbr)
		}
		if full == "" || canonical(full) != full {
			return fmt.Errorf("synonym %q expands to non-normalized %q", abbr, full)
		}
		for _, tok := range strings.Split(full, " ") {
			if _, ok := t.Synonyms[tok]; ok {
				return fmt.Errorf("synonym %q expands to %q which is itself a synonym key", abbr, tok)
			}
			if _, ok := t.Numerals[tok]; ok {
				return fmt.Errorf("synonym %q expands to number word %q", abbr, tok)
			}
		}
	}
	return nil
}

func (t Tables) digitsToWords() map[string]string {
	out := make(map[string]string, len(t.Numerals))
	for w, n := range t.Numerals {
		out[strconv.Itoa(n)] = w
	}
	return out
}

func (t Tables) wordsToDigits() map[string]string {
	out := make(map[string]string, len(t.Numerals))
	for w, n := range t.Numerals {
		out[w] = strconv.Itoa(n)
	}
	return out
}

func isToken(s string) bool {
	return s != "" && !strings.Contains(s, " ") && canonical(s) == s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

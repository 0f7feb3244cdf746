// Package training fits a vocabulary and classifier from labeled pairs and
// reports how well the result does on a held-out split.
package training

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/bastiangx/streetmatch/pkg/model"
)

//go:embed seed.toml
var seedData string

// ErrEmptyDataset is returned when a dataset holds no pairs.
var ErrEmptyDataset = errors.New("dataset has no pairs")

// Example is one labeled pair of raw names.
type Example struct {
	Name1 string      `toml:"name1"`
	Name2 string      `toml:"name2"`
	Label model.Label `toml:"label"`
}

type dataset struct {
	Pairs []Example `toml:"pair"`
}

// ParseSeed decodes a TOML dataset of [[pair]] tables.
func ParseSeed(data string) ([]Example, error) {
	var ds dataset
	if _, err := toml.Decode(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if len(ds.Pairs) == 0 {
		return nil, ErrEmptyDataset
	}
	for i, ex := range ds.Pairs {
		if !ex.Label.Valid() {
			return nil, fmt.Errorf("pair %d (%q, %q): %w", i+1, ex.Name1, ex.Name2, model.ErrInvalidLabel)
		}
	}
	return ds.Pairs, nil
}

// LoadSeed reads a dataset from path, or the embedded seed set when path is
// empty.
func LoadSeed(path string) ([]Example, error) {
	if path == "" {
		return ParseSeed(seedData)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ParseSeed(string(data))
}

// Split shuffles examples with a generator seeded by seed and holds out
// round(frac*n) of them, at least one when n >= 2. An example is only moved
// to the held-out side while its label still appears elsewhere in the
// training side, so small sets keep every class in training when possible.
func Split(examples []Example, frac float64, seed uint64) (train, eval []Example) {
	n := len(examples)
	if n < 2 || frac <= 0 {
		return append([]Example(nil), examples...), nil
	}
	want := int(frac*float64(n) + 0.5)
	want = min(max(want, 1), n-1)

	rng := rand.New(rand.NewPCG(seed, uint64(n)))
	perm := rng.Perm(n)

	var remaining [model.NumClasses]int
	for _, ex := range examples {
		remaining[ex.Label]++
	}
	held := make([]bool, n)
	taken := 0
	for i := n - 1; i >= 0 && taken < want; i-- {
		ex := examples[perm[i]]
		if remaining[ex.Label] <= 1 {
			continue
		}
		remaining[ex.Label]--
		held[i] = true
		taken++
	}
	for i, p := range perm {
		if held[i] {
			eval = append(eval, examples[p])
		} else {
			train = append(train, examples[p])
		}
	}
	return train, eval
}

package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
	"github.com/bastiangx/streetmatch/pkg/normalize"
)

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	require.Len(t, seed, 17)
	assert.Equal(t, Example{Name1: "dieciocho de julio", Name2: "18 de julio", Label: model.Exact}, seed[0])

	var counts [model.NumClasses]int
	for _, ex := range seed {
		counts[ex.Label]++
	}
	assert.Equal(t, [model.NumClasses]int{4, 5, 8}, counts)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[pair]]\nname1 = \"a\"\nname2 = \"b\"\nlabel = 3\n"), 0o644))
	_, err := LoadSeed(path)
	assert.ErrorIs(t, err, model.ErrInvalidLabel)

	require.NoError(t, os.WriteFile(path, []byte("# nothing\n"), 0o644))
	_, err = LoadSeed(path)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)

	train, eval := Split(seed, 0.2, 42)
	assert.Len(t, eval, 3)
	assert.Len(t, train, 14)

	seen := map[model.Label]bool{}
	for _, ex := range train {
		seen[ex.Label] = true
	}
	assert.Len(t, seen, model.NumClasses, "every label stays in training")

	train2, eval2 := Split(seed, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, eval, eval2)
}

func TestSplitSmall(t *testing.T) {
	one := []Example{{Name1: "a", Name2: "b", Label: model.Exact}}
	train, eval := Split(one, 0.2, 1)
	assert.Len(t, train, 1)
	assert.Empty(t, eval)

	two := []Example{
		{Name1: "a", Name2: "a", Label: model.Exact},
		{Name1: "a", Name2: "zz", Label: model.Different},
	}
	train, eval = Split(two, 0.2, 1)
	assert.Len(t, train, 2, "single-member labels are never held out")
	assert.Empty(t, eval)
}

func TestTrain(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	norm := normalize.New(normalize.DefaultTables(), normalize.Options{})

	for _, kind := range []string{model.KindLinear, model.KindForest} {
		t.Run(kind, func(t *testing.T) {
			opts := Options{Kind: kind, Model: model.DefaultOptions()}
			opts.Model.Trees = 25
			res, err := Train(seed, norm, opts)
			require.NoError(t, err)

			assert.Equal(t, kind, res.Classifier.Kind())
			assert.Equal(t, res.Extractor.Dim(), res.Classifier.Dim())
			assert.Equal(t, 14, res.Train.Total)
			assert.Equal(t, 3, res.Eval.Total)
			assert.GreaterOrEqual(t, res.Train.Accuracy, 0.5)

			again, err := Train(seed, norm, opts)
			require.NoError(t, err)
			p := res.Extractor.Extract("Main Rd", "Main Road")
			a, err := res.Classifier.Scores(p.Vector)
			require.NoError(t, err)
			b, err := again.Classifier.Scores(p.Vector)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestTrainErrors(t *testing.T) {
	norm := normalize.New(normalize.DefaultTables(), normalize.Options{})
	_, err := Train(nil, norm, Options{})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	same := []Example{
		{Name1: "a b", Name2: "a b", Label: model.Exact},
		{Name1: "cd", Name2: "cd", Label: model.Exact},
	}
	_, err = Train(same, norm, Options{})
	assert.ErrorIs(t, err, model.ErrUntrained)
}

func TestEvaluateReport(t *testing.T) {
	var r Report
	// expected Exact: 2 right, 1 called Similar; expected Different: 1 right
	r.Confusion[model.Exact][model.Exact] = 2
	r.Confusion[model.Exact][model.Similar] = 1
	r.Confusion[model.Different][model.Different] = 1
	r.score()

	assert.Equal(t, 4, r.Total)
	assert.InDelta(t, 0.75, r.Accuracy, 1e-12)
	assert.InDelta(t, 1.0, r.Classes[model.Exact].Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, r.Classes[model.Exact].Recall, 1e-12)
	assert.InDelta(t, 0.8, r.Classes[model.Exact].F1, 1e-12)
	assert.Zero(t, r.Classes[model.Similar].Precision)
	assert.Equal(t, 0, r.Classes[model.Similar].Support)
	assert.Contains(t, r.String(), "accuracy 0.75 over 4 pairs")
}

func TestEvaluate(t *testing.T) {
	norm := normalize.New(normalize.DefaultTables(), normalize.Options{})
	examples := []Example{
		{Name1: "main road", Name2: "main road", Label: model.Exact},
		{Name1: "main road", Name2: "oak lane", Label: model.Different},
	}
	res, err := Train(examples, norm, Options{TestFraction: -1})
	require.NoError(t, err)
	assert.Zero(t, res.Eval.Total)

	rep, err := Evaluate(res.Classifier, res.Extractor, examples)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)

	other := features.NewExtractor(norm, features.FitVocabulary([]string{"x y z w"}, features.VocabOptions{}))
	_, err = Evaluate(res.Classifier, other, examples)
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
}

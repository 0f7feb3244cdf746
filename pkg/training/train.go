package training

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
	"github.com/bastiangx/streetmatch/pkg/normalize"
)

// DefaultTestFraction is the share of examples held out for evaluation.
const DefaultTestFraction = 0.2

// Options controls a training run.
type Options struct {
	Kind         string
	Model        model.Options
	Vocab        features.VocabOptions
	TestFraction float64
}

// Result is a freshly trained model together with its diagnostics.
type Result struct {
	Extractor  *features.Extractor
	Classifier model.Classifier
	// Train is measured on the examples the model was fitted on, Eval on
	// the held-out split. Eval is empty when nothing could be held out.
	Train Report
	Eval  Report
}

// Train fits the vocabulary on every example, fits the classifier on the
// training split and evaluates both splits.
func Train(examples []Example, norm *normalize.Normalizer, opts Options) (*Result, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyDataset
	}
	frac := opts.TestFraction
	if frac == 0 {
		frac = DefaultTestFraction
	}

	docs := make([]string, len(examples))
	for i, ex := range examples {
		docs[i] = features.Joined(norm.Normalize(ex.Name1), norm.Normalize(ex.Name2))
	}
	vocab := features.FitVocabulary(docs, opts.Vocab)
	ext := features.NewExtractor(norm, vocab)

	train, eval := Split(examples, frac, opts.Model.Seed)
	clf, err := model.New(opts.Kind, opts.Model)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(Samples(ext, train)); err != nil {
		return nil, fmt.Errorf("fit %s classifier: %w", clf.Kind(), err)
	}
	log.Debugf("Trained %s classifier: %d terms, %d train, %d eval", clf.Kind(), vocab.Len(), len(train), len(eval))

	res := &Result{Extractor: ext, Classifier: clf}
	if res.Train, err = Evaluate(clf, ext, train); err != nil {
		return nil, err
	}
	if len(eval) > 0 {
		if res.Eval, err = Evaluate(clf, ext, eval); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Samples extracts a labeled vector for every example.
func Samples(ext *features.Extractor, examples []Example) []model.Sample {
	out := make([]model.Sample, len(examples))
	for i, ex := range examples {
		out[i] = model.Sample{X: ext.Extract(ex.Name1, ex.Name2).Vector, Y: ex.Label}
	}
	return out
}

// Replay logs the prediction for every example at debug level.
func Replay(clf model.Classifier, ext *features.Extractor, examples []Example) {
	for _, ex := range examples {
		p := ext.Extract(ex.Name1, ex.Name2)
		got, err := clf.Predict(p.Vector)
		if err != nil {
			log.Warnf("Replay %q + %q: %v", ex.Name1, ex.Name2, err)
			continue
		}
		log.Debug("replay", "name1", ex.Name1, "name2", ex.Name2,
			"predicted", got, "expected", ex.Label,
			"distance", p.Distance, "similarity", fmt.Sprintf("%.2f", p.Similarity))
	}
}

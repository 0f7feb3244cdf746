/*
Package match owns the live model and answers comparison requests.

An Engine holds one immutable snapshot of the classifier behind an atomic
pointer. Compare reads the snapshot without locking. Feedback takes the
single writer lock, updates a clone, publishes it and saves it, so updates
are serialized and every reader sees either the old or the new model.
*/
package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
	"github.com/bastiangx/streetmatch/pkg/normalize"
	"github.com/bastiangx/streetmatch/pkg/policy"
	"github.com/bastiangx/streetmatch/pkg/store"
	"github.com/bastiangx/streetmatch/pkg/training"
)

// Store persists snapshots. *store.FileStore implements it.
type Store interface {
	Load() (*store.Snapshot, error)
	Save(store.Snapshot) error
}

// Journal records feedback events. *store.Journal implements it.
type Journal interface {
	Record(ctx context.Context, e store.Event) (store.Event, error)
}

// Options configures Open.
type Options struct {
	Normalizer *normalize.Normalizer
	Policy     policy.Policy
	Store      Store
	// Journal is optional.
	Journal Journal

	// Seed is the dataset used when no model is persisted or Retrain is set.
	Seed     []training.Example
	Training training.Options
	Retrain  bool
}

// Verdict is the answer to one comparison.
type Verdict struct {
	Name1        string
	Name2        string
	Label        model.Label
	Predicted    model.Label
	EditDistance int
	Similarity   float64
	Cosine       float64
	Confidence   float64
}

// Info describes the live model.
type Info struct {
	Kind           string
	Policy         string
	Dim            int
	VocabularySize int
	Updates        int
}

type snapshot struct {
	clf     model.Classifier
	updates int
}

// Engine compares names against the live model.
type Engine struct {
	ext     *features.Extractor
	policy  policy.Policy
	store   Store
	journal Journal

	current atomic.Pointer[snapshot]
	// mu serializes writers. Readers never take it.
	mu sync.Mutex
}

// Open loads the persisted model, or trains one from opts.Seed and saves it
// when none exists or opts.Retrain is set. The training result is returned
// when a model was trained, nil otherwise.
func Open(opts Options) (*Engine, *training.Result, error) {
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(normalize.DefaultTables(), normalize.Options{})
	}
	if opts.Policy == nil {
		opts.Policy = policy.Levenshtein{Floor: policy.DefaultSimilarityFloor}
	}
	if opts.Store == nil {
		return nil, nil, errors.New("match: nil store")
	}
	e := &Engine{policy: opts.Policy, store: opts.Store, journal: opts.Journal}

	if !opts.Retrain {
		snap, err := opts.Store.Load()
		switch {
		case err == nil:
			if err := e.restore(opts.Normalizer, snap); err != nil {
				return nil, nil, err
			}
			return e, nil, nil
		case errors.Is(err, store.ErrNotFound):
			log.Infof("No persisted model, training from %d seed pairs", len(opts.Seed))
		default:
			return nil, nil, fmt.Errorf("load model: %w", err)
		}
	}

	res, err := training.Train(opts.Seed, opts.Normalizer, opts.Training)
	if err != nil {
		return nil, nil, fmt.Errorf("train model: %w", err)
	}
	e.ext = res.Extractor
	e.current.Store(&snapshot{clf: res.Classifier})
	if err := e.save(res.Classifier); err != nil {
		return nil, nil, err
	}
	return e, res, nil
}

func (e *Engine) restore(norm *normalize.Normalizer, snap *store.Snapshot) error {
	vocab, err := features.RestoreVocabulary(snap.Vocabulary)
	if err != nil {
		return fmt.Errorf("restore vocabulary: %w", err)
	}
	clf, err := model.Restore(snap.Model)
	if err != nil {
		return fmt.Errorf("restore classifier: %w", err)
	}
	ext := features.NewExtractor(norm, vocab)
	if clf.Dim() != ext.Dim() {
		return fmt.Errorf("%w: classifier expects %d features, vocabulary yields %d", ErrDimensionMismatch, clf.Dim(), ext.Dim())
	}
	e.ext = ext
	e.current.Store(&snapshot{clf: clf, updates: snap.Model.Updates})
	log.Debugf("Restored %s classifier with %d terms", clf.Kind(), vocab.Len())
	return nil
}

// Info describes the live model.
func (e *Engine) Info() Info {
	snap := e.current.Load()
	return Info{
		Kind:           snap.clf.Kind(),
		Policy:         e.policy.Kind(),
		Dim:            snap.clf.Dim(),
		VocabularySize: e.ext.Vocabulary().Len(),
		Updates:        snap.updates,
	}
}

// Terms lists the vocabulary terms starting with prefix. The prefix is
// normalized first, so "Avda" finds the terms of "avda".
func (e *Engine) Terms(prefix string) []string {
	return e.ext.Vocabulary().WithPrefix(e.ext.Normalizer().Normalize(prefix))
}

// Compare classifies a pair. When feedback is non-nil the live model is
// updated toward it after the verdict is computed, so the verdict always
// reflects the model before the update. A persistence failure is returned
// together with the verdict.
func (e *Engine) Compare(ctx context.Context, name1, name2 string, feedback *int) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if err := checkNames(name1, name2); err != nil {
		return Verdict{}, err
	}
	var label model.Label
	if feedback != nil {
		l, err := model.ParseLabel(*feedback)
		if err != nil {
			return Verdict{}, fmt.Errorf("%w: feedback: %v", ErrInvalidInput, err)
		}
		label = l
	}

	pair := e.ext.Extract(name1, name2)
	v, err := e.verdict(e.current.Load().clf, pair)
	if err != nil {
		return Verdict{}, err
	}
	v.Name1, v.Name2 = name1, name2

	if feedback != nil {
		err = e.apply(ctx, name1, name2, pair, v.Predicted, label)
	}
	return v, err
}

// Update moves the live model toward label for the pair without producing a
// verdict.
func (e *Engine) Update(ctx context.Context, name1, name2 string, label int) error {
	if err := checkNames(name1, name2); err != nil {
		return err
	}
	y, err := model.ParseLabel(label)
	if err != nil {
		return fmt.Errorf("%w: feedback: %v", ErrInvalidInput, err)
	}
	pair := e.ext.Extract(name1, name2)
	predicted, err := e.current.Load().clf.Predict(pair.Vector)
	if err != nil {
		return err
	}
	return e.apply(ctx, name1, name2, pair, predicted, y)
}

func (e *Engine) verdict(clf model.Classifier, pair features.Pair) (Verdict, error) {
	scores, err := clf.Scores(pair.Vector)
	if err != nil {
		return Verdict{}, err
	}
	predicted := model.Label(0)
	for k := range scores {
		if scores[k] > scores[predicted] {
			predicted = model.Label(k)
		}
	}
	sim := e.policy.Similarity(pair)
	return Verdict{
		Label:        e.policy.Decide(sim, predicted),
		Predicted:    predicted,
		EditDistance: pair.Distance,
		Similarity:   round2(pair.Similarity),
		Cosine:       round2(pair.Cosine),
		Confidence:   round2(scores[predicted]),
	}, nil
}

// apply journals the names as the caller sent them, so a retrain under
// different normalization options derives features from the raw input.
func (e *Engine) apply(ctx context.Context, name1, name2 string, pair features.Pair, predicted, y model.Label) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	next := cur.clf.Clone()
	if err := next.Update(pair.Vector, y); err != nil {
		return err
	}
	e.current.Store(&snapshot{clf: next, updates: cur.updates + 1})
	log.Debugf("Feedback %s for %q + %q (predicted %s)", y, pair.Name1, pair.Name2, predicted)

	if e.journal != nil {
		ev := store.Event{Name1: name1, Name2: name2, Predicted: predicted, Label: y}
		if _, err := e.journal.Record(ctx, ev); err != nil {
			log.Warnf("Journaling feedback: %v", err)
		}
	}
	return e.save(next)
}

func (e *Engine) save(clf model.Classifier) error {
	snap := store.Snapshot{Vocabulary: e.ext.Vocabulary().State(), Model: clf.State()}
	if err := e.store.Save(snap); err != nil {
		log.Errorf("Saving model: %v", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func checkNames(name1, name2 string) error {
	if strings.TrimSpace(name1) == "" || strings.TrimSpace(name2) == "" {
		return fmt.Errorf("%w: name1 and name2 are required", ErrInvalidInput)
	}
	return nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

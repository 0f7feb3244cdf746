/*
Package model implements the trainable classifiers that map a feature vector
to one of the three labels.

Two strategies share the Classifier interface:

  - "linear": multinomial logistic regression with balanced class weights and
    standardized numeric columns. Online updates take one gradient step.
  - "forest": a random forest of gini trees grown on bootstrap samples.
    Online updates use online bagging, adding Poisson(1) weighted counts
    to the leaf each tree routes the sample to.

Neither strategy is safe for concurrent mutation. Callers that update a live
classifier should Clone it, update the clone and publish the clone.
*/
package model

import (
	"errors"
	"fmt"
)

const (
	KindLinear = "linear"
	KindForest = "forest"
)

var (
	// ErrUntrained is returned when a classifier cannot be fitted or has
	// not been fitted yet.
	ErrUntrained = errors.New("model is not trained")
	// ErrNoExamples is returned by Fit for an empty training set.
	ErrNoExamples = fmt.Errorf("%w: no training examples", ErrUntrained)
	// ErrSingleClass is returned by Fit when fewer than two labels occur.
	ErrSingleClass = fmt.Errorf("%w: need at least two distinct labels", ErrUntrained)
	// ErrDimensionMismatch means the vector length differs from the fitted
	// dimensionality, usually a stale vocabulary.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrInvalidLabel is returned for labels outside {0,1,2}.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrUnknownKind is returned for an unsupported strategy name.
	ErrUnknownKind = errors.New("unknown classifier kind")
)

// Sample is one labeled feature vector.
type Sample struct {
	X []float64
	Y Label
}

// Classifier is a trainable three-class model.
type Classifier interface {
	// Kind is the strategy name.
	Kind() string
	// Dim is the fitted vector length, 0 before Fit.
	Dim() int
	// Fit trains from scratch on samples.
	Fit(samples []Sample) error
	// Scores returns one real-valued confidence per label. Higher is more
	// confident; values are not calibrated probabilities.
	Scores(x []float64) ([]float64, error)
	// Predict returns the arg-max of Scores.
	Predict(x []float64) (Label, error)
	// Update moves the model toward y for x without replaying training data.
	Update(x []float64, y Label) error
	// Clone returns a deep copy.
	Clone() Classifier
	// State returns the persistable parameters.
	State() State
}

// Options configures both strategies. Zero values fall back to defaults.
type Options struct {
	Seed uint64

	// linear
	MaxIter      int
	Tol          float64
	C            float64
	LearningRate float64
	ScaleNumeric bool
	NumericCols  int

	// forest
	Trees    int
	MaxDepth int
	MinLeaf  int
}

// DefaultOptions mirrors the values used by the shipped config.
func DefaultOptions() Options {
	return Options{
		Seed:         42,
		MaxIter:      1000,
		Tol:          1e-4,
		C:            1.0,
		LearningRate: 0.1,
		ScaleNumeric: true,
		NumericCols:  2,
		Trees:        100,
		MaxDepth:     12,
		MinLeaf:      1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Tol <= 0 {
		o.Tol = d.Tol
	}
	if o.C <= 0 {
		o.C = d.C
	}
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.NumericCols < 0 {
		o.NumericCols = 0
	}
	if o.Trees <= 0 {
		o.Trees = d.Trees
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = d.MinLeaf
	}
	return o
}

// New returns an unfitted classifier of the given kind.
func New(kind string, opts Options) (Classifier, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindLinear, "":
		return &Linear{opts: opts}, nil
	case KindForest:
		return &Forest{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// State is the persisted form of any classifier.
type State struct {
	Kind    string        `msgpack:"kind"`
	Dim     int           `msgpack:"dim"`
	Options Options       `msgpack:"options"`
	Scaler  *Scaler       `msgpack:"scaler,omitempty"`
	Linear  *LinearParams `msgpack:"linear,omitempty"`
	Forest  *ForestParams `msgpack:"forest,omitempty"`
	Updates int           `msgpack:"updates"`
}

// Restore rebuilds a fitted classifier from its state.
func Restore(s State) (Classifier, error) {
	if s.Dim <= 0 {
		return nil, fmt.Errorf("%w: state has no dimension", ErrUntrained)
	}
	opts := s.Options.withDefaults()
	switch s.Kind {
	case KindLinear:
		if s.Linear == nil {
			return nil, fmt.Errorf("%w: linear state without parameters", ErrUntrained)
		}
		if err := s.Linear.check(s.Dim); err != nil {
			return nil, err
		}
		if s.Scaler != nil {
			if err := s.Scaler.check(s.Dim); err != nil {
				return nil, err
			}
		}
		l := &Linear{opts: opts, dim: s.Dim, params: s.Linear.clone(), updates: s.Updates}
		if s.Scaler != nil {
			sc := s.Scaler.clone()
			l.scaler = &sc
		}
		return l, nil
	case KindForest:
		if s.Forest == nil || len(s.Forest.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest state without trees", ErrUntrained)
		}
		if err := s.Forest.check(s.Dim); err != nil {
			return nil, err
		}
		return &Forest{opts: opts, dim: s.Dim, params: s.Forest.clone(), updates: s.Updates}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
}

// ClassWeights returns weights inversely proportional to class frequency,
// n / (k * count), for the labels present. Absent labels get weight 0.
func ClassWeights(samples []Sample) [NumClasses]float64 {
	var counts [NumClasses]int
	for _, s := range samples {
		counts[s.Y]++
	}
	present := 0
	for _, c := range counts {
		if c > 0 {
			present++
		}
	}
	var w [NumClasses]float64
	for k, c := range counts {
		if c > 0 {
			w[k] = float64(len(samples)) / float64(present*c)
		}
	}
	return w
}

// checkSamples validates a training set and returns its dimensionality.
func checkSamples(samples []Sample) (int, error) {
	if len(samples) == 0 {
		return 0, ErrNoExamples
	}
	dim := len(samples[0].X)
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty feature vector", ErrDimensionMismatch)
	}
	seen := make(map[Label]struct{}, NumClasses)
	for i, s := range samples {
		if len(s.X) != dim {
			return 0, fmt.Errorf("%w: sample %d has %d features, want %d", ErrDimensionMismatch, i, len(s.X), dim)
		}
		if !s.Y.Valid() {
			return 0, fmt.Errorf("%w: sample %d has label %d", ErrInvalidLabel, i, int(s.Y))
		}
		seen[s.Y] = struct{}{}
	}
	if len(seen) < 2 {
		return 0, ErrSingleClass
	}
	return dim, nil
}

func checkInput(dim int, x []float64) error {
	if dim == 0 {
		return ErrUntrained
	}
	if len(x) != dim {
		return fmt.Errorf("%w: got %d features, want %d", ErrDimensionMismatch, len(x), dim)
	}
	return nil
}

func argmax(v []float64) Label {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return Label(best)
}

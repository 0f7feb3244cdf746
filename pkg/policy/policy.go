// Package policy fuses a similarity score and a predicted label into the
// final verdict.
package policy

import (
	"errors"
	"fmt"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
)

const (
	KindLevenshtein = "levenshtein"
	KindCosine      = "cosine"

	DefaultSimilarityFloor = 0.60
	DefaultCosineThreshold = 0.85
)

// ErrUnknownKind is returned by New for an unsupported policy name.
var ErrUnknownKind = errors.New("unknown decision policy")

// Policy decides the final label for a pair.
type Policy interface {
	Kind() string
	// Similarity picks the score the policy thresholds on.
	Similarity(p features.Pair) float64
	// Decide maps a similarity and the classifier's prediction to a label.
	Decide(similarity float64, predicted model.Label) model.Label
}

// Config holds the thresholds of every policy.
type Config struct {
	Kind            string
	SimilarityFloor float64
	CosineThreshold float64
}

// New builds the policy named by cfg.Kind. Non-positive thresholds take the
// defaults.
func New(cfg Config) (Policy, error) {
	switch cfg.Kind {
	case KindLevenshtein, "":
		floor := cfg.SimilarityFloor
		if floor <= 0 {
			floor = DefaultSimilarityFloor
		}
		return Levenshtein{Floor: floor}, nil
	case KindCosine:
		th := cfg.CosineThreshold
		if th <= 0 {
			th = DefaultCosineThreshold
		}
		return Cosine{Threshold: th}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Levenshtein thresholds on the edit ratio. A Similar prediction is only
// accepted when the names are also close enough on the surface.
type Levenshtein struct {
	Floor float64
}

func (Levenshtein) Kind() string { return KindLevenshtein }

func (Levenshtein) Similarity(p features.Pair) float64 { return p.Similarity }

func (l Levenshtein) Decide(similarity float64, predicted model.Label) model.Label {
	switch {
	case similarity == 1:
		return model.Exact
	case predicted == model.Similar && similarity >= l.Floor:
		return model.Similar
	default:
		return model.Different
	}
}

// Cosine thresholds on token cosine and otherwise trusts any positive
// prediction.
type Cosine struct {
	Threshold float64
}

func (Cosine) Kind() string { return KindCosine }

func (Cosine) Similarity(p features.Pair) float64 { return p.Cosine }

func (c Cosine) Decide(similarity float64, predicted model.Label) model.Label {
	switch {
	case similarity == 1:
		return model.Exact
	case similarity >= c.Threshold:
		return model.Similar
	case predicted == model.Similar || predicted == model.Exact:
		return model.Similar
	default:
		return model.Different
	}
}

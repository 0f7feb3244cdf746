package model

import (
	"fmt"
	"math"
)

// LinearParams holds one weight row and bias per class.
type LinearParams struct {
	W [][]float64 `msgpack:"w"`
	B []float64   `msgpack:"b"`
}

func (p *LinearParams) clone() *LinearParams {
	out := &LinearParams{W: make([][]float64, len(p.W)), B: append([]float64(nil), p.B...)}
	for k, row := range p.W {
		out.W[k] = append([]float64(nil), row...)
	}
	return out
}

func (p *LinearParams) check(dim int) error {
	if len(p.W) != NumClasses || len(p.B) != NumClasses {
		return fmt.Errorf("%w: linear state has %d classes", ErrDimensionMismatch, len(p.W))
	}
	for k, row := range p.W {
		if len(row) != dim {
			return fmt.Errorf("%w: class %d has %d weights, want %d", ErrDimensionMismatch, k, len(row), dim)
		}
	}
	return nil
}

// Linear is a multinomial logistic regression.
type Linear struct {
	opts    Options
	dim     int
	scaler  *Scaler
	params  *LinearParams
	updates int
}

// Kind implements Classifier.
func (l *Linear) Kind() string { return KindLinear }

// Dim implements Classifier.
func (l *Linear) Dim() int { return l.dim }

// Fit minimizes the class-weighted mean cross entropy plus an L2 penalty of
// 1/(2Cn)·|W|² by full-batch gradient descent, stopping once the largest
// gradient component drops below Tol or after MaxIter steps. The step size
// is the inverse of a bound on the loss curvature, so descent is monotone.
func (l *Linear) Fit(samples []Sample) error {
	dim, err := checkSamples(samples)
	if err != nil {
		return err
	}
	var scaler *Scaler
	if l.opts.ScaleNumeric && l.opts.NumericCols > 0 {
		sc := FitScaler(samples, tailCols(dim, l.opts.NumericCols))
		scaler = &sc
	}
	xs := make([][]float64, len(samples))
	maxNorm := 0.0
	for i, s := range samples {
		xs[i] = scaler.Transform(s.X)
		norm := 1.0 // bias
		for _, v := range xs[i] {
			norm += v * v
		}
		maxNorm = math.Max(maxNorm, norm)
	}
	weights := ClassWeights(samples)
	n := float64(len(samples))
	lambda := 1 / (l.opts.C * n)
	step := 1 / (0.5*maxNorm + lambda)

	p := &LinearParams{W: make([][]float64, NumClasses), B: make([]float64, NumClasses)}
	for k := range p.W {
		p.W[k] = make([]float64, dim)
	}
	gw := make([][]float64, NumClasses)
	for k := range gw {
		gw[k] = make([]float64, dim)
	}
	gb := make([]float64, NumClasses)
	probs := make([]float64, NumClasses)

	for iter := 0; iter < l.opts.MaxIter; iter++ {
		for k := range gw {
			for j := range gw[k] {
				gw[k][j] = lambda * p.W[k][j]
			}
			gb[k] = 0
		}
		for i, x := range xs {
			y := samples[i].Y
			w := weights[y] / n
			softmax(p, x, probs)
			for k := 0; k < NumClasses; k++ {
				g := probs[k]
				if Label(k) == y {
					g -= 1
				}
				g *= w
				if g == 0 {
					continue
				}
				for j, v := range x {
					gw[k][j] += g * v
				}
				gb[k] += g
			}
		}
		largest := 0.0
		for k := range gw {
			for j, g := range gw[k] {
				p.W[k][j] -= step * g
				largest = math.Max(largest, math.Abs(g))
			}
			p.B[k] -= step * gb[k]
			largest = math.Max(largest, math.Abs(gb[k]))
		}
		if largest < l.opts.Tol {
			break
		}
	}

	l.dim = dim
	l.scaler = scaler
	l.params = p
	l.updates = 0
	return nil
}

// Scores returns the decision function w_k·x + b_k for each class.
func (l *Linear) Scores(x []float64) ([]float64, error) {
	if err := checkInput(l.dim, x); err != nil {
		return nil, err
	}
	out := make([]float64, NumClasses)
	decision(l.params, l.scaler.Transform(x), out)
	return out, nil
}

// Predict implements Classifier.
func (l *Linear) Predict(x []float64) (Label, error) {
	scores, err := l.Scores(x)
	if err != nil {
		return 0, err
	}
	return argmax(scores), nil
}

// Update takes one unregularized cross-entropy gradient step of size
// LearningRate toward y. The score of y cannot decrease: it moves by
// rate·(1-p_y)·(|x|²+1).
func (l *Linear) Update(x []float64, y Label) error {
	if !y.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLabel, int(y))
	}
	if err := checkInput(l.dim, x); err != nil {
		return err
	}
	xs := l.scaler.Transform(x)
	probs := make([]float64, NumClasses)
	softmax(l.params, xs, probs)
	rate := l.opts.LearningRate
	for k := 0; k < NumClasses; k++ {
		g := probs[k]
		if Label(k) == y {
			g -= 1
		}
		for j, v := range xs {
			l.params.W[k][j] -= rate * g * v
		}
		l.params.B[k] -= rate * g
	}
	l.updates++
	return nil
}

// Clone implements Classifier.
func (l *Linear) Clone() Classifier {
	c := &Linear{opts: l.opts, dim: l.dim, updates: l.updates}
	if l.params != nil {
		c.params = l.params.clone()
	}
	if l.scaler != nil {
		sc := l.scaler.clone()
		c.scaler = &sc
	}
	return c
}

// State implements Classifier.
func (l *Linear) State() State {
	s := State{Kind: KindLinear, Dim: l.dim, Options: l.opts, Updates: l.updates}
	if l.params != nil {
		s.Linear = l.params.clone()
	}
	if l.scaler != nil {
		sc := l.scaler.clone()
		s.Scaler = &sc
	}
	return s
}

func decision(p *LinearParams, x []float64, out []float64) {
	for k := range out {
		z := p.B[k]
		for j, v := range x {
			z += p.W[k][j] * v
		}
		out[k] = z
	}
}

func softmax(p *LinearParams, x []float64, out []float64) {
	decision(p, x, out)
	top := out[0]
	for _, z := range out[1:] {
		top = math.Max(top, z)
	}
	var sum float64
	for k, z := range out {
		out[k] = math.Exp(z - top)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
}

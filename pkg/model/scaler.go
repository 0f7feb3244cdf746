package model

import (
	"fmt"
	"math"
)

// Scaler standardizes selected columns to zero mean and unit variance using
// statistics computed on the training set only.
type Scaler struct {
	Cols []int     `msgpack:"cols"`
	Mean []float64 `msgpack:"mean"`
	Std  []float64 `msgpack:"std"`
}

// FitScaler computes mean and population standard deviation for cols.
// Constant columns get a standard deviation of 1.
func FitScaler(samples []Sample, cols []int) Scaler {
	sc := Scaler{
		Cols: append([]int(nil), cols...),
		Mean: make([]float64, len(cols)),
		Std:  make([]float64, len(cols)),
	}
	n := float64(len(samples))
	for j, c := range cols {
		var sum float64
		for _, s := range samples {
			sum += s.X[c]
		}
		mean := sum / n
		var ss float64
		for _, s := range samples {
			d := s.X[c] - mean
			ss += d * d
		}
		std := math.Sqrt(ss / n)
		if std == 0 {
			std = 1
		}
		sc.Mean[j] = mean
		sc.Std[j] = std
	}
	return sc
}

// Transform returns a scaled copy of x.
func (sc *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	if sc == nil {
		return out
	}
	for j, c := range sc.Cols {
		out[c] = (out[c] - sc.Mean[j]) / sc.Std[j]
	}
	return out
}

// check rejects scalers whose columns fall outside a vector of length dim.
func (sc *Scaler) check(dim int) error {
	if len(sc.Mean) != len(sc.Cols) || len(sc.Std) != len(sc.Cols) {
		return fmt.Errorf("%w: scaler has %d columns, %d means and %d deviations",
			ErrDimensionMismatch, len(sc.Cols), len(sc.Mean), len(sc.Std))
	}
	for j, c := range sc.Cols {
		if c < 0 || c >= dim {
			return fmt.Errorf("%w: scaler column %d out of range [0,%d)", ErrDimensionMismatch, c, dim)
		}
		if !(sc.Std[j] > 0) {
			return fmt.Errorf("%w: scaler column %d has deviation %v", ErrUntrained, c, sc.Std[j])
		}
	}
	return nil
}

func (sc *Scaler) clone() Scaler {
	return Scaler{
		Cols: append([]int(nil), sc.Cols...),
		Mean: append([]float64(nil), sc.Mean...),
		Std:  append([]float64(nil), sc.Std...),
	}
}

// tailCols returns the indexes of the last n of dim columns.
func tailCols(dim, n int) []int {
	if n > dim {
		n = dim
	}
	cols := make([]int, 0, n)
	for c := dim - n; c < dim; c++ {
		cols = append(cols, c)
	}
	return cols
}

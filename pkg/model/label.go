package model

import "fmt"

// Label is the ordinal verdict of a comparison.
type Label int

const (
	Different Label = iota
	Similar
	Exact
)

// NumClasses is the number of labels every classifier scores.
const NumClasses = 3

// String returns the label name used on the wire.
func (l Label) String() string {
	switch l {
	case Different:
		return "Different"
	case Similar:
		return "Similar"
	case Exact:
		return "Exact"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

// Valid reports whether l is one of the three labels.
func (l Label) Valid() bool {
	return l >= Different && l <= Exact
}

// ParseLabel converts a caller supplied integer into a Label.
func ParseLabel(v int) (Label, error) {
	l := Label(v)
	if !l.Valid() {
		return 0, fmt.Errorf("%w: %d not in {0,1,2}", ErrInvalidLabel, v)
	}
	return l, nil
}

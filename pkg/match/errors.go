package match

import (
	"errors"

	"github.com/bastiangx/streetmatch/pkg/model"
)

var (
	// ErrInvalidInput is returned for empty names or feedback outside {0,1,2}.
	// Nothing is mutated when it is returned.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistence is returned when a feedback update was applied in memory
	// but could not be saved. The in-memory update is kept.
	ErrPersistence = errors.New("persisting model failed")

	ErrUntrained         = model.ErrUntrained
	ErrDimensionMismatch = model.ErrDimensionMismatch
)

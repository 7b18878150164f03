// Package regression holds the adapters for the trained model the indicator
// runs in prediction mode. The model itself is opaque: a vector goes in and a
// vector comes out.
package regression

import (
	"context"
	"errors"
	"fmt"
)

// ErrInputSize is returned when an input vector does not match the model.
var ErrInputSize = errors.New("regression: input size mismatch")

// Regressor computes an output vector from an input vector.
type Regressor interface {
	// Compute runs the model. Implementations must be safe for use by
	// one session at a time; sessions never call Compute concurrently.
	Compute(ctx context.Context, input []float64) ([]float64, error)

	// InputCount is the expected input width, or 0 if unknown.
	InputCount() int

	// OutputCount is the produced output width, or 0 if unknown.
	OutputCount() int
}

// Func adapts a plain function to Regressor. Used for fixed-output stubs and
// for models compiled into the binary.
type Func struct {
	In, Out int
	F       func(input []float64) []float64
}

// Compute calls the wrapped function after checking the input width.
func (f Func) Compute(_ context.Context, input []float64) ([]float64, error) {
	if f.In > 0 && len(input) != f.In {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), f.In)
	}
	return f.F(input), nil
}

func (f Func) InputCount() int  { return f.In }
func (f Func) OutputCount() int { return f.Out }

// Constant returns a model that ignores its input and always outputs v.
func Constant(inputs int, v float64) Func {
	return Func{In: inputs, Out: 1, F: func([]float64) []float64 { return []float64{v} }}
}

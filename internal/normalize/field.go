// Package normalize maps values between a raw market range and the range a
// regression model was trained on.
package normalize

import (
	"errors"
	"fmt"
)

// ErrDegenerateRange is returned when a range has equal bounds.
var ErrDegenerateRange = errors.New("normalize: degenerate range")

// Field is a linear mapping from [DataLow, DataHigh] to [NormLow, NormHigh].
// It is an immutable value and safe for concurrent use.
type Field struct {
	DataHigh float64
	DataLow  float64
	NormHigh float64
	NormLow  float64
}

// New creates a Field. Bounds are checked lazily by Normalize/Denormalize
// and eagerly by Validate.
func New(dataHigh, dataLow, normHigh, normLow float64) Field {
	return Field{
		DataHigh: dataHigh,
		DataLow:  dataLow,
		NormHigh: normHigh,
		NormLow:  normLow,
	}
}

// Symmetric builds the common [-r, r] → [-1, 1] mapping.
func Symmetric(r float64) Field {
	return New(r, -r, 1, -1)
}

// Validate reports whether both ranges are ordered high > low.
func (f Field) Validate() error {
	if !(f.DataHigh > f.DataLow) {
		return fmt.Errorf("%w: data high %v must exceed data low %v", ErrDegenerateRange, f.DataHigh, f.DataLow)
	}
	if !(f.NormHigh > f.NormLow) {
		return fmt.Errorf("%w: normalized high %v must exceed normalized low %v", ErrDegenerateRange, f.NormHigh, f.NormLow)
	}
	return nil
}

func (f Field) check() error {
	if f.DataHigh == f.DataLow {
		return fmt.Errorf("%w: data bounds both %v", ErrDegenerateRange, f.DataHigh)
	}
	if f.NormHigh == f.NormLow {
		return fmt.Errorf("%w: normalized bounds both %v", ErrDegenerateRange, f.NormHigh)
	}
	return nil
}

// Normalize maps x into the normalized range. Out-of-range inputs are
// extrapolated, not clamped.
func (f Field) Normalize(x float64) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return (x-f.DataLow)/(f.DataHigh-f.DataLow)*(f.NormHigh-f.NormLow) + f.NormLow, nil
}

// Denormalize is the inverse of Normalize.
func (f Field) Denormalize(y float64) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	return ((f.DataLow-f.DataHigh)*y - f.NormHigh*f.DataLow + f.DataHigh*f.NormLow) / (f.NormLow - f.NormHigh), nil
}

package tensor

import "github.com/pkg/errors"

var (
	// ErrShape reports mismatched or invalid tensor dimensions.
	ErrShape = errors.New("shape error")

	// ErrRange reports an index outside the valid range, such as a token id
	// outside [0, vocab_size).
	ErrRange = errors.New("range error")
)

// ShapeErrorf wraps ErrShape with a formatted message.
func ShapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShape, format, args...)
}

// RangeErrorf wraps ErrRange with a formatted message.
func RangeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrRange, format, args...)
}

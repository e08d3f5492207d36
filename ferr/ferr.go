// Package ferr defines the shared error taxonomy for the codec packages:
// InvalidConfig, InputRange, BufferSize, DivisionByZero, DecodeFailed.
// Construction errors and per-call input errors abort the call; DecodeFailed
// is a defined return value, never a panic, and never mutates the caller's
// buffer.
package ferr

import "github.com/cockroachdb/errors"

// Sentinel errors. Test with errors.Is, not direct comparison, since callers
// may receive a wrapped instance carrying additional context.
var (
	// ErrInvalidConfig is returned when constructor arguments violate a
	// documented constraint. Always raised at construction time.
	ErrInvalidConfig = errors.New("ferr: invalid configuration")

	// ErrInputRange is returned when a caller-supplied value lies outside
	// the field or buffer domain the method expects.
	ErrInputRange = errors.New("ferr: input out of range")

	// ErrBufferSize is returned when a buffer's length does not match the
	// codec's block_len (or an incompatible block_size is passed to a
	// streaming operation).
	ErrBufferSize = errors.New("ferr: buffer size mismatch")

	// ErrDivisionByZero is returned by field-level Div/Inv when the divisor
	// is zero. The codec itself must never trigger this internally; doing
	// so indicates a library bug.
	ErrDivisionByZero = errors.New("ferr: division by zero")

	// ErrDecodeFailed is returned when no locator degree up to the
	// configured maximum produces a consistent Chien/Forney solve. The
	// input buffer is left unmodified.
	ErrDecodeFailed = errors.New("ferr: decode failed")
)

// Invalidf wraps ErrInvalidConfig with a formatted reason.
func Invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidConfig, format, args...)
}

// InputRangef wraps ErrInputRange with a formatted reason.
func InputRangef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInputRange, format, args...)
}

// BufferSizef wraps ErrBufferSize with a formatted reason.
func BufferSizef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBufferSize, format, args...)
}

// DecodeFailedf wraps ErrDecodeFailed with a formatted reason.
func DecodeFailedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDecodeFailed, format, args...)
}

package control

import "github.com/pkg/errors"

var (
	// ErrZeroLengthProfile is returned when a profile is requested over a non-positive duration.
	ErrZeroLengthProfile = errors.New("profile duration must be positive")
	// ErrInvalidTimeFraction is returned when a time or time range falls outside what a profile
	// accepts, such as an inverted or overlapping compound section.
	ErrInvalidTimeFraction = errors.New("invalid time fraction")
)

// NewZeroLengthProfileError is returned when a profile is built with endTime <= 0.
func NewZeroLengthProfileError(endTime float64) error {
	return errors.Wrapf(ErrZeroLengthProfile, "end time was %v", endTime)
}

// NewInvalidTimeFractionError describes which time, or range of times, was rejected.
func NewInvalidTimeFractionError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidTimeFraction, format, args...)
}

package kinematics

import "github.com/pkg/errors"

var (
	// ErrCardinalityMismatch is returned when a list of per-module values does not have one entry
	// per configured drive module.
	ErrCardinalityMismatch = errors.New("number of module states does not match number of drive modules")
	// ErrUnknownModule is returned when a name does not match any configured drive module.
	ErrUnknownModule = errors.New("unknown drive module")
	// ErrInvalidLimit is returned when a motor limit that must be positive is not.
	ErrInvalidLimit = errors.New("invalid motor limit")
)

// NewCardinalityMismatchError reports how many values were expected and received.
func NewCardinalityMismatchError(expected, actual int) error {
	return errors.Wrapf(ErrCardinalityMismatch, "expected %d but got %d", expected, actual)
}

// NewUnknownModuleError names the module that could not be found.
func NewUnknownModuleError(name string) error {
	return errors.Wrapf(ErrUnknownModule, "%q", name)
}

// NewInvalidLimitError names the limit that is out of range.
func NewInvalidLimitError(field string, value float64) error {
	return errors.Wrapf(ErrInvalidLimit, "%s must be positive, got %v", field, value)
}

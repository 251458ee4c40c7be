// Package utils contains small helpers shared by the swerve packages.
package utils

import (
	"github.com/pkg/errors"
)

// NewConfigValidationError returns an error specifying a config validation error at the given path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewConfigValidationFieldRequiredError returns an error specifying that a required field is missing.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}

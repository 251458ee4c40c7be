// Package motionplan turns a start and a desired end state of a multi-wheel steering chassis into
// time-parameterized, motor limited trajectories for every drive module.
package motionplan

import (
	"github.com/pkg/errors"

	"go.viam.com/swerve/control"
)

var (
	// ErrIncompleteTrajectory is returned when a profile is requested before both the current and
	// the desired end state are known.
	ErrIncompleteTrajectory = errors.New("trajectory is missing a start or end state")
	// ErrInfeasibleMotion is returned when no step duration satisfies the motor limits.
	ErrInfeasibleMotion = errors.New("motion cannot be achieved within the motor limits")
	// ErrInvalidTimeFraction is returned for time fractions that are not numbers.
	ErrInvalidTimeFraction = control.ErrInvalidTimeFraction
)

// NewIncompleteTrajectoryError names the missing endpoint.
func NewIncompleteTrajectoryError(missing string) error {
	return errors.Wrapf(ErrIncompleteTrajectory, "no %s", missing)
}

// NewInfeasibleMotionError names the module and step that could not be satisfied.
func NewInfeasibleMotionError(module string, step int, reason string) error {
	return errors.Wrapf(ErrInfeasibleMotion, "module %q at step %d: %s", module, step, reason)
}

var (
	errNegativeDiscriminant = errors.New("steering acceleration limit cannot be met for any step duration")
	errNoPositiveDuration   = errors.New("no positive step duration meets the steering acceleration limit")
)

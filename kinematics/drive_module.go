// Package kinematics describes the drive modules of a multi-wheel steering chassis and the rigid
// body relationship between the chassis motion and the motion of each module.
package kinematics

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MotorLimits bound the motion of a single motor.
type MotorLimits struct {
	MaxVelocity     float64 `json:"max_velocity"`
	MinAcceleration float64 `json:"min_acceleration"`
	MaxAcceleration float64 `json:"max_acceleration"`
	MinJerk         float64 `json:"min_jerk,omitempty"`
	MaxJerk         float64 `json:"max_jerk,omitempty"`
}

// Validate ensures the maxima used when limiting a trajectory are positive.
func (l MotorLimits) Validate(path string) error {
	var errs error
	if l.MaxVelocity <= 0 {
		errs = multierr.Append(errs, NewInvalidLimitError(path+".max_velocity", l.MaxVelocity))
	}
	if l.MaxAcceleration <= 0 {
		errs = multierr.Append(errs, NewInvalidLimitError(path+".max_acceleration", l.MaxAcceleration))
	}
	if l.MinAcceleration > 0 {
		errs = multierr.Append(errs,
			errors.Wrapf(ErrInvalidLimit, "%s.min_acceleration must not be positive, got %v", path, l.MinAcceleration))
	}
	return errs
}

// DriveModule is a steerable, driven wheel. Modules are shared read-only once configured.
type DriveModule struct {
	Name         string `json:"name"`
	SteeringLink string `json:"steering_link,omitempty"`
	DriveLink    string `json:"drive_link,omitempty"`
	// SteeringAxisXYPosition is the position of the steering axis in the body frame. Z is ignored.
	SteeringAxisXYPosition r3.Vector   `json:"steering_axis_xy_position"`
	WheelRadius            float64     `json:"wheel_radius"`
	WheelWidth             float64     `json:"wheel_width,omitempty"`
	SteeringLimits         MotorLimits `json:"steering_limits"`
	DriveLimits            MotorLimits `json:"drive_limits"`
}

// Validate checks the module can be used to build trajectories.
func (m DriveModule) Validate(path string) error {
	var errs error
	if m.Name == "" {
		errs = multierr.Append(errs, errors.Errorf("%s: drive module name is required", path))
	}
	errs = multierr.Append(errs, m.SteeringLimits.Validate(path+".steering_limits"))
	errs = multierr.Append(errs, m.DriveLimits.Validate(path+".drive_limits"))
	return errs
}

// ValidateModules validates every module and makes sure names are unique.
func ValidateModules(modules []DriveModule) error {
	var errs error
	for i, m := range modules {
		errs = multierr.Append(errs, m.Validate(fmt.Sprintf("drive_modules.%d", i)))
	}
	if _, err := NewModuleIndex(modules); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

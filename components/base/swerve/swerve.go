// Package swerve implements steering controllers for a chassis driven by independently steered
// and driven wheel modules. A controller receives measured module states and motion commands and
// keeps a motor limited trajectory for every module that a lower level loop can track.
package swerve

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/utils"
)

// ErrNoActiveTrajectory is returned when a trajectory is sampled before one has been built.
var ErrNoActiveTrajectory = errors.New("no active trajectory")

// ControllerKind selects the space in which a controller plans.
type ControllerKind string

const (
	// ModuleFirst plans every module from its current to its target state directly.
	ModuleFirst ControllerKind = "module_first"
	// BodyFirst plans the chassis motion and derives the module states from it.
	BodyFirst ControllerKind = "body_first"
)

const (
	defaultMinimumTime = 1.0
	defaultResolution  = 20.0
)

// Config configures a steering controller.
type Config struct {
	Controller ControllerKind      `json:"controller"`
	Profile    control.ProfileKind `json:"profile"`
	// MinimumTimeSec is the duration of a motion when the command does not give one.
	MinimumTimeSec float64 `json:"minimum_time_sec,omitempty"`
	// Resolution is the number of body motion samples per second used by body first planning.
	Resolution   float64                  `json:"resolution,omitempty"`
	DriveModules []kinematics.DriveModule `json:"drive_modules"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	switch cfg.Controller {
	case ModuleFirst, BodyFirst:
	case "":
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "controller"))
	default:
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("unknown controller %q", cfg.Controller)))
	}
	if cfg.MinimumTimeSec < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("minimum_time_sec must not be negative, got %v", cfg.MinimumTimeSec)))
	}
	if cfg.Resolution < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("resolution must not be negative, got %v", cfg.Resolution)))
	}
	if len(cfg.DriveModules) == 0 {
		return multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "drive_modules"))
	}
	if err := kinematics.ValidateModules(cfg.DriveModules); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}
	return errs
}

func (cfg *Config) minimumTime() float64 {
	if cfg.MinimumTimeSec > 0 {
		return cfg.MinimumTimeSec
	}
	return defaultMinimumTime
}

func (cfg *Config) resolution() float64 {
	if cfg.Resolution > 0 {
		return cfg.Resolution
	}
	return defaultResolution
}

// MotionCommand is a target for the chassis: either a BodyMotionCommand or a
// DriveModuleMotionCommand.
type MotionCommand interface {
	// Duration is the shortest time in which the motion should be completed. Zero uses the
	// configured default.
	Duration() time.Duration
	isMotionCommand()
}

// BodyMotionCommand asks for the chassis to reach a body motion.
type BodyMotionCommand struct {
	Motion      kinematics.BodyMotion
	MinimumTime time.Duration
}

// Duration returns the minimum time of the motion.
func (c BodyMotionCommand) Duration() time.Duration {
	return c.MinimumTime
}

func (c BodyMotionCommand) String() string {
	return fmt.Sprintf("body motion (%.3f, %.3f, %.3f) in %v",
		c.Motion.LinearVelocity.X, c.Motion.LinearVelocity.Y, c.Motion.AngularVelocity.Z, c.MinimumTime)
}

func (BodyMotionCommand) isMotionCommand() {}

// DriveModuleMotionCommand asks for every module to reach a target state.
type DriveModuleMotionCommand struct {
	Targets     []kinematics.DriveModuleDesiredValues
	MinimumTime time.Duration
}

// Duration returns the minimum time of the motion.
func (c DriveModuleMotionCommand) Duration() time.Duration {
	return c.MinimumTime
}

func (c DriveModuleMotionCommand) String() string {
	return fmt.Sprintf("%d module targets in %v", len(c.Targets), c.MinimumTime)
}

func (DriveModuleMotionCommand) isMotionCommand() {}

// State is the lifecycle state of a controller.
type State int

const (
	// Uninitialized controllers have not received a module state yet.
	Uninitialized State = iota
	// Idle controllers know the module states but are not following a trajectory.
	Idle
	// Tracking controllers are following a trajectory.
	Tracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// SteeringController turns motion commands into module trajectories. All methods are safe to
// call concurrently, though state, command and tick updates are expected from a single control
// loop.
type SteeringController interface {
	// OnStateUpdate replaces the measured module states.
	OnStateUpdate(states []kinematics.DriveModuleMeasuredValues) error
	// OnDesiredStateUpdate queues a new motion command. It takes effect on the next tick.
	OnDesiredStateUpdate(cmd MotionCommand) error
	// OnTick advances the controller to now, building a new trajectory when a new command is
	// pending.
	OnTick(now time.Time) error
	// DriveModuleStateAtFutureTime samples the active trajectory for every module at t.
	DriveModuleStateAtFutureTime(t time.Time) ([]kinematics.DriveModuleMeasuredValues, error)
	// BodyState is the estimated chassis state as of the last tick.
	BodyState() kinematics.BodyState
	State() State
	// Degraded reports whether the latest command could not be planned and the controller is
	// still following an older trajectory.
	Degraded() bool
}

// NewSteeringController returns the controller selected by cfg.
func NewSteeringController(cfg Config, logger logging.Logger) (SteeringController, error) {
	switch cfg.Controller {
	case ModuleFirst:
		return NewModuleFirstSteeringController(cfg, logger)
	case BodyFirst:
		return NewBodyFirstSteeringController(cfg, logger)
	}
	return nil, errors.Errorf("unknown controller %q", cfg.Controller)
}

// Package config defines the configuration of a swerve controller and the commands a simulation
// run feeds it, and reads both from JSON files.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/swerve/components/base/swerve"
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/utils"
)

const (
	defaultTickInterval = 20 * time.Millisecond
	// defaultSettleTime is how long a simulation keeps running after its last command when no
	// duration is configured.
	defaultSettleTime = 5 * time.Second
)

// Config is the contents of a swerve configuration file.
type Config struct {
	Controller swerve.Config `json:"controller"`
	Simulation Simulation    `json:"simulation,omitempty"`
	// LogLevel overrides the level of the process logger.
	LogLevel *logging.Level `json:"log_level,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.Controller.Validate("controller"),
		c.Simulation.Validate("simulation"),
	)
}

// Simulation configures a simulated run of the controller.
type Simulation struct {
	TickIntervalMs int     `json:"tick_interval_ms,omitempty"`
	DurationSec    float64 `json:"duration_sec,omitempty"`
	// Tracking makes the simulated modules follow the trajectory through a PID loop per motor
	// instead of tracking it perfectly.
	Tracking *control.PIDConfig `json:"tracking_pid,omitempty"`
	Commands []Command          `json:"commands,omitempty"`
}

// Validate ensures the simulation settings and every command are valid.
func (s *Simulation) Validate(path string) error {
	var errs error
	if s.TickIntervalMs < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("tick_interval_ms must not be negative, got %d", s.TickIntervalMs)))
	}
	if s.DurationSec < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("duration_sec must not be negative, got %v", s.DurationSec)))
	}
	if s.Tracking != nil {
		if err := s.Tracking.Validate(); err != nil {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path+".tracking_pid", err))
		}
	}
	for i, cmd := range s.Commands {
		if _, err := cmd.MotionCommand(); err != nil {
			errs = multierr.Append(errs, utils.NewConfigValidationError(fmt.Sprintf("%s.commands.%d", path, i), err))
		}
	}
	return errs
}

// TickInterval returns the configured tick interval or the default.
func (s *Simulation) TickInterval() time.Duration {
	if s.TickIntervalMs > 0 {
		return time.Duration(s.TickIntervalMs) * time.Millisecond
	}
	return defaultTickInterval
}

// Duration returns the configured run time, or the time of the last command plus a settling time.
func (s *Simulation) Duration() time.Duration {
	if s.DurationSec > 0 {
		return secondsToDuration(s.DurationSec)
	}
	var last time.Duration
	for _, cmd := range s.Commands {
		if at := cmd.At(); at > last {
			last = at
		}
	}
	return last + defaultSettleTime
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// Command types.
const (
	BodyCommandType   = "body"
	ModuleCommandType = "modules"
)

// Command is a motion command issued at a point in a simulation run. Attributes depend on Type:
// BodyCommandAttributes for "body" and ModuleCommandAttributes for "modules".
type Command struct {
	AtSec          float64                `json:"at_sec"`
	Type           string                 `json:"type"`
	MinimumTimeSec float64                `json:"minimum_time_sec,omitempty"`
	Attributes     map[string]interface{} `json:"attributes"`
}

// At returns the time of the command relative to the start of the run.
func (c Command) At() time.Duration {
	return secondsToDuration(c.AtSec)
}

// BodyCommandAttributes are the attributes of a body motion command.
type BodyCommandAttributes struct {
	LinearX  float64 `json:"linear_x"`
	LinearY  float64 `json:"linear_y"`
	AngularZ float64 `json:"angular_z"`
}

// ModuleTarget is the target of one module. A missing steering angle lets the module keep its
// current angle.
type ModuleTarget struct {
	Name          string   `json:"name"`
	SteeringAngle *float64 `json:"steering_angle,omitempty"`
	DriveVelocity float64  `json:"drive_velocity"`
}

// ModuleCommandAttributes are the attributes of a module motion command.
type ModuleCommandAttributes struct {
	Modules []ModuleTarget `json:"modules"`
}

// MotionCommand converts the command into the form the controller accepts.
func (c Command) MotionCommand() (swerve.MotionCommand, error) {
	if c.AtSec < 0 {
		return nil, errors.Errorf("at_sec must not be negative, got %v", c.AtSec)
	}
	if c.MinimumTimeSec < 0 {
		return nil, errors.Errorf("minimum_time_sec must not be negative, got %v", c.MinimumTimeSec)
	}
	minimumTime := secondsToDuration(c.MinimumTimeSec)

	switch c.Type {
	case BodyCommandType:
		attrs, err := TransformAttributeMapToStruct[BodyCommandAttributes](c.Attributes)
		if err != nil {
			return nil, err
		}
		return swerve.BodyMotionCommand{
			Motion:      kinematics.NewBodyMotion(attrs.LinearX, attrs.LinearY, attrs.AngularZ),
			MinimumTime: minimumTime,
		}, nil
	case ModuleCommandType:
		attrs, err := TransformAttributeMapToStruct[ModuleCommandAttributes](c.Attributes)
		if err != nil {
			return nil, err
		}
		if len(attrs.Modules) == 0 {
			return nil, errors.New("module command needs at least one module target")
		}
		targets := make([]kinematics.DriveModuleDesiredValues, len(attrs.Modules))
		for i, m := range attrs.Modules {
			steering := kinematics.Unconstrained()
			if m.SteeringAngle != nil {
				steering = kinematics.SteeringAngle(*m.SteeringAngle)
			}
			targets[i] = kinematics.DriveModuleDesiredValues{Name: m.Name, Steering: steering, DriveVelocity: m.DriveVelocity}
		}
		return swerve.DriveModuleMotionCommand{Targets: targets, MinimumTime: minimumTime}, nil
	case "":
		return nil, errors.New(`"type" is required`)
	default:
		return nil, errors.Errorf("unknown command type %q", c.Type)
	}
}

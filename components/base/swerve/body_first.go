package swerve

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/motionplan"
	"go.viam.com/swerve/spatialmath"
)

// bodyMatchTolerance is how far, in radians and meters per second, a module target may be from
// the module state implied by the body motion it is converted to.
const bodyMatchTolerance = 1e-6

// BodyFirstSteeringController plans in body space: the chassis motion is profiled and sampled,
// and the module states follow from it, so every module stays consistent with a single center of
// rotation during the motion. Module commands that do not describe a rigid body motion are
// planned in module space instead.
type BodyFirstSteeringController struct {
	*controller
}

// NewBodyFirstSteeringController returns a body first controller for the modules in cfg.
func NewBodyFirstSteeringController(cfg Config, logger logging.Logger) (*BodyFirstSteeringController, error) {
	if err := cfg.Validate("controller"); err != nil {
		return nil, err
	}
	model, err := kinematics.NewRigidBodyControlModel(cfg.DriveModules)
	if err != nil {
		return nil, err
	}
	builder, err := motionplan.NewBodyControlledProfileBuilder(
		model, cfg.Profile, cfg.minimumTime(), cfg.resolution(), logger.Sublogger("body_profile"))
	if err != nil {
		return nil, err
	}
	fallback, err := newModulePlanner(model, cfg, logger)
	if err != nil {
		return nil, err
	}
	p := &bodyPlanner{model: model, builder: builder, fallback: fallback, logger: logger}
	return &BodyFirstSteeringController{newController(model, cfg.minimumTime(), p, logger)}, nil
}

type bodyPlanner struct {
	model    *kinematics.RigidBodyControlModel
	builder  *motionplan.BodyControlledProfileBuilder
	fallback *modulePlanner
	logger   logging.Logger
}

func (p *bodyPlanner) plan(
	current []kinematics.DriveModuleMeasuredValues,
	cmd MotionCommand,
	minimumTime float64,
) (*motionplan.ModuleTrajectory, error) {
	var motion kinematics.BodyMotion
	switch c := cmd.(type) {
	case BodyMotionCommand:
		motion = c.Motion
	case DriveModuleMotionCommand:
		m, ok, err := p.bodyMotionFor(current, c.Targets)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Debugw("module targets are not a rigid body motion, planning in module space", "command", c)
			return p.fallback.plan(current, cmd, minimumTime)
		}
		motion = m
	default:
		return nil, errors.Errorf("unsupported motion command %T", cmd)
	}

	if err := p.builder.SetMinimumTime(minimumTime); err != nil {
		return nil, err
	}
	if err := p.builder.SetCurrentState(current); err != nil {
		return nil, err
	}
	p.builder.SetDesiredEndState(motion)
	return p.builder.Profile()
}

// bodyMotionFor finds the body motion that best explains targets and reports whether it
// reproduces every target.
func (p *bodyPlanner) bodyMotionFor(
	current []kinematics.DriveModuleMeasuredValues,
	targets []kinematics.DriveModuleDesiredValues,
) (kinematics.BodyMotion, bool, error) {
	ordered, err := motionplan.OrderTargets(p.model.Index(), p.model.Modules(), targets)
	if err != nil {
		return kinematics.BodyMotion{}, false, err
	}
	states := make([]kinematics.DriveModuleMeasuredValues, len(ordered))
	for i, target := range ordered {
		states[i] = kinematics.DriveModuleMeasuredValues{
			Name:          target.Name,
			SteeringAngle: target.Steering.Resolve(current[i].SteeringAngle),
			DriveVelocity: target.DriveVelocity,
		}
	}
	motion, err := p.model.BodyMotionFromWheelModuleStates(states)
	if err != nil {
		return kinematics.BodyMotion{}, false, err
	}

	for i, solution := range p.model.StateOfWheelModulesFromBodyMotion(motion) {
		if !reproduces(solution.Primary, ordered[i], current[i]) && !reproduces(solution.Alternate, ordered[i], current[i]) {
			return motion, false, nil
		}
	}
	return motion, true, nil
}

// reproduces reports whether driving at solution results in target. A module that does not need
// to move reproduces any stationary target that does not ask it to turn.
func reproduces(
	solution, target kinematics.DriveModuleDesiredValues,
	current kinematics.DriveModuleMeasuredValues,
) bool {
	if math.Abs(solution.DriveVelocity-target.DriveVelocity) > bodyMatchTolerance {
		return false
	}
	space := spatialmath.NewCircularSpace()
	solutionAngle, constrained := solution.Steering.Angle()
	targetAngle := target.Steering.Resolve(current.SteeringAngle)
	if !constrained {
		return math.Abs(space.SmallestDistanceBetweenValues(current.SteeringAngle, targetAngle)) <= bodyMatchTolerance
	}
	if target.Steering.IsUnconstrained() {
		return true
	}
	return math.Abs(space.SmallestDistanceBetweenValues(solutionAngle, targetAngle)) <= bodyMatchTolerance
}

package swerve

import (
	"github.com/pkg/errors"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/motionplan"
)

// ModuleFirstSteeringController plans in module space: each module moves from its current state
// straight to its target state. Body motion commands are converted to module targets first,
// picking for every module the direction that needs the least rotation.
type ModuleFirstSteeringController struct {
	*controller
}

// NewModuleFirstSteeringController returns a module first controller for the modules in cfg.
func NewModuleFirstSteeringController(cfg Config, logger logging.Logger) (*ModuleFirstSteeringController, error) {
	if err := cfg.Validate("controller"); err != nil {
		return nil, err
	}
	model, err := kinematics.NewRigidBodyControlModel(cfg.DriveModules)
	if err != nil {
		return nil, err
	}
	p, err := newModulePlanner(model, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ModuleFirstSteeringController{newController(model, cfg.minimumTime(), p, logger)}, nil
}

type modulePlanner struct {
	model   *kinematics.RigidBodyControlModel
	builder *motionplan.DriveModuleProfileBuilder
}

func newModulePlanner(model *kinematics.RigidBodyControlModel, cfg Config, logger logging.Logger) (*modulePlanner, error) {
	builder, err := motionplan.NewDriveModuleProfileBuilder(
		model.Modules(), cfg.Profile, cfg.minimumTime(), logger.Sublogger("module_profile"))
	if err != nil {
		return nil, err
	}
	return &modulePlanner{model: model, builder: builder}, nil
}

func (p *modulePlanner) plan(
	current []kinematics.DriveModuleMeasuredValues,
	cmd MotionCommand,
	minimumTime float64,
) (*motionplan.ModuleTrajectory, error) {
	targets, err := p.targets(current, cmd)
	if err != nil {
		return nil, err
	}
	if err := p.builder.SetMinimumTime(minimumTime); err != nil {
		return nil, err
	}
	if err := p.builder.SetCurrentState(current); err != nil {
		return nil, err
	}
	if err := p.builder.SetDesiredEndState(targets); err != nil {
		return nil, err
	}
	return p.builder.Profile()
}

func (p *modulePlanner) targets(
	current []kinematics.DriveModuleMeasuredValues,
	cmd MotionCommand,
) ([]kinematics.DriveModuleDesiredValues, error) {
	switch c := cmd.(type) {
	case DriveModuleMotionCommand:
		return c.Targets, nil
	case BodyMotionCommand:
		return motionplan.SelectDirectionsForModules(current, p.model.StateOfWheelModulesFromBodyMotion(c.Motion))
	default:
		return nil, errors.Errorf("unsupported motion command %T", cmd)
	}
}

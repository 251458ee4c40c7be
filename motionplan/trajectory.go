package motionplan

import (
	"math"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/utils"
)

// ModuleStateProfile is a trajectory for every drive module of a chassis. Profiles never change
// once built.
type ModuleStateProfile interface {
	// TimeSpan is the duration of the trajectory in seconds.
	TimeSpan() float64
	// Generation increases every time the producing builder creates a new profile.
	Generation() uint64
	// ValueForModuleAt samples the named module at timeFraction of TimeSpan. Fractions outside
	// [0, 1] are clamped.
	ValueForModuleAt(name string, timeFraction float64) (kinematics.DriveModuleMeasuredValues, error)
	// StatesAt samples every module, in configuration order.
	StatesAt(timeFraction float64) ([]kinematics.DriveModuleMeasuredValues, error)
}

var _ ModuleStateProfile = (*ModuleTrajectory)(nil)

// ModuleTrajectory holds one steering and one drive profile per module. Steering profiles carry
// the angle, drive profiles carry the drive velocity.
type ModuleTrajectory struct {
	generation uint64
	timeSpan   float64
	modules    []kinematics.DriveModule
	index      kinematics.ModuleIndex
	steering   []control.TransientVariableProfile
	drive      []control.TransientVariableProfile
}

// TimeSpan returns the duration of the trajectory in seconds.
func (t *ModuleTrajectory) TimeSpan() float64 {
	return t.timeSpan
}

// Generation returns the build number of this trajectory.
func (t *ModuleTrajectory) Generation() uint64 {
	return t.generation
}

// SteeringProfile returns the steering angle profile of the named module.
func (t *ModuleTrajectory) SteeringProfile(name string) (control.TransientVariableProfile, error) {
	i, err := t.index.Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.steering[i], nil
}

// DriveProfile returns the drive velocity profile of the named module.
func (t *ModuleTrajectory) DriveProfile(name string) (control.TransientVariableProfile, error) {
	i, err := t.index.Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.drive[i], nil
}

func (t *ModuleTrajectory) timeAt(timeFraction float64) (float64, error) {
	if math.IsNaN(timeFraction) {
		return 0, control.NewInvalidTimeFractionError("time fraction is NaN")
	}
	return utils.Clamp(timeFraction, 0, 1) * t.timeSpan, nil
}

func (t *ModuleTrajectory) sample(i int, at float64) kinematics.DriveModuleMeasuredValues {
	steering, drive := t.steering[i], t.drive[i]
	return kinematics.DriveModuleMeasuredValues{
		Name:                 t.modules[i].Name,
		Position:             t.modules[i].SteeringAxisXYPosition,
		SteeringAngle:        steering.ValueAt(at),
		SteeringVelocity:     steering.FirstDerivativeAt(at),
		SteeringAcceleration: steering.SecondDerivativeAt(at),
		SteeringJerk:         steering.ThirdDerivativeAt(at),
		DriveVelocity:        drive.ValueAt(at),
		DriveAcceleration:    drive.FirstDerivativeAt(at),
		DriveJerk:            drive.SecondDerivativeAt(at),
	}
}

// ValueForModuleAt samples the named module at timeFraction of the time span.
func (t *ModuleTrajectory) ValueForModuleAt(name string, timeFraction float64) (kinematics.DriveModuleMeasuredValues, error) {
	i, err := t.index.Lookup(name)
	if err != nil {
		return kinematics.DriveModuleMeasuredValues{}, err
	}
	at, err := t.timeAt(timeFraction)
	if err != nil {
		return kinematics.DriveModuleMeasuredValues{}, err
	}
	return t.sample(i, at), nil
}

// StatesAt samples every module at timeFraction of the time span.
func (t *ModuleTrajectory) StatesAt(timeFraction float64) ([]kinematics.DriveModuleMeasuredValues, error) {
	at, err := t.timeAt(timeFraction)
	if err != nil {
		return nil, err
	}
	states := make([]kinematics.DriveModuleMeasuredValues, len(t.modules))
	for i := range t.modules {
		states[i] = t.sample(i, at)
	}
	return states, nil
}

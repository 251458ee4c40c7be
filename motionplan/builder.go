package motionplan

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// KinematicModel is a control model that knows which drive modules it describes.
type KinematicModel interface {
	kinematics.ControlModel
	Modules() []kinematics.DriveModule
}

// OrderStates returns states in module order. Named states are placed by name, unnamed states
// keep their position.
func OrderStates(
	index kinematics.ModuleIndex,
	modules []kinematics.DriveModule,
	states []kinematics.DriveModuleMeasuredValues,
) ([]kinematics.DriveModuleMeasuredValues, error) {
	if len(states) != len(modules) {
		return nil, kinematics.NewCardinalityMismatchError(len(modules), len(states))
	}
	ordered := make([]kinematics.DriveModuleMeasuredValues, len(states))
	for i, s := range states {
		slot := i
		if s.Name != "" {
			var err error
			if slot, err = index.Lookup(s.Name); err != nil {
				return nil, err
			}
		}
		ordered[slot] = s
		ordered[slot].Name = modules[slot].Name
	}
	return ordered, nil
}

// OrderTargets is OrderStates for desired module states.
func OrderTargets(
	index kinematics.ModuleIndex,
	modules []kinematics.DriveModule,
	targets []kinematics.DriveModuleDesiredValues,
) ([]kinematics.DriveModuleDesiredValues, error) {
	if len(targets) != len(modules) {
		return nil, kinematics.NewCardinalityMismatchError(len(modules), len(targets))
	}
	ordered := make([]kinematics.DriveModuleDesiredValues, len(targets))
	for i, target := range targets {
		slot := i
		if target.Name != "" {
			var err error
			if slot, err = index.Lookup(target.Name); err != nil {
				return nil, err
			}
		}
		ordered[slot] = target
		ordered[slot].Name = modules[slot].Name
	}
	return ordered, nil
}

func validateTiming(minimumTime float64) error {
	if minimumTime <= 0 || math.IsNaN(minimumTime) {
		return control.NewZeroLengthProfileError(minimumTime)
	}
	return nil
}

// DriveModuleProfileBuilder builds trajectories that take every module straight from its current
// state to a desired module state using a two-point profile. The time span is the minimum time,
// stretched when needed so that no profile peaks above the steering velocity or drive
// acceleration limit of its module.
type DriveModuleProfileBuilder struct {
	modules     []kinematics.DriveModule
	index       kinematics.ModuleIndex
	kind        control.ProfileKind
	generate    control.ProfileGenerator
	minimumTime float64
	logger      logging.Logger

	current    []kinematics.DriveModuleMeasuredValues
	desired    []kinematics.DriveModuleDesiredValues
	generation uint64
	profile    *ModuleTrajectory
}

// NewDriveModuleProfileBuilder returns a builder for modules.
func NewDriveModuleProfileBuilder(
	modules []kinematics.DriveModule,
	kind control.ProfileKind,
	minimumTime float64,
	logger logging.Logger,
) (*DriveModuleProfileBuilder, error) {
	if err := kinematics.ValidateModules(modules); err != nil {
		return nil, err
	}
	if err := validateTiming(minimumTime); err != nil {
		return nil, err
	}
	generate, err := control.GeneratorFor(kind)
	if err != nil {
		return nil, err
	}
	index, err := kinematics.NewModuleIndex(modules)
	if err != nil {
		return nil, err
	}
	return &DriveModuleProfileBuilder{
		modules:     modules,
		index:       index,
		kind:        kind,
		generate:    generate,
		minimumTime: minimumTime,
		logger:      logger,
	}, nil
}

// SetCurrentState sets the start of the next trajectory.
func (b *DriveModuleProfileBuilder) SetCurrentState(states []kinematics.DriveModuleMeasuredValues) error {
	ordered, err := OrderStates(b.index, b.modules, states)
	if err != nil {
		return err
	}
	b.current = ordered
	b.profile = nil
	return nil
}

// SetMinimumTime changes the shortest time span of the next trajectory.
func (b *DriveModuleProfileBuilder) SetMinimumTime(minimumTime float64) error {
	if err := validateTiming(minimumTime); err != nil {
		return err
	}
	b.minimumTime = minimumTime
	b.profile = nil
	return nil
}

// SetDesiredEndState sets the end of the next trajectory.
func (b *DriveModuleProfileBuilder) SetDesiredEndState(states []kinematics.DriveModuleDesiredValues) error {
	ordered, err := OrderTargets(b.index, b.modules, states)
	if err != nil {
		return err
	}
	b.desired = ordered
	b.profile = nil
	return nil
}

// Profile returns the trajectory between the current and desired state. The same trajectory is
// returned until either state changes.
func (b *DriveModuleProfileBuilder) Profile() (*ModuleTrajectory, error) {
	if b.current == nil {
		return nil, NewIncompleteTrajectoryError("current state")
	}
	if b.desired == nil {
		return nil, NewIncompleteTrajectoryError("desired end state")
	}
	if b.profile != nil {
		return b.profile, nil
	}

	circular := spatialmath.NewCircularSpace()
	factor := b.kind.PeakRateFactor()
	timeSpan := b.minimumTime
	ends := make([]float64, len(b.modules))
	for i, m := range b.modules {
		start := b.current[i]
		ends[i] = circular.Normalize(b.desired[i].Steering.Resolve(start.SteeringAngle))
		rotation := math.Abs(circular.SmallestDistanceBetweenValues(start.SteeringAngle, ends[i]))
		change := b.desired[i].DriveVelocity - start.DriveVelocity
		bound := math.Abs(accelerationBound(m.DriveLimits, change))
		timeSpan = math.Max(timeSpan, factor*rotation/m.SteeringLimits.MaxVelocity)
		timeSpan = math.Max(timeSpan, factor*math.Abs(change)/bound)
	}
	if timeSpan > b.minimumTime {
		b.logger.Debugw("stretched module trajectory to respect limits", "minimum", b.minimumTime, "time_span", timeSpan)
	}

	trajectory := &ModuleTrajectory{
		timeSpan: timeSpan,
		modules:  b.modules,
		index:    b.index,
		steering: make([]control.TransientVariableProfile, len(b.modules)),
		drive:    make([]control.TransientVariableProfile, len(b.modules)),
	}
	for i := range b.modules {
		var err error
		start := b.current[i]
		if trajectory.steering[i], err = b.generate(start.SteeringAngle, ends[i], timeSpan, circular); err != nil {
			return nil, err
		}
		if trajectory.drive[i], err = b.generate(
			start.DriveVelocity, b.desired[i].DriveVelocity, timeSpan, spatialmath.NewLinearSpace(),
		); err != nil {
			return nil, err
		}
	}

	b.generation++
	trajectory.generation = b.generation
	b.profile = trajectory
	return trajectory, nil
}

// BodyControlledProfileBuilder builds trajectories that move the chassis from its current body
// motion to a desired body motion. The body motion profile is sampled, every sample is converted
// to module states, and the sampled steps are stretched until all motor limits are met.
type BodyControlledProfileBuilder struct {
	model       KinematicModel
	modules     []kinematics.DriveModule
	index       kinematics.ModuleIndex
	kind        control.ProfileKind
	minimumTime float64
	// resolution is the number of samples per second of minimum time.
	resolution float64
	logger     logging.Logger

	current     []kinematics.DriveModuleMeasuredValues
	currentBody kinematics.BodyMotion
	desired     *kinematics.BodyMotion
	generation  uint64
	profile     *ModuleTrajectory
}

// NewBodyControlledProfileBuilder returns a builder for the modules of model.
func NewBodyControlledProfileBuilder(
	model KinematicModel,
	kind control.ProfileKind,
	minimumTime float64,
	resolution float64,
	logger logging.Logger,
) (*BodyControlledProfileBuilder, error) {
	modules := model.Modules()
	if err := kinematics.ValidateModules(modules); err != nil {
		return nil, err
	}
	if err := validateTiming(minimumTime); err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, errors.Errorf("resolution must be positive, got %v", resolution)
	}
	if _, err := control.GeneratorFor(kind); err != nil {
		return nil, err
	}
	index, err := kinematics.NewModuleIndex(modules)
	if err != nil {
		return nil, err
	}
	return &BodyControlledProfileBuilder{
		model:       model,
		modules:     modules,
		index:       index,
		kind:        kind,
		minimumTime: minimumTime,
		resolution:  resolution,
		logger:      logger,
	}, nil
}

// SetCurrentState sets the start of the next trajectory. The current body motion is estimated
// from the module states.
func (b *BodyControlledProfileBuilder) SetCurrentState(states []kinematics.DriveModuleMeasuredValues) error {
	ordered, err := OrderStates(b.index, b.modules, states)
	if err != nil {
		return err
	}
	body, err := b.model.BodyMotionFromWheelModuleStates(ordered)
	if err != nil {
		return err
	}
	b.current = ordered
	b.currentBody = body
	b.profile = nil
	return nil
}

// SetMinimumTime changes the duration of the sampled body motion profile.
func (b *BodyControlledProfileBuilder) SetMinimumTime(minimumTime float64) error {
	if err := validateTiming(minimumTime); err != nil {
		return err
	}
	b.minimumTime = minimumTime
	b.profile = nil
	return nil
}

// SetDesiredEndState sets the body motion at the end of the next trajectory.
func (b *BodyControlledProfileBuilder) SetDesiredEndState(motion kinematics.BodyMotion) {
	b.desired = &motion
	b.profile = nil
}

// Profile returns the limited trajectory between the current and desired state. The same
// trajectory is returned until either state changes.
func (b *BodyControlledProfileBuilder) Profile() (*ModuleTrajectory, error) {
	if b.current == nil {
		return nil, NewIncompleteTrajectoryError("current state")
	}
	if b.desired == nil {
		return nil, NewIncompleteTrajectoryError("desired end state")
	}
	if b.profile != nil {
		return b.profile, nil
	}

	frames, err := b.sampleFrames()
	if err != nil {
		return nil, err
	}
	if err := newLimiter(b.modules, b.current, b.logger).limit(frames); err != nil {
		return nil, err
	}
	trajectory, err := b.fitWithinLimits(frames)
	if err != nil {
		return nil, err
	}

	b.generation++
	trajectory.generation = b.generation
	b.profile = trajectory
	b.logDiagnostics(trajectory, frames)
	return trajectory, nil
}

// sampleFrames converts evenly spaced samples of the body motion profile into module states.
func (b *BodyControlledProfileBuilder) sampleFrames() ([]frame, error) {
	body, err := NewBodyMotionProfile(b.currentBody, *b.desired, b.minimumTime, b.kind)
	if err != nil {
		return nil, err
	}

	steps := int(math.Ceil(b.minimumTime * b.resolution))
	if steps < 1 {
		steps = 1
	}
	dt := b.minimumTime / float64(steps)

	frames := make([]frame, steps+1)
	frames[0] = frame{steering: make([]float64, len(b.modules)), drive: make([]float64, len(b.modules))}
	for m, s := range b.current {
		frames[0].steering[m] = s.SteeringAngle
		frames[0].drive[m] = s.DriveVelocity
	}

	previous := append([]kinematics.DriveModuleMeasuredValues(nil), b.current...)
	for k := 1; k <= steps; k++ {
		motion := body.MotionAt(b.minimumTime * float64(k) / float64(steps))
		selected, err := SelectDirectionsForModules(previous, b.model.StateOfWheelModulesFromBodyMotion(motion))
		if err != nil {
			return nil, err
		}
		f := frame{dt: dt, steering: make([]float64, len(b.modules)), drive: make([]float64, len(b.modules))}
		for m, target := range selected {
			f.steering[m] = target.Steering.Resolve(previous[m].SteeringAngle)
			f.drive[m] = target.DriveVelocity
			previous[m].SteeringAngle = f.steering[m]
			previous[m].DriveVelocity = f.drive[m]
		}
		frames[k] = f
	}
	return frames, nil
}

const (
	// maxFitIterations bounds how often steps are stretched after fitting before giving up.
	maxFitIterations = 50
	// minimumFitStretch is the smallest factor a step that breaks a limit is stretched by.
	minimumFitStretch = 1.05
)

// stepStretch is the factor a step has to be stretched by for the fitted curves of every module
// to stay within their limits, and the module that needs the most.
type stepStretch struct {
	factor float64
	module int
}

// fitWithinLimits fits the frames and stretches the steps whose fitted curves exceed a limit
// until none do. The limiter only bounds the differences between frames, the curves between them
// can still turn or accelerate faster.
func (b *BodyControlledProfileBuilder) fitWithinLimits(frames []frame) (*ModuleTrajectory, error) {
	for iteration := 0; ; iteration++ {
		trajectory, stretches, err := b.fit(frames)
		if err != nil {
			return nil, err
		}
		worst := 0
		for i := 1; i < len(frames); i++ {
			if stretches[i].factor > stretches[worst].factor {
				worst = i
			}
		}
		if !exceeds(stretches[worst].factor, 1) {
			return trajectory, nil
		}
		if iteration == maxFitIterations {
			return nil, NewInfeasibleMotionError(
				b.modules[stretches[worst].module].Name, worst, "fitted trajectory keeps exceeding the motor limits")
		}
		for i := 1; i < len(frames); i++ {
			if exceeds(stretches[i].factor, 1) {
				frames[i].dt *= math.Max(stretches[i].factor, minimumFitStretch)
			}
		}
		b.logger.Debugw("stretching steps of fitted trajectory",
			"iteration", iteration, "step", worst, "factor", stretches[worst].factor)
	}
}

// fit turns the limited frames into monotone profiles that start with the measured rates and end
// at rest. It also returns, per step, how much that step has to be stretched for the profiles to
// respect the motor limits.
func (b *BodyControlledProfileBuilder) fit(frames []frame) (*ModuleTrajectory, []stepStretch, error) {
	times := make([]float64, len(frames))
	for i := 1; i < len(frames); i++ {
		times[i] = times[i-1] + frames[i].dt
	}
	timeSpan := times[len(times)-1]
	last := frames[len(frames)-1]

	trajectory := &ModuleTrajectory{
		timeSpan: timeSpan,
		modules:  b.modules,
		index:    b.index,
		steering: make([]control.TransientVariableProfile, len(b.modules)),
		drive:    make([]control.TransientVariableProfile, len(b.modules)),
	}
	stretches := make([]stepStretch, len(frames))
	for m, module := range b.modules {
		steering, err := control.NewMultiPointProfile(
			frames[0].steering[m], last.steering[m], timeSpan, spatialmath.NewCircularSpace())
		if err != nil {
			return nil, nil, err
		}
		drive, err := control.NewMultiPointProfile(frames[0].drive[m], last.drive[m], timeSpan, spatialmath.NewLinearSpace())
		if err != nil {
			return nil, nil, err
		}
		for i := 1; i < len(frames)-1; i++ {
			if err := steering.AddValue(times[i], frames[i].steering[m]); err != nil {
				return nil, nil, err
			}
			if err := drive.AddValue(times[i], frames[i].drive[m]); err != nil {
				return nil, nil, err
			}
		}
		steeringLimits, driveLimits := module.SteeringLimits, module.DriveLimits
		steering.SetEndDerivatives(
			utils.Clamp(b.current[m].SteeringVelocity, -steeringLimits.MaxVelocity, steeringLimits.MaxVelocity), 0)
		drive.SetEndDerivatives(
			utils.Clamp(b.current[m].DriveAcceleration, -decelerationLimit(driveLimits), driveLimits.MaxAcceleration), 0)
		for _, p := range []*control.MultiPointProfile{steering, drive} {
			if err := p.SetInterpolation(control.MonotoneInterpolation); err != nil {
				return nil, nil, err
			}
			if err := p.Fit(); err != nil {
				return nil, nil, err
			}
		}

		steeringRates, steeringAccelerations, err := steering.PieceDerivativeRanges()
		if err != nil {
			return nil, nil, err
		}
		driveAccelerations, _, err := drive.PieceDerivativeRanges()
		if err != nil {
			return nil, nil, err
		}
		for piece := range steeringRates {
			// Rates shrink with the stretch factor and accelerations with its square.
			factor := math.Max(
				math.Max(steeringRates[piece].Max, -steeringRates[piece].Min)/steeringLimits.MaxVelocity,
				math.Sqrt(math.Max(0, accelerationRatio(steeringLimits, steeringAccelerations[piece]))),
			)
			factor = math.Max(factor, accelerationRatio(driveLimits, driveAccelerations[piece]))
			if step := piece + 1; factor > stretches[step].factor {
				stretches[step] = stepStretch{factor: factor, module: m}
			}
		}
		trajectory.steering[m] = steering
		trajectory.drive[m] = drive
	}
	return trajectory, stretches, nil
}

// accelerationRatio is how far a range of accelerations reaches relative to the limits, 1 being
// exactly at a limit.
func accelerationRatio(limits kinematics.MotorLimits, accelerations control.Range) float64 {
	return math.Max(accelerations.Max/limits.MaxAcceleration, -accelerations.Min/decelerationLimit(limits))
}

// logDiagnostics reports how consistent the final steering angles are with a single center of
// rotation.
func (b *BodyControlledProfileBuilder) logDiagnostics(trajectory *ModuleTrajectory, frames []frame) {
	positions := make([]r3.Vector, len(b.modules))
	for i, m := range b.modules {
		positions[i] = m.SteeringAxisXYPosition
	}
	points, err := spatialmath.InstantaneousCenterOfRotation(positions, frames[len(frames)-1].steering)
	if err != nil {
		return
	}
	summary, err := spatialmath.SummarizeICR(points)
	if err != nil {
		return
	}
	b.logger.Debugw("built body controlled trajectory",
		"generation", trajectory.generation,
		"time_span", trajectory.timeSpan,
		"steps", len(frames)-1,
		"icr_intersections", summary.Finite,
		"icr_spread", summary.Spread,
	)
}

package motionplan

import (
	"math"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// limitTolerance is the relative amount by which a limit may be exceeded before a step is
// stretched, so that steps already stretched to a limit are left alone.
const limitTolerance = 1e-9

// frame is one sample of a module trajectory: the duration of the step leading up to it and the
// steering angle and drive velocity of every module at its end. The first frame is the start
// state and has no duration.
type frame struct {
	dt       float64
	steering []float64
	drive    []float64
}

func exceeds(value, limit float64) bool {
	return math.Abs(value) > limit*(1+limitTolerance)
}

// decelerationLimit is the magnitude of the most negative acceleration allowed.
func decelerationLimit(limits kinematics.MotorLimits) float64 {
	if limits.MinAcceleration < 0 {
		return -limits.MinAcceleration
	}
	return limits.MaxAcceleration
}

// accelerationBound returns the signed limit matching the direction of acceleration.
func accelerationBound(limits kinematics.MotorLimits, acceleration float64) float64 {
	if acceleration < 0 {
		return -decelerationLimit(limits)
	}
	return limits.MaxAcceleration
}

// limiter stretches the steps of a sampled trajectory until no module exceeds its steering
// velocity, steering acceleration, drive velocity or drive acceleration limit.
type limiter struct {
	modules               []kinematics.DriveModule
	startSteeringVelocity []float64
	space                 spatialmath.CircularSpace
	logger                logging.Logger
}

func newLimiter(
	modules []kinematics.DriveModule,
	start []kinematics.DriveModuleMeasuredValues,
	logger logging.Logger,
) *limiter {
	velocities := make([]float64, len(start))
	for i, s := range start {
		velocities[i] = s.SteeringVelocity
	}
	return &limiter{
		modules:               modules,
		startSteeringVelocity: velocities,
		space:                 spatialmath.NewCircularSpace(),
		logger:                logger,
	}
}

func (l *limiter) steeringDelta(frames []frame, step, module int) float64 {
	return l.space.SmallestDistanceBetweenValues(frames[step-1].steering[module], frames[step].steering[module])
}

// steeringVelocity is the average steering velocity over step, or the measured start velocity
// for the first frame.
func (l *limiter) steeringVelocity(frames []frame, step, module int) float64 {
	if step == 0 {
		return l.startSteeringVelocity[module]
	}
	return l.steeringDelta(frames, step, module) / frames[step].dt
}

func (l *limiter) limit(frames []frame) error {
	minimum := l.limitSteeringVelocity(frames)
	if err := l.limitSteeringAcceleration(frames, minimum); err != nil {
		return err
	}
	l.limitDriveVelocity(frames)
	l.limitDriveAcceleration(frames)
	return nil
}

// limitSteeringVelocity stretches each step so the module turning fastest relative to its limit
// turns exactly at its limit. It returns the shortest allowed duration of every step.
func (l *limiter) limitSteeringVelocity(frames []frame) []float64 {
	minimum := make([]float64, len(frames))
	for i := 1; i < len(frames); i++ {
		for m, module := range l.modules {
			required := math.Abs(l.steeringDelta(frames, i, m)) / module.SteeringLimits.MaxVelocity
			minimum[i] = math.Max(minimum[i], required)
		}
		if minimum[i] > frames[i].dt {
			l.logger.Debugw("stretching step for steering velocity", "step", i, "from", frames[i].dt, "to", minimum[i])
			frames[i].dt = minimum[i]
		}
	}
	return minimum
}

// adjacentDuration is the duration of the neighboring step used to pick between two valid step
// durations. The first step has no predecessor and looks at its successor instead.
func adjacentDuration(frames []frame, step int) float64 {
	if step > 1 {
		return frames[step-1].dt
	}
	if step+1 < len(frames) {
		return frames[step+1].dt
	}
	return frames[step].dt
}

// limitSteeringAcceleration stretches steps in which the change of steering velocity exceeds the
// acceleration limit. The new duration solves a*dt^2 + v*dt - delta = 0 with a at the limit.
func (l *limiter) limitSteeringAcceleration(frames []frame, minimum []float64) error {
	for i := 1; i < len(frames); i++ {
		required := frames[i].dt
		for m, module := range l.modules {
			previous := l.steeringVelocity(frames, i-1, m)
			delta := l.steeringDelta(frames, i, m)
			acceleration := (delta/frames[i].dt - previous) / frames[i].dt
			bound := accelerationBound(module.SteeringLimits, acceleration)
			if !exceeds(acceleration, math.Abs(bound)) {
				continue
			}
			dt, err := solveStepDuration(bound, previous, delta, math.Max(frames[i].dt, minimum[i]), adjacentDuration(frames, i))
			if err != nil {
				return NewInfeasibleMotionError(module.Name, i, err.Error())
			}
			required = math.Max(required, math.Max(dt, minimum[i]))
		}
		if required > frames[i].dt {
			l.logger.Debugw("stretching step for steering acceleration", "step", i, "from", frames[i].dt, "to", required)
			frames[i].dt = required
		}
	}
	return nil
}

// limitDriveVelocity scales down every drive velocity of a step in which a module exceeds its
// velocity limit and stretches the step by the same ratio.
func (l *limiter) limitDriveVelocity(frames []frame) {
	for i := 1; i < len(frames); i++ {
		ratio := 1.0
		for m, module := range l.modules {
			if v := frames[i].drive[m]; exceeds(v, module.DriveLimits.MaxVelocity) {
				ratio = math.Min(ratio, module.DriveLimits.MaxVelocity/math.Abs(v))
			}
		}
		if ratio >= 1 {
			continue
		}
		l.logger.Debugw("scaling step for drive velocity", "step", i, "ratio", ratio)
		for m := range frames[i].drive {
			frames[i].drive[m] *= ratio
		}
		frames[i].dt /= ratio
	}
}

// limitDriveAcceleration stretches steps in which the change of drive velocity exceeds the
// acceleration limit.
func (l *limiter) limitDriveAcceleration(frames []frame) {
	for i := 1; i < len(frames); i++ {
		required := frames[i].dt
		for m, module := range l.modules {
			delta := frames[i].drive[m] - frames[i-1].drive[m]
			bound := math.Abs(accelerationBound(module.DriveLimits, delta))
			required = math.Max(required, math.Abs(delta)/bound)
		}
		if required > frames[i].dt*(1+limitTolerance) {
			l.logger.Debugw("stretching step for drive acceleration", "step", i, "from", frames[i].dt, "to", required)
			frames[i].dt = required
		}
	}
}

// solveStepDuration returns the positive root of a*dt^2 + v*dt - delta = 0 that is at least
// current. When both roots qualify the one whose ratio to adjacent is closest to one wins, and
// exact ties go to the longer duration. When neither qualifies the larger root is returned.
//
// While decelerating both roots can be positive and every duration strictly between them breaks
// the limit, so a step already longer than the smaller root has to grow to the larger one.
func solveStepDuration(a, v, delta, current, adjacent float64) (float64, error) {
	discriminant := v*v + 4*a*delta
	if discriminant < 0 {
		return 0, errNegativeDiscriminant
	}
	root := math.Sqrt(discriminant)
	candidates := []float64{(-v + root) / (2 * a), (-v - root) / (2 * a)}

	best := math.NaN()
	bestScore := math.Inf(1)
	largest := math.NaN()
	for _, dt := range candidates {
		if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
			continue
		}
		if math.IsNaN(largest) || dt > largest {
			largest = dt
		}
		if dt < current*(1-limitTolerance) {
			continue
		}
		score := ratioScore(dt, adjacent)
		switch {
		case math.IsNaN(best):
			best, bestScore = dt, score
		case utils.Float64AlmostEqual(score, bestScore):
			best = math.Max(best, dt)
		case score < bestScore:
			best, bestScore = dt, score
		}
	}
	if math.IsNaN(largest) {
		return 0, errNoPositiveDuration
	}
	if math.IsNaN(best) {
		return largest, nil
	}
	return best, nil
}

// ratioScore is max(dt/adjacent, adjacent/dt), which is 1 for equal durations. Without an
// adjacent duration every candidate scores the same.
func ratioScore(dt, adjacent float64) float64 {
	if adjacent <= 0 {
		return 1
	}
	return math.Max(dt/adjacent, adjacent/dt)
}

package kinematics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// ControlModel converts between chassis motion and per-module states.
type ControlModel interface {
	// BodyMotionFromWheelModuleStates estimates the chassis motion that best explains the
	// measured module states in the least squares sense.
	BodyMotionFromWheelModuleStates(states []DriveModuleMeasuredValues) (BodyMotion, error)
	// StateOfWheelModulesFromBodyMotion returns, for each module in configuration order, the two
	// module states that realise the motion.
	StateOfWheelModulesFromBodyMotion(motion BodyMotion) []KinematicSolution
}

// RigidBodyControlModel treats the chassis as a rigid body with every steering axis fixed to it.
// The velocity of module i at (x, y) is (vx - wz*y, vy + wz*x).
type RigidBodyControlModel struct {
	modules []DriveModule
	index   ModuleIndex
	// inverse is the 3 x 2N pseudo-inverse of the 2N x 3 matrix mapping (vx, vy, wz) onto the
	// stacked module velocities.
	inverse *mat.Dense
	space   spatialmath.CircularSpace
}

// NewRigidBodyControlModel precomputes the kinematics for modules.
func NewRigidBodyControlModel(modules []DriveModule) (*RigidBodyControlModel, error) {
	if len(modules) == 0 {
		return nil, errors.New("at least one drive module is required")
	}
	index, err := NewModuleIndex(modules)
	if err != nil {
		return nil, err
	}

	forward := mat.NewDense(2*len(modules), 3, nil)
	for i, m := range modules {
		p := m.SteeringAxisXYPosition
		forward.SetRow(2*i, []float64{1, 0, -p.Y})
		forward.SetRow(2*i+1, []float64{0, 1, p.X})
	}
	inverse, err := pseudoInverse(forward)
	if err != nil {
		return nil, err
	}

	return &RigidBodyControlModel{
		modules: append([]DriveModule(nil), modules...),
		index:   index,
		inverse: inverse,
		space:   spatialmath.NewCircularSpace(),
	}, nil
}

// pseudoInverse returns the Moore-Penrose inverse of a using its singular value decomposition.
func pseudoInverse(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition of the kinematics matrix failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	rows, cols := a.Dims()
	tolerance := float64(max(rows, cols)) * floats.Max(values) * 1e-15
	sigmaInverse := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > tolerance {
			sigmaInverse.Set(i, i, 1/s)
		}
	}

	var inverse mat.Dense
	inverse.Product(&v, sigmaInverse, u.T())
	return &inverse, nil
}

// Modules returns the configured drive modules.
func (c *RigidBodyControlModel) Modules() []DriveModule {
	return append([]DriveModule(nil), c.modules...)
}

// Index returns the name to position map of the configured modules.
func (c *RigidBodyControlModel) Index() ModuleIndex {
	return c.index
}

// BodyMotionFromWheelModuleStates estimates body velocity and acceleration from the measured
// module states. States are matched to modules by name when they carry one and by position
// otherwise.
func (c *RigidBodyControlModel) BodyMotionFromWheelModuleStates(states []DriveModuleMeasuredValues) (BodyMotion, error) {
	if len(states) != len(c.modules) {
		return BodyMotion{}, NewCardinalityMismatchError(len(c.modules), len(states))
	}

	velocities := mat.NewVecDense(2*len(c.modules), nil)
	accelerations := mat.NewVecDense(2*len(c.modules), nil)
	for i, state := range states {
		slot := i
		if state.Name != "" {
			var err error
			if slot, err = c.index.Lookup(state.Name); err != nil {
				return BodyMotion{}, err
			}
		}
		vx, vy := state.XYDriveVelocity()
		ax, ay := state.XYDriveAcceleration()
		velocities.SetVec(2*slot, vx)
		velocities.SetVec(2*slot+1, vy)
		accelerations.SetVec(2*slot, ax)
		accelerations.SetVec(2*slot+1, ay)
	}

	var body, bodyAcceleration mat.VecDense
	body.MulVec(c.inverse, velocities)
	bodyAcceleration.MulVec(c.inverse, accelerations)

	motion := NewBodyMotion(body.AtVec(0), body.AtVec(1), body.AtVec(2))
	motion.LinearAcceleration.X = bodyAcceleration.AtVec(0)
	motion.LinearAcceleration.Y = bodyAcceleration.AtVec(1)
	motion.AngularAcceleration.Z = bodyAcceleration.AtVec(2)
	return motion, nil
}

// StateOfWheelModulesFromBodyMotion computes the steering angle and drive velocity each module
// needs for motion. If any module would exceed its maximum drive velocity every module is slowed
// by the same factor so the chassis still follows the commanded path.
func (c *RigidBodyControlModel) StateOfWheelModulesFromBodyMotion(motion BodyMotion) []KinematicSolution {
	vx, vy, wz := motion.LinearVelocity.X, motion.LinearVelocity.Y, motion.AngularVelocity.Z

	type moduleVelocity struct{ x, y, speed float64 }
	velocities := make([]moduleVelocity, len(c.modules))
	scale := 1.0
	for i, m := range c.modules {
		p := m.SteeringAxisXYPosition
		mv := moduleVelocity{x: vx - wz*p.Y, y: vy + wz*p.X}
		mv.speed = math.Hypot(mv.x, mv.y)
		velocities[i] = mv
		if limit := m.DriveLimits.MaxVelocity; limit > 0 && mv.speed > limit {
			scale = math.Min(scale, limit/mv.speed)
		}
	}

	solutions := make([]KinematicSolution, len(c.modules))
	for i, m := range c.modules {
		mv := velocities[i]
		if scalar.EqualWithinAbsOrRel(mv.speed, 0, utils.DefaultEpsilon, utils.DefaultEpsilon) {
			solutions[i] = KinematicSolution{
				Primary:   DriveModuleDesiredValues{Name: m.Name, Steering: Unconstrained()},
				Alternate: DriveModuleDesiredValues{Name: m.Name, Steering: Unconstrained()},
			}
			continue
		}

		angle := math.Acos(utils.Clamp(mv.x/mv.speed, -1, 1))
		if mv.y < 0 {
			angle = -angle
		}
		angle = c.space.Normalize(angle)
		speed := mv.speed * scale
		solutions[i] = KinematicSolution{
			Primary: DriveModuleDesiredValues{
				Name:          m.Name,
				Steering:      SteeringAngle(angle),
				DriveVelocity: speed,
			},
			Alternate: DriveModuleDesiredValues{
				Name:          m.Name,
				Steering:      SteeringAngle(c.space.Normalize(angle + math.Pi)),
				DriveVelocity: -speed,
			},
		}
	}
	return solutions
}

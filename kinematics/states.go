package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// DriveModuleMeasuredValues is the observed state of a drive module.
type DriveModuleMeasuredValues struct {
	Name     string
	Position r3.Vector

	SteeringAngle        float64
	SteeringVelocity     float64
	SteeringAcceleration float64
	SteeringJerk         float64

	DriveVelocity     float64
	DriveAcceleration float64
	DriveJerk         float64
}

// XYDriveVelocity splits the drive velocity into body frame x and y components.
func (m DriveModuleMeasuredValues) XYDriveVelocity() (float64, float64) {
	return m.DriveVelocity * math.Cos(m.SteeringAngle), m.DriveVelocity * math.Sin(m.SteeringAngle)
}

// XYDriveAcceleration is the time derivative of XYDriveVelocity.
func (m DriveModuleMeasuredValues) XYDriveAcceleration() (float64, float64) {
	sin, cos := math.Sincos(m.SteeringAngle)
	return m.DriveAcceleration*cos - m.DriveVelocity*sin*m.SteeringVelocity,
		m.DriveAcceleration*sin + m.DriveVelocity*cos*m.SteeringVelocity
}

// SteeringTarget is either a concrete steering angle or Unconstrained, which is used when the
// wheel does not need to move and so any angle satisfies the motion.
type SteeringTarget struct {
	angle         float64
	unconstrained bool
}

// SteeringAngle returns a target at the given angle in radians.
func SteeringAngle(angle float64) SteeringTarget {
	return SteeringTarget{angle: angle}
}

// Unconstrained returns the target that accepts any steering angle.
func Unconstrained() SteeringTarget {
	return SteeringTarget{unconstrained: true}
}

// Angle returns the target angle. ok is false when the target is unconstrained.
func (s SteeringTarget) Angle() (angle float64, ok bool) {
	return s.angle, !s.unconstrained
}

// IsUnconstrained reports whether any angle satisfies the target.
func (s SteeringTarget) IsUnconstrained() bool {
	return s.unconstrained
}

// Resolve returns the target angle, or previous when the target is unconstrained.
func (s SteeringTarget) Resolve(previous float64) float64 {
	if s.unconstrained {
		return previous
	}
	return s.angle
}

func (s SteeringTarget) String() string {
	if s.unconstrained {
		return "unconstrained"
	}
	return fmt.Sprintf("%.4f rad", s.angle)
}

// DriveModuleDesiredValues is a target state for a drive module.
type DriveModuleDesiredValues struct {
	Name          string
	Steering      SteeringTarget
	DriveVelocity float64
}

// KinematicSolution holds the two equivalent module states that produce the same wheel motion:
// the alternate is steered half a turn away and drives in reverse.
type KinematicSolution struct {
	Primary   DriveModuleDesiredValues
	Alternate DriveModuleDesiredValues
}

// BodyMotion is the motion of the chassis in its own frame. Only X and Y of the linear terms and
// Z of the angular terms are used by planar chassis.
type BodyMotion struct {
	LinearVelocity      r3.Vector
	AngularVelocity     r3.Vector
	LinearAcceleration  r3.Vector
	AngularAcceleration r3.Vector
	LinearJerk          r3.Vector
	AngularJerk         r3.Vector
}

// NewBodyMotion returns a planar motion with the given velocities and no acceleration or jerk.
func NewBodyMotion(vx, vy, wz float64) BodyMotion {
	return BodyMotion{
		LinearVelocity:  r3.Vector{X: vx, Y: vy},
		AngularVelocity: r3.Vector{Z: wz},
	}
}

// BodyState is the chassis pose in the world frame together with its motion.
type BodyState struct {
	Position r3.Vector
	// Orientation holds roll, pitch and yaw in radians.
	Orientation r3.Vector
	Motion      BodyMotion
}

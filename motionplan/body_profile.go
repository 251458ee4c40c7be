package motionplan

import (
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// BodyMotionProfile moves the chassis velocity from a start to an end body motion. The linear x,
// linear y and angular z velocities each follow their own profile of the same kind and duration.
type BodyMotionProfile struct {
	timeSpan float64
	linearX  control.TransientVariableProfile
	linearY  control.TransientVariableProfile
	angularZ control.TransientVariableProfile
}

// NewBodyMotionProfile returns a profile from start to end over timeSpan seconds.
func NewBodyMotionProfile(
	start, end kinematics.BodyMotion,
	timeSpan float64,
	kind control.ProfileKind,
) (*BodyMotionProfile, error) {
	generate, err := control.GeneratorFor(kind)
	if err != nil {
		return nil, err
	}
	space := spatialmath.NewLinearSpace()
	p := &BodyMotionProfile{timeSpan: timeSpan}
	if p.linearX, err = generate(start.LinearVelocity.X, end.LinearVelocity.X, timeSpan, space); err != nil {
		return nil, err
	}
	if p.linearY, err = generate(start.LinearVelocity.Y, end.LinearVelocity.Y, timeSpan, space); err != nil {
		return nil, err
	}
	if p.angularZ, err = generate(start.AngularVelocity.Z, end.AngularVelocity.Z, timeSpan, space); err != nil {
		return nil, err
	}
	return p, nil
}

// TimeSpan returns the duration of the profile in seconds.
func (p *BodyMotionProfile) TimeSpan() float64 {
	return p.timeSpan
}

// MotionAt returns the body velocity, acceleration and jerk t seconds into the profile.
func (p *BodyMotionProfile) MotionAt(t float64) kinematics.BodyMotion {
	motion := kinematics.NewBodyMotion(p.linearX.ValueAt(t), p.linearY.ValueAt(t), p.angularZ.ValueAt(t))
	motion.LinearAcceleration.X = p.linearX.FirstDerivativeAt(t)
	motion.LinearAcceleration.Y = p.linearY.FirstDerivativeAt(t)
	motion.AngularAcceleration.Z = p.angularZ.FirstDerivativeAt(t)
	motion.LinearJerk.X = p.linearX.SecondDerivativeAt(t)
	motion.LinearJerk.Y = p.linearY.SecondDerivativeAt(t)
	motion.AngularJerk.Z = p.angularZ.SecondDerivativeAt(t)
	return motion
}

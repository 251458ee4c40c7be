package motionplan

import (
	"math"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

type directionCost struct {
	rotation       float64
	velocityChange float64
}

// less orders costs by rotation first and velocity change second.
func (c directionCost) less(other directionCost) bool {
	if !utils.Float64AlmostEqual(c.rotation, other.rotation) {
		return c.rotation < other.rotation
	}
	return c.velocityChange < other.velocityChange
}

// SelectDirectionsForModules picks, for each module, whichever of the two kinematic solutions
// needs the least steering rotation from the current state, breaking ties on the change in drive
// velocity. Unconstrained steering resolves to the current angle for the primary solution and
// the opposite angle for the alternate. The returned states always carry concrete angles and are
// in the order of current.
func SelectDirectionsForModules(
	current []kinematics.DriveModuleMeasuredValues,
	solutions []kinematics.KinematicSolution,
) ([]kinematics.DriveModuleDesiredValues, error) {
	if len(current) != len(solutions) {
		return nil, kinematics.NewCardinalityMismatchError(len(current), len(solutions))
	}

	space := spatialmath.NewCircularSpace()
	result := make([]kinematics.DriveModuleDesiredValues, len(current))
	for i, state := range current {
		primary := solutions[i].Primary
		alternate := solutions[i].Alternate
		primaryAngle := primary.Steering.Resolve(state.SteeringAngle)
		alternateAngle := alternate.Steering.Resolve(space.Normalize(state.SteeringAngle + math.Pi))

		primaryCost := directionCost{
			rotation:       math.Abs(space.SmallestDistanceBetweenValues(state.SteeringAngle, primaryAngle)),
			velocityChange: math.Abs(primary.DriveVelocity - state.DriveVelocity),
		}
		alternateCost := directionCost{
			rotation:       math.Abs(space.SmallestDistanceBetweenValues(state.SteeringAngle, alternateAngle)),
			velocityChange: math.Abs(alternate.DriveVelocity - state.DriveVelocity),
		}

		chosen, angle := primary, primaryAngle
		if alternateCost.less(primaryCost) {
			chosen, angle = alternate, alternateAngle
		}
		result[i] = kinematics.DriveModuleDesiredValues{
			Name:          chosen.Name,
			Steering:      kinematics.SteeringAngle(space.Normalize(angle)),
			DriveVelocity: chosen.DriveVelocity,
		}
	}
	return result, nil
}

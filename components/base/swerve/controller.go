package swerve

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/motionplan"
	"go.viam.com/swerve/spatialmath"
)

// planner builds a trajectory from the measured module states to a command.
type planner interface {
	plan(
		current []kinematics.DriveModuleMeasuredValues,
		cmd MotionCommand,
		minimumTime float64,
	) (*motionplan.ModuleTrajectory, error)
}

// controller holds the state shared by every controller variant. The variants differ only in
// how they plan.
type controller struct {
	mu          sync.Mutex
	logger      logging.Logger
	model       *kinematics.RigidBodyControlModel
	minimumTime float64
	planner     planner

	state    State
	measured []kinematics.DriveModuleMeasuredValues
	body     kinematics.BodyState
	lastTick time.Time

	pending           MotionCommand
	pendingGeneration uint64
	pendingStamp      time.Time

	trajectory      motionplan.ModuleStateProfile
	trajectoryStart time.Time
	builtGeneration uint64
	degraded        bool
}

func newController(
	model *kinematics.RigidBodyControlModel,
	minimumTime float64,
	p planner,
	logger logging.Logger,
) *controller {
	return &controller{
		logger:      logger,
		model:       model,
		minimumTime: minimumTime,
		planner:     p,
	}
}

func (c *controller) OnStateUpdate(states []kinematics.DriveModuleMeasuredValues) error {
	ordered, err := motionplan.OrderStates(c.model.Index(), c.model.Modules(), states)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.measured = ordered
	if c.state == Uninitialized {
		c.state = Idle
		c.logger.Debug("received first module states")
	}
	return nil
}

func (c *controller) OnDesiredStateUpdate(cmd MotionCommand) error {
	if cmd == nil {
		return errors.New("motion command is required")
	}
	if moduleCmd, ok := cmd.(DriveModuleMotionCommand); ok {
		if _, err := motionplan.OrderTargets(c.model.Index(), c.model.Modules(), moduleCmd.Targets); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = cmd
	c.pendingGeneration++
	c.pendingStamp = c.lastTick
	c.logger.Debugw("queued motion command", "command", cmd, "generation", c.pendingGeneration)
	return nil
}

func (c *controller) OnTick(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Uninitialized {
		return motionplan.NewIncompleteTrajectoryError("current state")
	}
	motion, err := c.model.BodyMotionFromWheelModuleStates(c.measured)
	if err != nil {
		return err
	}
	c.updateBodyState(motion, now)

	if c.pending != nil && c.pendingGeneration != c.builtGeneration {
		if err := c.rebuild(now); err != nil {
			return err
		}
	}

	if c.state == Tracking && !now.Before(c.trajectoryEnd()) {
		c.state = Idle
		c.logger.Debugw("trajectory complete", "generation", c.trajectory.Generation())
	}
	return nil
}

// updateBodyState integrates the estimated body motion into the chassis pose. Must be called with
// the lock held.
func (c *controller) updateBodyState(motion kinematics.BodyMotion, now time.Time) {
	if !c.lastTick.IsZero() {
		dt := now.Sub(c.lastTick).Seconds()
		yaw := c.body.Orientation.Z
		sin, cos := math.Sincos(yaw)
		vx, vy := c.body.Motion.LinearVelocity.X, c.body.Motion.LinearVelocity.Y
		c.body.Position.X += (vx*cos - vy*sin) * dt
		c.body.Position.Y += (vx*sin + vy*cos) * dt
		c.body.Orientation.Z = spatialmath.NewCircularSpace().Normalize(yaw + c.body.Motion.AngularVelocity.Z*dt)
	}
	c.body.Motion = motion
	c.lastTick = now
}

// rebuild plans the pending command. Infeasible commands leave the current trajectory in place.
// Must be called with the lock held.
func (c *controller) rebuild(now time.Time) error {
	minimumTime := c.minimumTime
	if d := c.pending.Duration(); d > 0 {
		minimumTime = d.Seconds()
	}

	trajectory, err := c.planner.plan(c.measured, c.pending, minimumTime)
	c.builtGeneration = c.pendingGeneration
	if err != nil {
		if errors.Is(err, motionplan.ErrInfeasibleMotion) {
			c.degraded = true
			c.logger.Warnw("cannot plan command within motor limits, keeping previous trajectory",
				"command", c.pending, "error", err)
			return nil
		}
		return err
	}

	c.trajectory = trajectory
	c.trajectoryStart = now
	c.state = Tracking
	c.degraded = false
	c.logger.Debugw("following new trajectory",
		"generation", trajectory.Generation(),
		"time_span", trajectory.TimeSpan(),
		"command_age", now.Sub(c.pendingStamp),
	)
	return nil
}

func (c *controller) trajectoryEnd() time.Time {
	return c.trajectoryStart.Add(time.Duration(c.trajectory.TimeSpan() * float64(time.Second)))
}

func (c *controller) DriveModuleStateAtFutureTime(t time.Time) ([]kinematics.DriveModuleMeasuredValues, error) {
	c.mu.Lock()
	trajectory, start := c.trajectory, c.trajectoryStart
	c.mu.Unlock()

	if trajectory == nil {
		return nil, ErrNoActiveTrajectory
	}
	return trajectory.StatesAt(t.Sub(start).Seconds() / trajectory.TimeSpan())
}

func (c *controller) BodyState() kinematics.BodyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.body
}

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

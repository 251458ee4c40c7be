package swerve

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/motionplan"
)

var t0 = time.Unix(1700000000, 0)

func unitLimits() kinematics.MotorLimits {
	return kinematics.MotorLimits{MaxVelocity: 1, MinAcceleration: -1, MaxAcceleration: 1}
}

func testConfig(kind ControllerKind) Config {
	positions := []r3.Vector{{X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5}, {X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}}
	modules := make([]kinematics.DriveModule, len(positions))
	for i, p := range positions {
		modules[i] = kinematics.DriveModule{
			Name:                   []string{"module_1", "module_2", "module_3", "module_4"}[i],
			SteeringAxisXYPosition: p,
			WheelRadius:            0.1,
			SteeringLimits:         unitLimits(),
			DriveLimits:            unitLimits(),
		}
	}
	return Config{
		Controller:     kind,
		Profile:        control.LinearProfileKind,
		MinimumTimeSec: 1,
		Resolution:     20,
		DriveModules:   modules,
	}
}

func statesAt(cfg Config, angle, velocity float64) []kinematics.DriveModuleMeasuredValues {
	states := make([]kinematics.DriveModuleMeasuredValues, len(cfg.DriveModules))
	for i, m := range cfg.DriveModules {
		states[i] = kinematics.DriveModuleMeasuredValues{Name: m.Name, SteeringAngle: angle, DriveVelocity: velocity}
	}
	return states
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(ModuleFirst)
	test.That(t, cfg.Validate("controller"), test.ShouldBeNil)

	cfg.Controller = ""
	err := cfg.Validate("controller")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"controller" is required`)

	cfg.Controller = "diagonal"
	test.That(t, cfg.Validate("controller").Error(), test.ShouldContainSubstring, `unknown controller "diagonal"`)

	cfg = testConfig(BodyFirst)
	cfg.MinimumTimeSec = -1
	test.That(t, cfg.Validate("controller").Error(), test.ShouldContainSubstring, "minimum_time_sec")

	cfg = testConfig(BodyFirst)
	cfg.DriveModules = nil
	test.That(t, cfg.Validate("controller").Error(), test.ShouldContainSubstring, `"drive_modules" is required`)

	cfg = testConfig(BodyFirst)
	cfg.DriveModules[2].DriveLimits.MaxAcceleration = 0
	err = cfg.Validate("controller")
	test.That(t, errors.Is(err, kinematics.ErrInvalidLimit), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "drive_modules.2.drive_limits.max_acceleration")

	cfg = testConfig(ModuleFirst)
	cfg.MinimumTimeSec = 0
	cfg.Resolution = 0
	test.That(t, cfg.minimumTime(), test.ShouldEqual, defaultMinimumTime)
	test.That(t, cfg.resolution(), test.ShouldEqual, defaultResolution)
}

func TestNewSteeringController(t *testing.T) {
	logger := logging.NewTestLogger(t)

	c, err := NewSteeringController(testConfig(ModuleFirst), logger)
	test.That(t, err, test.ShouldBeNil)
	_, ok := c.(*ModuleFirstSteeringController)
	test.That(t, ok, test.ShouldBeTrue)

	c, err = NewSteeringController(testConfig(BodyFirst), logger)
	test.That(t, err, test.ShouldBeNil)
	_, ok = c.(*BodyFirstSteeringController)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = NewSteeringController(testConfig("sideways"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestModuleFirstLifecycle(t *testing.T) {
	cfg := testConfig(ModuleFirst)
	c, err := NewModuleFirstSteeringController(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Uninitialized)

	err = c.OnTick(t0)
	test.That(t, errors.Is(err, motionplan.ErrIncompleteTrajectory), test.ShouldBeTrue)
	_, err = c.DriveModuleStateAtFutureTime(t0)
	test.That(t, err, test.ShouldBeError, ErrNoActiveTrajectory)

	err = c.OnStateUpdate(statesAt(cfg, 0, 0)[:3])
	test.That(t, errors.Is(err, kinematics.ErrCardinalityMismatch), test.ShouldBeTrue)
	test.That(t, c.State(), test.ShouldEqual, Uninitialized)

	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 0)), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Idle)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Idle)

	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(1, 0, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(100*time.Millisecond)), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Tracking)
	test.That(t, c.Degraded(), test.ShouldBeFalse)

	states, err := c.DriveModuleStateAtFutureTime(t0.Add(600 * time.Millisecond))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states, test.ShouldHaveLength, 4)
	for _, s := range states {
		test.That(t, s.SteeringAngle, test.ShouldAlmostEqual, 0)
		test.That(t, s.DriveVelocity, test.ShouldAlmostEqual, 0.5)
	}

	// Sampling past the end holds the final state.
	states, err = c.DriveModuleStateAtFutureTime(t0.Add(time.Minute))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states[3].DriveVelocity, test.ShouldAlmostEqual, 1)

	test.That(t, c.OnTick(t0.Add(1100*time.Millisecond)), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Idle)
}

func TestModuleCommandValidation(t *testing.T) {
	cfg := testConfig(ModuleFirst)
	c, err := NewModuleFirstSteeringController(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.OnDesiredStateUpdate(nil), test.ShouldNotBeNil)

	targets := []kinematics.DriveModuleDesiredValues{{Name: "module_1", Steering: kinematics.SteeringAngle(0)}}
	err = c.OnDesiredStateUpdate(DriveModuleMotionCommand{Targets: targets})
	test.That(t, errors.Is(err, kinematics.ErrCardinalityMismatch), test.ShouldBeTrue)

	targets = make([]kinematics.DriveModuleDesiredValues, 4)
	for i := range targets {
		targets[i] = kinematics.DriveModuleDesiredValues{Name: "module_1"}
	}
	targets[3].Name = "module_9"
	err = c.OnDesiredStateUpdate(DriveModuleMotionCommand{Targets: targets})
	test.That(t, errors.Is(err, kinematics.ErrUnknownModule), test.ShouldBeTrue)
}

func TestModuleFirstModuleCommand(t *testing.T) {
	cfg := testConfig(ModuleFirst)
	c, err := NewModuleFirstSteeringController(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 0)), test.ShouldBeNil)

	targets := make([]kinematics.DriveModuleDesiredValues, 4)
	for i, m := range cfg.DriveModules {
		targets[i] = kinematics.DriveModuleDesiredValues{Name: m.Name, Steering: kinematics.SteeringAngle(0.5)}
	}
	cmd := DriveModuleMotionCommand{Targets: targets, MinimumTime: 2 * time.Second}
	test.That(t, c.OnDesiredStateUpdate(cmd), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)

	states, err := c.DriveModuleStateAtFutureTime(t0.Add(time.Second))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states[0].SteeringAngle, test.ShouldAlmostEqual, 0.25)
	test.That(t, states[0].SteeringVelocity, test.ShouldAlmostEqual, 0.25)
}

type fakePlanner struct {
	inner planner
	calls int
	fail  bool
}

func (f *fakePlanner) plan(
	current []kinematics.DriveModuleMeasuredValues,
	cmd MotionCommand,
	minimumTime float64,
) (*motionplan.ModuleTrajectory, error) {
	f.calls++
	if f.fail {
		return nil, motionplan.NewInfeasibleMotionError("module_1", 1, "test")
	}
	return f.inner.plan(current, cmd, minimumTime)
}

func newFakeController(t *testing.T, logger logging.Logger) (*controller, *fakePlanner) {
	t.Helper()
	cfg := testConfig(ModuleFirst)
	model, err := kinematics.NewRigidBodyControlModel(cfg.DriveModules)
	test.That(t, err, test.ShouldBeNil)
	inner, err := newModulePlanner(model, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	fake := &fakePlanner{inner: inner}
	c := newController(model, cfg.minimumTime(), fake, logger)
	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 0)), test.ShouldBeNil)
	return c, fake
}

func TestRebuildOnlyForNewCommands(t *testing.T) {
	c, fake := newFakeController(t, logging.NewTestLogger(t))

	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(0.5, 0, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(10*time.Millisecond)), test.ShouldBeNil)
	test.That(t, fake.calls, test.ShouldEqual, 1)
	first := c.trajectory

	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(0.2, 0, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(20*time.Millisecond)), test.ShouldBeNil)
	test.That(t, fake.calls, test.ShouldEqual, 2)
	test.That(t, c.trajectory.Generation(), test.ShouldBeGreaterThan, first.Generation())
	test.That(t, c.trajectoryStart.Equal(t0.Add(20*time.Millisecond)), test.ShouldBeTrue)
}

func TestInfeasibleCommandKeepsTrajectory(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	c, fake := newFakeController(t, logger)

	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(1, 0, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	before, err := c.DriveModuleStateAtFutureTime(t0.Add(500 * time.Millisecond))
	test.That(t, err, test.ShouldBeNil)

	fake.fail = true
	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(0, 1, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(100*time.Millisecond)), test.ShouldBeNil)
	test.That(t, c.Degraded(), test.ShouldBeTrue)
	test.That(t, c.State(), test.ShouldEqual, Tracking)
	test.That(t, logs.FilterMessageSnippet("keeping previous trajectory").Len(), test.ShouldEqual, 1)

	after, err := c.DriveModuleStateAtFutureTime(t0.Add(500 * time.Millisecond))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, after, test.ShouldResemble, before)

	// The failed command is not retried on every tick.
	test.That(t, c.OnTick(t0.Add(200*time.Millisecond)), test.ShouldBeNil)
	test.That(t, fake.calls, test.ShouldEqual, 2)

	fake.fail = false
	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(0.5, 0, 0)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(300*time.Millisecond)), test.ShouldBeNil)
	test.That(t, c.Degraded(), test.ShouldBeFalse)
}

func TestBodyStateIntegration(t *testing.T) {
	cfg := testConfig(ModuleFirst)
	c, err := NewModuleFirstSteeringController(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 1)), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	test.That(t, c.OnTick(t0.Add(2*time.Second)), test.ShouldBeNil)

	body := c.BodyState()
	test.That(t, body.Motion.LinearVelocity.X, test.ShouldAlmostEqual, 1)
	test.That(t, body.Position.X, test.ShouldAlmostEqual, 2)
	test.That(t, body.Position.Y, test.ShouldAlmostEqual, 0)
	test.That(t, body.Orientation.Z, test.ShouldAlmostEqual, 0)
}

func TestBodyFirstRotation(t *testing.T) {
	cfg := testConfig(BodyFirst)
	c, err := NewBodyFirstSteeringController(cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 0)), test.ShouldBeNil)

	test.That(t, c.OnDesiredStateUpdate(BodyMotionCommand{Motion: kinematics.NewBodyMotion(0, 0, 1)}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Tracking)

	states, err := c.DriveModuleStateAtFutureTime(t0.Add(time.Hour))
	test.That(t, err, test.ShouldBeNil)
	for i, s := range states {
		p := cfg.DriveModules[i].SteeringAxisXYPosition
		test.That(t, math.Abs(s.DriveVelocity), test.ShouldAlmostEqual, math.Sqrt2/2, 1e-6)
		vx, vy := s.XYDriveVelocity()
		test.That(t, vx, test.ShouldAlmostEqual, -p.Y, 1e-6)
		test.That(t, vy, test.ShouldAlmostEqual, p.X, 1e-6)
	}

	test.That(t, c.OnTick(t0.Add(time.Hour)), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, Idle)
}

func TestBodyMotionForModuleTargets(t *testing.T) {
	cfg := testConfig(BodyFirst)
	model, err := kinematics.NewRigidBodyControlModel(cfg.DriveModules)
	test.That(t, err, test.ShouldBeNil)
	p := &bodyPlanner{model: model, logger: logging.NewTestLogger(t)}
	current := statesAt(cfg, 0, 0)

	sideways := make([]kinematics.DriveModuleDesiredValues, 4)
	for i, m := range cfg.DriveModules {
		sideways[i] = kinematics.DriveModuleDesiredValues{Name: m.Name, Steering: kinematics.SteeringAngle(math.Pi / 2), DriveVelocity: 0.5}
	}
	motion, ok, err := p.bodyMotionFor(current, sideways)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, motion.LinearVelocity.X, test.ShouldAlmostEqual, 0)
	test.That(t, motion.LinearVelocity.Y, test.ShouldAlmostEqual, 0.5)

	// Reversed modules describe the same motion.
	sideways[2] = kinematics.DriveModuleDesiredValues{Name: "module_3", Steering: kinematics.SteeringAngle(-math.Pi / 2), DriveVelocity: -0.5}
	_, ok, err = p.bodyMotionFor(current, sideways)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	sideways[0].Steering = kinematics.SteeringAngle(0)
	_, ok, err = p.bodyMotionFor(current, sideways)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)

	stopped := make([]kinematics.DriveModuleDesiredValues, 4)
	for i, m := range cfg.DriveModules {
		stopped[i] = kinematics.DriveModuleDesiredValues{Name: m.Name, Steering: kinematics.Unconstrained()}
	}
	_, ok, err = p.bodyMotionFor(current, stopped)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeTrue)

	// Turning in place is not a body motion.
	stopped[1].Steering = kinematics.SteeringAngle(1)
	_, ok, err = p.bodyMotionFor(current, stopped)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestBodyFirstFallsBackToModuleSpace(t *testing.T) {
	cfg := testConfig(BodyFirst)
	logger, logs := logging.NewObservedTestLogger(t)
	c, err := NewBodyFirstSteeringController(cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.OnStateUpdate(statesAt(cfg, 0, 0)), test.ShouldBeNil)

	targets := make([]kinematics.DriveModuleDesiredValues, 4)
	for i, m := range cfg.DriveModules {
		targets[i] = kinematics.DriveModuleDesiredValues{Name: m.Name, Steering: kinematics.SteeringAngle(0.4)}
	}
	test.That(t, c.OnDesiredStateUpdate(DriveModuleMotionCommand{Targets: targets}), test.ShouldBeNil)
	test.That(t, c.OnTick(t0), test.ShouldBeNil)
	test.That(t, logs.FilterMessageSnippet("planning in module space").Len(), test.ShouldEqual, 1)

	states, err := c.DriveModuleStateAtFutureTime(t0.Add(time.Minute))
	test.That(t, err, test.ShouldBeNil)
	for _, s := range states {
		test.That(t, s.SteeringAngle, test.ShouldAlmostEqual, 0.4)
		test.That(t, s.DriveVelocity, test.ShouldAlmostEqual, 0)
	}
}

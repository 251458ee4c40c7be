// Package sim runs a steering controller against simulated drive modules.
package sim

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/swerve/components/base/swerve"
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// ScheduledCommand is a command issued At a time after the start of the run.
type ScheduledCommand struct {
	At      time.Duration
	Command swerve.MotionCommand
}

// Options configure a simulation.
type Options struct {
	TickInterval time.Duration
	Duration     time.Duration
	Commands     []ScheduledCommand
	// Tracking, when set, makes every motor follow its trajectory through a PID loop. Otherwise
	// the modules reach the sampled trajectory exactly on every tick.
	Tracking *control.PIDConfig
}

// Frame is the state of the simulation after one tick.
type Frame struct {
	Elapsed  time.Duration
	States   []kinematics.DriveModuleMeasuredValues
	Body     kinematics.BodyState
	State    swerve.State
	Degraded bool
}

type moduleLoops struct {
	steering *control.PID
	drive    *control.PID
}

// Simulator feeds a controller the state of simulated modules and moves the modules along the
// trajectory the controller produces.
type Simulator struct {
	controller swerve.SteeringController
	modules    []kinematics.DriveModule
	opts       Options
	clock      clock.Clock
	logger     logging.Logger

	start  time.Time
	next   int
	states []kinematics.DriveModuleMeasuredValues
	loops  []moduleLoops
}

// New returns a simulator whose modules start at rest with zero steering angle.
func New(
	controller swerve.SteeringController,
	modules []kinematics.DriveModule,
	opts Options,
	clk clock.Clock,
	logger logging.Logger,
) (*Simulator, error) {
	if opts.TickInterval <= 0 {
		return nil, errors.Errorf("tick interval must be positive, got %v", opts.TickInterval)
	}
	commands := append([]ScheduledCommand(nil), opts.Commands...)
	sort.SliceStable(commands, func(i, j int) bool { return commands[i].At < commands[j].At })
	opts.Commands = commands

	s := &Simulator{
		controller: controller,
		modules:    modules,
		opts:       opts,
		clock:      clk,
		logger:     logger,
		start:      clk.Now(),
		states:     make([]kinematics.DriveModuleMeasuredValues, len(modules)),
	}
	for i, m := range modules {
		s.states[i] = kinematics.DriveModuleMeasuredValues{Name: m.Name, Position: m.SteeringAxisXYPosition}
	}
	if opts.Tracking != nil {
		s.loops = make([]moduleLoops, len(modules))
		for i := range modules {
			steering, err := control.NewPID(*opts.Tracking)
			if err != nil {
				return nil, err
			}
			drive, err := control.NewPID(*opts.Tracking)
			if err != nil {
				return nil, err
			}
			s.loops[i] = moduleLoops{steering: steering, drive: drive}
		}
	}
	return s, nil
}

// Step issues the commands that are due, ticks the controller and moves the modules to where the
// trajectory wants them at the next tick. Per tick logs are written when ctx has debug mode enabled.
func (s *Simulator) Step(ctx context.Context) (Frame, error) {
	now := s.clock.Now()
	elapsed := now.Sub(s.start)

	for s.next < len(s.opts.Commands) && s.opts.Commands[s.next].At <= elapsed {
		cmd := s.opts.Commands[s.next].Command
		s.logger.Infow("issuing command", "elapsed", elapsed, "command", cmd)
		if err := s.controller.OnDesiredStateUpdate(cmd); err != nil {
			return Frame{}, err
		}
		s.next++
	}

	if err := s.controller.OnStateUpdate(s.states); err != nil {
		return Frame{}, err
	}
	if err := s.controller.OnTick(now); err != nil {
		return Frame{}, err
	}

	desired, err := s.controller.DriveModuleStateAtFutureTime(now.Add(s.opts.TickInterval))
	switch {
	case errors.Is(err, swerve.ErrNoActiveTrajectory):
	case err != nil:
		return Frame{}, err
	case s.loops == nil:
		s.states = desired
	default:
		s.track(desired, s.opts.TickInterval)
	}

	frame := Frame{
		Elapsed:  elapsed,
		States:   append([]kinematics.DriveModuleMeasuredValues(nil), s.states...),
		Body:     s.controller.BodyState(),
		State:    s.controller.State(),
		Degraded: s.controller.Degraded(),
	}
	s.logger.CDebugw(ctx, "tick", "elapsed", elapsed, "state", frame.State, "body", frame.Body.Motion.LinearVelocity)
	return frame, nil
}

// track moves every motor towards desired for dt using the PID loops, with the trajectory rates
// as feed forward. Outputs are clamped to the motor limits.
func (s *Simulator) track(desired []kinematics.DriveModuleMeasuredValues, dt time.Duration) {
	space := spatialmath.NewCircularSpace()
	seconds := dt.Seconds()
	for i, m := range s.modules {
		state := &s.states[i]
		loops := s.loops[i]

		angleError := space.SmallestDistanceBetweenValues(state.SteeringAngle, desired[i].SteeringAngle)
		correction, ok := loops.steering.Next(state.SteeringAngle+angleError, state.SteeringAngle, dt)
		if !ok {
			correction = 0
		}
		rate := utils.Clamp(desired[i].SteeringVelocity+correction,
			-m.SteeringLimits.MaxVelocity, m.SteeringLimits.MaxVelocity)
		state.SteeringVelocity = rate
		state.SteeringAngle = space.Normalize(state.SteeringAngle + rate*seconds)

		correction, ok = loops.drive.Next(desired[i].DriveVelocity, state.DriveVelocity, dt)
		if !ok {
			correction = 0
		}
		deceleration := m.DriveLimits.MaxAcceleration
		if m.DriveLimits.MinAcceleration < 0 {
			deceleration = -m.DriveLimits.MinAcceleration
		}
		acceleration := utils.Clamp(desired[i].DriveAcceleration+correction, -deceleration, m.DriveLimits.MaxAcceleration)
		state.DriveAcceleration = acceleration
		state.DriveVelocity += acceleration * seconds
	}
}

// Run steps the simulation until the configured duration has elapsed. A mock clock is advanced by
// the simulator itself, so the run completes as fast as it can be computed.
func (s *Simulator) Run(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	mock, simulated := s.clock.(*clock.Mock)
	var ticker *clock.Ticker
	if !simulated {
		ticker = s.clock.Ticker(s.opts.TickInterval)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		frame, err := s.Step(ctx)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		if frame.Elapsed >= s.opts.Duration {
			return frames, nil
		}

		if simulated {
			mock.Add(s.opts.TickInterval)
			continue
		}
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-ticker.C:
		}
	}
}

package control

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// PIDConfig holds the gains and limits of a PID loop.
type PIDConfig struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
	// IntegralLimit bounds the magnitude of the integral term. Zero disables the bound.
	IntegralLimit float64 `json:"integral_limit,omitempty"`
	// OutputLimit bounds the magnitude of the output. Zero disables the bound.
	OutputLimit float64 `json:"output_limit,omitempty"`
}

// Validate ensures at least one gain is set and limits are not negative.
func (cfg PIDConfig) Validate() error {
	if cfg.Kp == 0 && cfg.Ki == 0 && cfg.Kd == 0 {
		return errors.New("pid should have at least one Ki, Kp or Kd field")
	}
	if cfg.IntegralLimit < 0 || cfg.OutputLimit < 0 {
		return errors.New("pid limits cannot be negative")
	}
	return nil
}

// PID is the standard implementation of a PID controller.
type PID struct {
	mu    sync.Mutex
	cfg   PIDConfig
	error float64
	int   float64
	sat   int
	y     float64
}

// NewPID returns a PID loop using cfg.
func NewPID(cfg PIDConfig) (*PID, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PID{cfg: cfg}, nil
}

// Next returns the discrete step of the PID controller, dt is the delta time between two
// subsequent calls, setPoint is the desired value, measured is the measured value. Returns false
// when the output is invalid (the integral is saturating). In this case continue to use the last
// valid value.
func (p *PID) Next(setPoint, measured float64, dt time.Duration) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dtS := dt.Seconds()
	if dtS <= 0 {
		return p.y, false
	}
	err := setPoint - measured
	if (p.sat > 0 && err > 0) || (p.sat < 0 && err < 0) {
		return p.y, false
	}
	p.int += p.cfg.Ki * err * dtS
	limit := p.cfg.IntegralLimit
	switch {
	case limit > 0 && p.int > limit:
		p.int = limit
		p.sat = 1
	case limit > 0 && p.int < -limit:
		p.int = -limit
		p.sat = -1
	default:
		p.sat = 0
	}
	deriv := (err - p.error) / dtS
	output := p.cfg.Kp*err + p.int + p.cfg.Kd*deriv
	p.error = err
	if bound := p.cfg.OutputLimit; bound > 0 {
		if output > bound {
			output = bound
		} else if output < -bound {
			output = -bound
		}
	}
	p.y = output
	return p.y, true
}

// Reset clears the accumulated state.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.int = 0
	p.error = 0
	p.sat = 0
	p.y = 0
}

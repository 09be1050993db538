// Package difficulty implements the round Difficulty Controller: a PID loop
// over observed round duration, per §4.5.
package difficulty

import (
	"math"
	"sync"
)

const (
	DefaultD        = 1.0
	DefaultMin      = 0.25
	DefaultMax      = 4.0
	DefaultKp       = 0.4
	DefaultKi       = 0.05
	DefaultKd       = 0.1
	historySize     = 20
	roundingFactors = 1e4
)

// Config tunes the PID controller.
type Config struct {
	TargetSeconds float64
	Min           float64
	Max           float64
	Kp            float64
	Ki            float64
	Kd            float64
}

// DefaultConfig returns the spec's default gains and bounds for the given
// target round duration.
func DefaultConfig(targetSeconds float64) Config {
	return Config{
		TargetSeconds: targetSeconds,
		Min:           DefaultMin,
		Max:           DefaultMax,
		Kp:            DefaultKp,
		Ki:            DefaultKi,
		Kd:            DefaultKd,
	}
}

// Sample is one history entry recorded on every update.
type Sample struct {
	ActualSeconds float64
	Err           float64
	Difficulty    float64
}

// Controller holds the running PID state for a single round cadence.
type Controller struct {
	mu sync.Mutex

	cfg Config

	difficulty    float64
	integral      float64
	previousError float64

	history []Sample
}

// New returns a Controller starting at D=1, per the spec default.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, difficulty: DefaultD}
}

// Difficulty returns the current difficulty score.
func (c *Controller) Difficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.difficulty
}

// History returns a copy of the ring buffer, oldest first.
func (c *Controller) History() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sample, len(c.history))
	copy(out, c.history)
	return out
}

// Update feeds actualSeconds (the observed round duration) into the PID loop
// and returns the new, clamped, 4-decimal-rounded difficulty.
func (c *Controller) Update(actualSeconds float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.cfg.TargetSeconds - actualSeconds
	c.integral += err
	derivative := err - c.previousError
	c.previousError = err

	adjustment := c.cfg.Kp*err + c.cfg.Ki*c.integral + c.cfg.Kd*derivative

	next := c.difficulty + adjustment/c.cfg.TargetSeconds
	next = clamp(next, c.cfg.Min, c.cfg.Max)
	next = round4(next)

	c.difficulty = next
	c.history = append(c.history, Sample{ActualSeconds: actualSeconds, Err: err, Difficulty: next})
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}

	return next
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*roundingFactors) / roundingFactors
}

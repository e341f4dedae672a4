package liveline

import (
	"fmt"
	"os"

	"github.com/supergus/ll-spinningup-clean/utils/floatutils"
)

// Controller nudges a single output channel of the process toward its
// setpoint. The controller holds a nudge value which is added to the
// raw (uncontrolled) output of the channel. Agent actions adjust the
// nudge, either by replacing it (absolute mode) or by adding to it
// (incremental mode), subject to the controller's limit pairs.
type Controller struct {
	config ControllerConfig

	nudge      float64
	lastOutput float64
	hasOutput  bool
}

// NewController creates and returns a new Controller
func NewController(config ControllerConfig) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newController: %v", err)
	}
	return &Controller{config: config}, nil
}

// UpdateParameters replaces the controller's configuration at runtime
func (c *Controller) UpdateParameters(config ControllerConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("updateParameters: %v", err)
	}
	c.config = config
	return nil
}

// Config returns the controller's current configuration
func (c *Controller) Config() ControllerConfig {
	return c.config
}

// Nudge returns the controller's current nudge value
func (c *Controller) Nudge() float64 {
	return c.nudge
}

// Apply adjusts the controller's nudge by the argument action. The
// change to the nudge is clipped to the nudge delta bounds, and the
// resulting nudge is clipped to the nudge limit bounds.
func (c *Controller) Apply(action float64) {
	var proposed float64
	switch c.config.ControllerMode {
	case Absolute:
		proposed = action
	case Incremental:
		proposed = c.nudge + action
	}

	delta := floatutils.Clip(proposed-c.nudge, c.config.NudgeDeltaMin,
		c.config.NudgeDeltaMax)
	clipped := floatutils.Clip(c.nudge+delta, c.config.NudgeLimMin,
		c.config.NudgeLimMax)

	if c.config.Verbosity >= WarningsOnly && clipped != proposed {
		fmt.Fprintf(os.Stderr, "Warning: nudge %v clipped to %v\n", proposed,
			clipped)
	}
	c.nudge = clipped
}

// Output returns the controlled output for the argument raw signal
// value: the raw value plus the current nudge, subject to the output
// delta and limit bounds.
func (c *Controller) Output(raw float64) float64 {
	out := raw + c.nudge

	if c.hasOutput {
		delta := floatutils.Clip(out-c.lastOutput, c.config.OutputDeltaMin,
			c.config.OutputDeltaMax)
		out = c.lastOutput + delta
	}
	out = floatutils.Clip(out, c.config.OutputLimMin, c.config.OutputLimMax)

	c.lastOutput = out
	c.hasOutput = true
	return out
}

// Reset clears the controller's nudge and output history between
// episodes
func (c *Controller) Reset() {
	c.nudge = 0
	c.lastOutput = 0
	c.hasOutput = false
}

package liveline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/timestep"
)

// goalTolerance is the per-channel deviation under which the process
// is considered on target
const goalTolerance float64 = 0.05

// ControlTask implements the setpoint tracking task of the liveline
// environment. The reward on each step is a base reward minus the
// root mean squared deviation of the observation from zero (the
// observation is already expressed relative to the setpoints), minus
// penalties on the magnitudes of the agent's actions and of the
// controllers' accumulated nudges.
//
// The Starter of a ControlTask samples playhead offsets into the
// active dataset window rather than state vectors: a starting state
// of the playback environment is a position in the recorded data.
type ControlTask struct {
	environment.Starter
	enders []environment.Ender

	baseReward float64
	rmseFactor float64
	regFactor  float64
	aRegFactor float64
	nRegFactor float64

	controllers []*Controller
}

// newControlTask creates and returns a new ControlTask
func newControlTask(config Config, starter environment.Starter,
	enders []environment.Ender, controllers []*Controller) *ControlTask {
	return &ControlTask{
		Starter:     starter,
		enders:      enders,
		baseReward:  config.BaseReward,
		rmseFactor:  config.RmseFactor,
		regFactor:   config.RegFactor,
		aRegFactor:  config.ARegFactor,
		nRegFactor:  config.NRegFactor,
		controllers: controllers,
	}
}

// End determines whether or not the current episode should be ended.
// The episode ends when any of the task's enders ends it.
func (c *ControlTask) End(t *timestep.TimeStep) bool {
	for _, ender := range c.enders {
		if ender.End(t) {
			return true
		}
	}
	return false
}

// GetReward returns the reward for taking an action, resulting in the
// argument next state
func (c *ControlTask) GetReward(_ mat.Vector, action mat.Vector,
	nextState mat.Vector) float64 {
	reward := c.baseReward
	reward -= c.rmseFactor * rmse(nextState)
	reward -= (c.regFactor + c.aRegFactor) * meanAbs(action)

	if c.nRegFactor != 0 {
		nudges := 0.0
		for _, controller := range c.controllers {
			nudges += math.Abs(controller.Nudge())
		}
		reward -= c.nRegFactor * nudges / float64(len(c.controllers))
	}
	return reward
}

// AtGoal returns whether every output channel is within the goal
// tolerance of its setpoint
func (c *ControlTask) AtGoal(state mat.Matrix) bool {
	rows, cols := state.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.Abs(state.At(i, j)) > goalTolerance {
				return false
			}
		}
	}
	return true
}

// Min returns the minimum possible reward. The tracking and
// regularization penalties are unbounded below.
func (c *ControlTask) Min() float64 {
	return math.Inf(-1)
}

// Max returns the maximum possible reward
func (c *ControlTask) Max() float64 {
	return c.baseReward
}

// RewardSpec returns the reward specification of the Task
func (c *ControlTask) RewardSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	lowerBound := mat.NewVecDense(1, []float64{c.Min()})
	upperBound := mat.NewVecDense(1, []float64{c.Max()})

	return environment.NewSpec(shape, environment.Reward, lowerBound,
		upperBound, environment.Continuous)
}

// rmse returns the root mean squared value of a vector
func rmse(v mat.Vector) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += v.AtVec(i) * v.AtVec(i)
	}
	return math.Sqrt(sum / float64(v.Len()))
}

// meanAbs returns the mean absolute value of a vector
func meanAbs(v mat.Vector) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += math.Abs(v.AtVec(i))
	}
	return sum / float64(v.Len())
}

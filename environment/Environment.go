// Package environment outlines the interfaces and structs needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/supergus/ll-spinningup-clean/timestep"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode ends. Enders modify the TimeStep
// in-place, setting its StepType to timestep.Last and recording the
// kind of ending that occurred.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking an action in some state,
	// resulting in some next state
	GetReward(state mat.Vector, action mat.Vector, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum possible rewards
	Min() float64
	Max() float64

	RewardSpec() Spec
}

// RawSignaler is implemented by environments whose observations are
// derived from an underlying measured signal. RawSignal returns the
// uncontrolled signal at the environment's current position.
type RawSignaler interface {
	RawSignal() *mat.VecDense
}

// Environment implements a simulated environment, which includes a Task to
// complete
type Environment interface {
	Task
	Reset() timestep.TimeStep // Resets between episodes
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

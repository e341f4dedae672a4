// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either a first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType describes how an episode ended. A timeout is an artificial
// ending imposed by a step limit and is not a true terminal state:
// value estimates should still bootstrap through it. Reaching a true
// terminal state zeroes the discount so that no bootstrapping occurs.
type EndType int

const (
	// Nil indicates that the episode has not ended
	Nil EndType = iota

	// TerminalStateReached indicates that the episode ended by the
	// environment reaching a true terminal state
	TerminalStateReached

	// Timeout indicates that the episode was cut off at a step limit
	Timeout
)

func (e EndType) String() string {
	switch e {
	case TerminalStateReached:
		return "TerminalStateReached"
	case Timeout:
		return "Timeout"
	default:
		return "Nil"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType    StepType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
	endType     EndType
}

func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	return TimeStep{t, r, d, o, n, Nil}
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd records how the episode containing this TimeStep ended. A
// TerminalStateReached ending zeroes the discount, since no future
// rewards follow a terminal state. A Timeout leaves the discount
// untouched so that learners continue to bootstrap through the cutoff.
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
	if e == TerminalStateReached {
		t.Discount = 0.0
	}
}

// EndType returns how the episode ended, or Nil if it has not ended
func (t *TimeStep) EndType() EndType {
	return t.endType
}

// TerminalEnd returns whether the TimeStep ended an episode at a true
// terminal state, as opposed to a step-limit cutoff.
func (t *TimeStep) TerminalEnd() bool {
	return t.endType == TerminalStateReached
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}

// Transition packages together a single transition of the
// agent-environment interaction: the raw (uncontrolled) signal at the
// time of the transition, the state the agent was in, the action it
// took, and the resulting reward, discount, and next state.
type Transition struct {
	Raw       mat.Vector
	State     mat.Vector
	Action    mat.Vector
	Reward    float64
	Discount  float64
	NextState mat.Vector
}

// NewTransition packages a transition from step, taking action, and
// arriving at nextStep. The raw argument is the uncontrolled signal
// underlying nextStep and may be nil for environments that have none.
func NewTransition(raw mat.Vector, step TimeStep, action mat.Vector,
	nextStep TimeStep) Transition {
	return Transition{
		Raw:       raw,
		State:     step.Observation,
		Action:    action,
		Reward:    nextStep.Reward,
		Discount:  nextStep.Discount,
		NextState: nextStep.Observation,
	}
}

package environment

import "github.com/supergus/ll-spinningup-clean/timestep"

// StepLimit implements the Ender interface to end episodes at specific
// timestep limits. Endings due to a step limit are timeouts, not
// terminal states: the TimeStep's discount is left untouched so that
// learners bootstrap through the cutoff.
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended, End() will modify the timestep so that its StepType
// field is timestep.Last and its EndType is timestep.Timeout.
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number >= s.episodeSteps {
		t.StepType = timestep.Last
		t.SetEnd(timestep.Timeout)
		return true
	}
	return false
}

package liveline

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/supergus/ll-spinningup-clean/timestep"
)

const gamma float64 = 0.99

// newTestEnv returns a Liveline environment with deterministic
// playback: zero reset index and sequential stepping.
func newTestEnv(t *testing.T, config Config, maxSteps int) *Liveline {
	t.Helper()

	config.ResetIndexMode = ResetZero
	config.StepIndexMode = Sequential

	env, _, err := New(config, NewControllerConfig(config.ControllerMode),
		maxSteps, gamma)
	if err != nil {
		t.Fatalf("could not construct environment: %v", err)
	}
	return env
}

func zeroAction(env *Liveline) *mat.VecDense {
	return mat.NewVecDense(env.config.NumOutputs, nil)
}

func TestObservationBoundEndsEpisodeAtTerminalState(t *testing.T) {
	config := NewConfig()
	config.ActionMax = 10.0
	config.ActionMin = -10.0
	config.ObsMax = 0.5
	config.ObsMin = -0.5
	env := newTestEnv(t, config, 1000)

	// A large absolute nudge pushes every channel far outside the
	// observation bounds
	action := mat.NewVecDense(config.NumOutputs, nil)
	for i := 0; i < config.NumOutputs; i++ {
		action.SetVec(i, 10.0)
	}

	step, last := env.Step(action)
	if !last {
		t.Fatal("expected episode to end when observation leaves bounds")
	}
	if !step.TerminalEnd() {
		t.Errorf("expected a terminal state ending, got %v", step.EndType())
	}
	if step.Discount != 0 {
		t.Errorf("expected zero discount at terminal state, got %v",
			step.Discount)
	}
}

func TestStepLimitEndsEpisodeWithTimeout(t *testing.T) {
	maxSteps := 3
	env := newTestEnv(t, NewConfig(), maxSteps)

	var step timestep.TimeStep
	var last bool
	for i := 0; i < maxSteps; i++ {
		if last {
			t.Fatalf("episode ended early on step %v", i)
		}
		step, last = env.Step(zeroAction(env))
	}

	if !last {
		t.Fatal("expected episode to end at the step limit")
	}
	if step.EndType() != timestep.Timeout {
		t.Errorf("expected a timeout ending, got %v", step.EndType())
	}
	if step.Discount != gamma {
		t.Errorf("timeout should not zero the discount: expected %v, got %v",
			gamma, step.Discount)
	}
}

func TestSequentialSteppingAdvancesPlayheadByOne(t *testing.T) {
	env := newTestEnv(t, NewConfig(), 1000)

	start := env.Playhead()
	for i := 1; i <= 5; i++ {
		env.Step(zeroAction(env))
		if env.Playhead() != start+i {
			t.Fatalf("expected playhead %v after %v steps, got %v", start+i,
				i, env.Playhead())
		}
	}
}

func TestDatasetExhaustionEndsEpisodeWithTimeout(t *testing.T) {
	config := NewConfig()
	config.NumBatches = 204
	config.TrimBatchesStart = 100
	config.TrimBatchesEnd = 100
	env := newTestEnv(t, config, 1000)

	// Playback window holds 4 batches, so the playhead can advance 3
	// times before the data runs out
	var step timestep.TimeStep
	var last bool
	for i := 0; i < 4; i++ {
		if last {
			t.Fatalf("episode ended early on step %v", i)
		}
		step, last = env.Step(zeroAction(env))
	}

	if !last {
		t.Fatal("expected episode to end when the dataset is exhausted")
	}
	if step.EndType() != timestep.Timeout {
		t.Errorf("expected a timeout ending, got %v", step.EndType())
	}
}

func TestActionsAreClippedToActionBounds(t *testing.T) {
	config := NewConfig()
	config.ActionMax = 0.1
	config.ActionMin = -0.1
	config.ObsMax = 100.0
	config.ObsMin = -100.0
	env := newTestEnv(t, config, 1000)

	action := mat.NewVecDense(config.NumOutputs, nil)
	for i := 0; i < config.NumOutputs; i++ {
		action.SetVec(i, 50.0)
	}
	env.Step(action)

	for i, controller := range env.Controllers() {
		if controller.Nudge() != config.ActionMax {
			t.Errorf("controller %v nudge should be clipped to %v, got %v",
				i, config.ActionMax, controller.Nudge())
		}
	}
}

func TestRewardShaping(t *testing.T) {
	config := NewConfig()
	config.BaseReward = 1.0
	config.RmseFactor = 2.0
	config.RegFactor = 0.5
	config.ObsMax = 100.0
	config.ObsMin = -100.0
	env := newTestEnv(t, config, 1000)

	action := mat.NewVecDense(config.NumOutputs, nil)
	for i := 0; i < config.NumOutputs; i++ {
		action.SetVec(i, 0.5)
	}

	step, _ := env.Step(action)
	expected := config.BaseReward - config.RmseFactor*rmse(step.Observation) -
		config.RegFactor*0.5
	if math.Abs(step.Reward-expected) > 1e-12 {
		t.Errorf("incorrect reward: expected %v, got %v", expected,
			step.Reward)
	}
}

func TestResetClearsControllers(t *testing.T) {
	env := newTestEnv(t, NewConfig(), 1000)

	action := mat.NewVecDense(env.config.NumOutputs, nil)
	for i := 0; i < env.config.NumOutputs; i++ {
		action.SetVec(i, 1.0)
	}
	env.Step(action)

	step := env.Reset()
	if !step.First() {
		t.Error("reset should return a First timestep")
	}
	for i, controller := range env.Controllers() {
		if controller.Nudge() != 0 {
			t.Errorf("controller %v nudge should be cleared on reset, got %v",
				i, controller.Nudge())
		}
	}
}

func TestConfigValidation(t *testing.T) {
	config := NewConfig()
	config.ActionMin = 1.0
	config.ActionMax = -1.0
	if _, _, err := New(config, NewControllerConfig(Absolute), 10,
		gamma); err == nil {
		t.Error("expected an error for inverted action bounds")
	}

	config = NewConfig()
	config.ControllerMode = "bang-bang"
	if _, _, err := New(config, NewControllerConfig(Absolute), 10,
		gamma); err == nil {
		t.Error("expected an error for an unknown controller mode")
	}
}

func TestStepLimitTakesPrecedenceOverObservationBound(t *testing.T) {
	config := NewConfig()
	config.ActionMax = 10.0
	config.ActionMin = -10.0
	config.ObsMax = 0.5
	config.ObsMin = -0.5
	env := newTestEnv(t, config, 1)

	// The nudge pushes every channel far outside the observation
	// bounds on the same step that reaches the step limit
	action := mat.NewVecDense(config.NumOutputs, nil)
	for i := 0; i < config.NumOutputs; i++ {
		action.SetVec(i, 10.0)
	}

	step, last := env.Step(action)
	if !last {
		t.Fatal("expected episode to end at the step limit")
	}
	if step.EndType() != timestep.Timeout {
		t.Errorf("expected a timeout ending, got %v", step.EndType())
	}
	if step.TerminalEnd() {
		t.Error("step limit should not record a terminal state ending")
	}
	if step.Discount != gamma {
		t.Errorf("step limit should not zero the discount: expected %v, "+
			"got %v", gamma, step.Discount)
	}
}

func TestObservationsAreClippedToObservationBounds(t *testing.T) {
	config := NewConfig()
	config.ActionMax = 10.0
	config.ActionMin = -10.0
	config.ObsMax = 0.5
	config.ObsMin = -0.5
	env := newTestEnv(t, config, 1000)

	action := mat.NewVecDense(config.NumOutputs, nil)
	for i := 0; i < config.NumOutputs; i++ {
		action.SetVec(i, 10.0)
	}

	// The bound exit still ends the episode, but the stored
	// observation is clipped to the observation bounds
	step, last := env.Step(action)
	if !last || !step.TerminalEnd() {
		t.Fatal("expected a terminal state ending")
	}
	for i := 0; i < step.Observation.Len(); i++ {
		if step.Observation.AtVec(i) < config.ObsMin ||
			step.Observation.AtVec(i) > config.ObsMax {
			t.Errorf("observation component %v out of bounds: %v", i,
				step.Observation.AtVec(i))
		}
	}

	first := env.Reset()
	for i := 0; i < first.Observation.Len(); i++ {
		if first.Observation.AtVec(i) < config.ObsMin ||
			first.Observation.AtVec(i) > config.ObsMax {
			t.Errorf("reset observation component %v out of bounds: %v", i,
				first.Observation.AtVec(i))
		}
	}
}

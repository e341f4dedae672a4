package ddpg

import (
	"math"
	"testing"

	"github.com/supergus/ll-spinningup-clean/environment/liveline"
	"github.com/supergus/ll-spinningup-clean/expreplay"
	"github.com/supergus/ll-spinningup-clean/initwfn"
	"github.com/supergus/ll-spinningup-clean/network"
	"github.com/supergus/ll-spinningup-clean/solver"
	ts "github.com/supergus/ll-spinningup-clean/timestep"
)

// newTestEnv returns a deterministic Liveline environment
func newTestEnv(t *testing.T) *liveline.Liveline {
	t.Helper()

	config := liveline.NewConfig()
	config.ResetIndexMode = liveline.ResetZero
	config.StepIndexMode = liveline.Sequential

	env, _, err := liveline.New(config,
		liveline.NewControllerConfig(config.ControllerMode), 1000, 0.99)
	if err != nil {
		t.Fatalf("could not construct environment: %v", err)
	}
	return env
}

// newTestConfig returns a small agent configuration suitable for tests
func newTestConfig(t *testing.T) Config {
	t.Helper()

	policySolver, err := solver.NewDefaultAdam(0.001, 1)
	if err != nil {
		t.Fatalf("could not create policy solver: %v", err)
	}
	criticSolver, err := solver.NewDefaultAdam(0.001, 1)
	if err != nil {
		t.Fatalf("could not create critic solver: %v", err)
	}
	initWFn, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		t.Fatalf("could not create init function: %v", err)
	}

	return Config{
		PolicyLayers:      []int{8},
		PolicyBiases:      []bool{true},
		PolicyActivations: []*network.Activation{network.ReLU()},
		CriticLayers:      []int{8},
		CriticBiases:      []bool{true},
		CriticActivations: []*network.Activation{network.ReLU()},
		InitWFn:           initWFn,
		PolicySolver:      policySolver,
		CriticSolver:      criticSolver,
		ExpReplay: expreplay.Config{
			BatchSize:         4,
			MaxReplayCapacity: 100,
			MinReplayCapacity: 4,
		},
		Polyak:      0.995,
		ActionNoise: 0.1,
		StartSteps:  0,
		UpdateAfter: 8,
		UpdateEvery: 4,
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t)

	config := newTestConfig(t)
	config.PolicyBiases = []bool{true, true}

	if _, err := New(env, config, 42); err == nil {
		t.Error("expected an error for mismatched policy biases")
	}

	config = newTestConfig(t)
	config.Polyak = 1.0
	if _, err := New(env, config, 42); err == nil {
		t.Error("expected an error for polyak outside [0, 1)")
	}
}

func TestWarmupActionsAreRandomAndWithinBounds(t *testing.T) {
	env := newTestEnv(t)
	config := newTestConfig(t)
	config.StartSteps = 100

	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	lower := env.ActionSpec().LowerBound
	upper := env.ActionSpec().UpperBound

	varied := false
	var prev []float64
	for i := 0; i < 10; i++ {
		action := agent.SelectAction(step)
		if action.Len() != env.ActionSpec().Shape.Len() {
			t.Fatalf("expected %v action dimensions, got %v",
				env.ActionSpec().Shape.Len(), action.Len())
		}

		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < lower.AtVec(j) ||
				action.AtVec(j) > upper.AtVec(j) {
				t.Errorf("action component %v out of bounds: %v", j,
					action.AtVec(j))
			}
			if prev != nil && action.AtVec(j) != prev[j] {
				varied = true
			}
		}

		prev = prev[:0]
		for j := 0; j < action.Len(); j++ {
			prev = append(prev, action.AtVec(j))
		}
	}

	if !varied {
		t.Error("warm-up actions never varied between selections")
	}
}

func TestEvalActionsAreDeterministic(t *testing.T) {
	env := newTestEnv(t)
	config := newTestConfig(t)
	config.StartSteps = 100

	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	// Evaluation mode bypasses both the random warm-up period and the
	// exploration noise
	agent.Eval()
	if !agent.IsEval() {
		t.Fatal("agent did not enter evaluation mode")
	}

	first := agent.SelectAction(step)
	second := agent.SelectAction(step)
	for j := 0; j < first.Len(); j++ {
		if first.AtVec(j) != second.AtVec(j) {
			t.Errorf("evaluation actions differ at component %v: %v != %v",
				j, first.AtVec(j), second.AtVec(j))
		}
	}

	agent.Train()
	if agent.IsEval() {
		t.Error("agent did not leave evaluation mode")
	}
}

func TestUpdatesBeginAfterUpdateAfterSteps(t *testing.T) {
	env := newTestEnv(t)
	config := newTestConfig(t)

	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	for i := 0; i < 20; i++ {
		action := agent.SelectAction(step)
		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent at environment step %v: %v",
				agent.EnvSteps(), err)
		}
	}

	if agent.EnvSteps() != 20 {
		t.Errorf("expected 20 environment steps, got %v", agent.EnvSteps())
	}
}

func TestDiagnosticsAccumulatePerUpdate(t *testing.T) {
	env := newTestEnv(t)
	config := newTestConfig(t)

	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	step := env.Reset()
	if err := agent.ObserveFirst(step); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}

	for i := 0; i < 20; i++ {
		action := agent.SelectAction(step)
		step, _ = env.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatalf("could not observe timestep: %v", err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent at environment step %v: %v",
				agent.EnvSteps(), err)
		}
	}

	// With UpdateAfter = 8 and UpdateEvery = 4, the 20-step loop
	// triggers updates at environment steps 8, 12, 16, and 20, each
	// performing 4 consecutive updates
	diagnostics := agent.Diagnostics()
	if n := len(diagnostics["LossQ"]); n != 16 {
		t.Errorf("expected 16 critic losses, got %v", n)
	}
	if n := len(diagnostics["LossPi"]); n != 16 {
		t.Errorf("expected 16 policy losses, got %v", n)
	}
	if n := len(diagnostics["QVals"]); n != 16*config.BatchSize() {
		t.Errorf("expected %v action values, got %v",
			16*config.BatchSize(), n)
	}

	// Diagnostics drains the accumulator
	if n := len(agent.Diagnostics()); n != 0 {
		t.Errorf("expected no diagnostics after draining, got %v keys", n)
	}
}

func TestTdErrorShiftsWithReward(t *testing.T) {
	env := newTestEnv(t)
	config := newTestConfig(t)

	agent, err := New(env, config, 42)
	if err != nil {
		t.Fatalf("could not create agent: %v", err)
	}
	defer agent.Close()

	first := env.Reset()
	if err := agent.ObserveFirst(first); err != nil {
		t.Fatalf("could not observe first timestep: %v", err)
	}
	action := agent.SelectAction(first)
	next, _ := env.Step(action)

	transition := ts.NewTransition(nil, first, action, next)
	base := agent.TdError(transition)

	// Increasing the reward by 1 shifts the TD error by exactly 1
	transition.Reward++
	shifted := agent.TdError(transition)
	if diff := shifted - base; math.Abs(diff-1.0) > 1e-9 {
		t.Errorf("expected TD error to shift by 1, shifted by %v", diff)
	}
}

package policy

import (
	"testing"

	G "gorgonia.org/gorgonia"

	"github.com/supergus/ll-spinningup-clean/environment/liveline"
	"github.com/supergus/ll-spinningup-clean/network"
)

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

func newTestPolicy(t *testing.T, env *liveline.Liveline,
	noise float64) *DeterministicMLP {
	t.Helper()

	initWFn := G.GlorotU(1.0)
	pol, err := NewDeterministicMLP(env, 1, G.NewGraph(), []int{8},
		[]bool{true}, []*network.Activation{network.ReLU()}, initWFn,
		noise, 42)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	return pol.(*DeterministicMLP)
}

func TestSelectActionStaysWithinActionBounds(t *testing.T) {
	env := newTestEnv(t)
	pol := newTestPolicy(t, env, 0.5)
	defer pol.Close()

	// The environment hands out timesteps whose observations are
	// mat.Vector values; the policy must accept them as-is
	step := env.Reset()
	limit := env.ActionSpec().UpperBound.AtVec(0)

	for i := 0; i < 10; i++ {
		action := pol.SelectAction(step)
		if action.Len() != env.ActionSpec().Shape.Len() {
			t.Fatalf("expected %v action dimensions, got %v",
				env.ActionSpec().Shape.Len(), action.Len())
		}
		for j := 0; j < action.Len(); j++ {
			if action.AtVec(j) < -limit || action.AtVec(j) > limit {
				t.Errorf("action component %v out of bounds: %v", j,
					action.AtVec(j))
			}
		}
	}
}

func TestSelectActionIsDeterministicInEvalMode(t *testing.T) {
	env := newTestEnv(t)
	pol := newTestPolicy(t, env, 0.5)
	defer pol.Close()

	pol.Eval()
	step := env.Reset()

	first := pol.SelectAction(step)
	second := pol.SelectAction(step)
	for j := 0; j < first.Len(); j++ {
		if first.AtVec(j) != second.AtVec(j) {
			t.Errorf("evaluation actions differ at component %v: %v != %v",
				j, first.AtVec(j), second.AtVec(j))
		}
	}
}

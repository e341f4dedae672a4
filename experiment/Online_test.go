package experiment

import (
	"bytes"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/supergus/ll-spinningup-clean/environment/liveline"
	"github.com/supergus/ll-spinningup-clean/experiment/logger"
	"github.com/supergus/ll-spinningup-clean/experiment/tracker"
	"github.com/supergus/ll-spinningup-clean/experiment/trackers"
	ts "github.com/supergus/ll-spinningup-clean/timestep"
)

// stubAgent records the calls an experiment makes to it. Its policy
// always selects the zero action.
type stubAgent struct {
	actionDims int
	eval       bool

	steps          int
	observes       int
	observeFirsts  int
	episodeEnds    int
	evalSelections int
}

func (s *stubAgent) Step() error { s.steps++; return nil }

func (s *stubAgent) Observe(_ mat.Vector, _ ts.TimeStep) error {
	s.observes++
	return nil
}

func (s *stubAgent) ObserveFirst(_ ts.TimeStep) error {
	s.observeFirsts++
	return nil
}

func (s *stubAgent) EndEpisode() { s.episodeEnds++ }

func (s *stubAgent) SelectAction(_ ts.TimeStep) *mat.VecDense {
	if s.eval {
		s.evalSelections++
	}
	return mat.NewVecDense(s.actionDims, nil)
}

func (s *stubAgent) Eval()        { s.eval = true }
func (s *stubAgent) Train()       { s.eval = false }
func (s *stubAgent) IsEval() bool { return s.eval }

func newTestEnv(t *testing.T, maxSteps int) *liveline.Liveline {
	t.Helper()

	config := liveline.NewConfig()
	config.ResetIndexMode = liveline.ResetZero
	config.StepIndexMode = liveline.Sequential

	env, _, err := liveline.New(config,
		liveline.NewControllerConfig(config.ControllerMode), maxSteps, 0.99)
	if err != nil {
		t.Fatalf("could not construct environment: %v", err)
	}
	return env
}

func TestOnlineRunsAllEpochs(t *testing.T) {
	maxSteps := 4
	stepsPerEpoch := 10
	epochs := 3
	testEpisodes := 2

	env := newTestEnv(t, maxSteps)
	evalEnv := newTestEnv(t, maxSteps)

	var out bytes.Buffer
	log, err := logger.NewEpochLogger(&out, "")
	if err != nil {
		t.Fatalf("could not create logger: %v", err)
	}
	defer log.Close()

	agent := &stubAgent{actionDims: 3}
	exp := NewOnline(env, evalEnv, agent, stepsPerEpoch, epochs,
		testEpisodes, log, nil, nil)

	if err := exp.Run(); err != nil {
		t.Fatalf("experiment failed: %v", err)
	}

	total := stepsPerEpoch * epochs
	if agent.steps != total {
		t.Errorf("expected %v agent steps, got %v", total, agent.steps)
	}
	if agent.observes != total {
		t.Errorf("expected %v observations, got %v", total, agent.observes)
	}

	// Episodes last maxSteps steps, so each epoch finishes
	// stepsPerEpoch/maxSteps full episodes
	wantEpisodes := total / maxSteps
	if agent.episodeEnds != wantEpisodes {
		t.Errorf("expected %v finished episodes, got %v", wantEpisodes,
			agent.episodeEnds)
	}

	// Evaluation runs testEpisodes episodes of maxSteps steps per epoch
	wantEvalSelections := epochs * testEpisodes * maxSteps
	if agent.evalSelections != wantEvalSelections {
		t.Errorf("expected %v evaluation action selections, got %v",
			wantEvalSelections, agent.evalSelections)
	}
	if agent.IsEval() {
		t.Error("agent left in evaluation mode after the experiment")
	}

	text := out.String()
	for _, key := range []string{"EpRet", "EpLen", "TestEpRet", "TestEpLen"} {
		if !strings.Contains(text, key) {
			t.Errorf("epoch log does not contain %v", key)
		}
	}
}

func TestOnlineTracksTrainingTimestepsOnly(t *testing.T) {
	maxSteps := 5
	stepsPerEpoch := 10
	epochs := 2

	env := newTestEnv(t, maxSteps)
	evalEnv := newTestEnv(t, maxSteps)

	var out bytes.Buffer
	log, err := logger.NewEpochLogger(&out, "")
	if err != nil {
		t.Fatalf("could not create logger: %v", err)
	}
	defer log.Close()

	dir := t.TempDir()
	lengths := trackers.NewEpisodeLength(dir + "/lengths.bin")

	agent := &stubAgent{actionDims: 3}
	exp := NewOnline(env, evalEnv, agent, stepsPerEpoch, epochs, 1, log,
		[]tracker.Tracker{trackers.NewReturn(dir + "/returns.bin")}, nil)
	exp.Register(lengths)

	if err := exp.Run(); err != nil {
		t.Fatalf("experiment failed: %v", err)
	}
	exp.Save()

	// Trackers only see timesteps from the training environment, so
	// every tracked episode has length maxSteps
	returns := tracker.LoadData(dir + "/returns.bin")
	wantEpisodes := stepsPerEpoch * epochs / maxSteps
	if len(returns) != wantEpisodes {
		t.Errorf("expected %v episode returns, got %v", wantEpisodes,
			len(returns))
	}
}

// diagnosingAgent is a stubAgent that also reports per-update
// diagnostics, as learning agents do.
type diagnosingAgent struct {
	stubAgent
	drains int
}

func (d *diagnosingAgent) Diagnostics() map[string][]float64 {
	d.drains++
	return map[string][]float64{
		"LossQ":  {1.5, 0.5},
		"LossPi": {-2.0},
	}
}

func TestOnlineLogsAgentDiagnostics(t *testing.T) {
	maxSteps := 4
	stepsPerEpoch := 8
	epochs := 2

	env := newTestEnv(t, maxSteps)
	evalEnv := newTestEnv(t, maxSteps)

	var out bytes.Buffer
	log, err := logger.NewEpochLogger(&out, "")
	if err != nil {
		t.Fatalf("could not create logger: %v", err)
	}
	defer log.Close()

	agent := &diagnosingAgent{stubAgent: stubAgent{actionDims: 3}}
	exp := NewOnline(env, evalEnv, agent, stepsPerEpoch, epochs, 1, log,
		nil, nil)

	if err := exp.Run(); err != nil {
		t.Fatalf("experiment failed: %v", err)
	}

	// The agent's diagnostics are drained once per epoch and logged
	// alongside the episode statistics
	if agent.drains != epochs {
		t.Errorf("expected %v diagnostics drains, got %v", epochs,
			agent.drains)
	}

	text := out.String()
	for _, key := range []string{"LossQ", "LossPi"} {
		if !strings.Contains(text, key) {
			t.Errorf("epoch log does not contain %v", key)
		}
	}
}

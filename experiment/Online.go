package experiment

import (
	"fmt"

	"github.com/supergus/ll-spinningup-clean/agent"
	env "github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/experiment/checkpointer"
	"github.com/supergus/ll-spinningup-clean/experiment/logger"
	"github.com/supergus/ll-spinningup-clean/experiment/tracker"
	ts "github.com/supergus/ll-spinningup-clean/timestep"
	"github.com/supergus/ll-spinningup-clean/utils/progressbar"
)

// Online is an Experiment that interleaves learning with deterministic
// evaluation. Training proceeds in epochs of a fixed number of
// environment steps. Episodes carry over epoch boundaries. At the end
// of each epoch the agent is switched to evaluation mode and run for a
// fixed number of episodes on a separate evaluation environment, with
// no observations recorded and no learning updates performed, before
// training resumes.
type Online struct {
	env     env.Environment
	evalEnv env.Environment
	agent   agent.Agent

	stepsPerEpoch int
	epochs        int
	testEpisodes  int

	log           *logger.EpochLogger
	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
	progress      *progressbar.ManualProgressBar
}

// NewOnline creates and returns a new online experiment. Training
// interaction happens on e, while evaluation episodes at each epoch
// boundary are run on evalEnv. The two environments should be
// separately constructed so that evaluation does not perturb the
// training episode in progress.
//
// The experiment runs for epochs * stepsPerEpoch environment steps in
// total and runs testEpisodes evaluation episodes at the end of every
// epoch. Aggregate metrics are recorded with log, per-timestep data
// with t, and the agent is periodically saved with c. Checkpointers
// are invoked once at the end of each epoch.
func NewOnline(e, evalEnv env.Environment, a agent.Agent, stepsPerEpoch,
	epochs, testEpisodes int, log *logger.EpochLogger,
	t []tracker.Tracker, c []checkpointer.Checkpointer) *Online {
	return &Online{
		env:           e,
		evalEnv:       evalEnv,
		agent:         a,
		stepsPerEpoch: stepsPerEpoch,
		epochs:        epochs,
		testEpisodes:  testEpisodes,
		log:           log,
		trackers:      t,
		checkpointers: c,
		progress: progressbar.NewManualProgressBar(65,
			epochs*stepsPerEpoch),
	}
}

// Register registers a tracker.Tracker with the Experiment so that
// data generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Run runs the entire experiment for all epochs
func (o *Online) Run() error {
	step := o.env.Reset()
	if err := o.agent.ObserveFirst(step); err != nil {
		return fmt.Errorf("run: could not observe first timestep: %v", err)
	}
	o.track(step)

	epReturn := 0.0
	epLength := 0

	for epoch := 0; epoch < o.epochs; epoch++ {
		for i := 0; i < o.stepsPerEpoch; i++ {
			// Select action, step in environment
			action := o.agent.SelectAction(step)
			step, _ = o.env.Step(action)

			// Cache the environment step in each Tracker
			o.track(step)

			// Observe the timestep and step the agent
			if err := o.agent.Observe(action, step); err != nil {
				return fmt.Errorf("run: could not observe timestep: %v",
					err)
			}
			if err := o.agent.Step(); err != nil {
				return fmt.Errorf("run: could not step agent: %v", err)
			}

			epReturn += step.Reward
			epLength++
			o.progress.Increment()

			if step.Last() {
				o.agent.EndEpisode()
				o.log.Store("EpRet", epReturn)
				o.log.Store("EpLen", float64(epLength))
				epReturn = 0.0
				epLength = 0

				step = o.env.Reset()
				if err := o.agent.ObserveFirst(step); err != nil {
					return fmt.Errorf("run: could not observe first "+
						"timestep: %v", err)
				}
				o.track(step)
			}
		}

		if err := o.evaluate(); err != nil {
			return fmt.Errorf("run: could not evaluate agent: %v", err)
		}

		// Agents that record per-update diagnostics, such as losses,
		// have them folded into the epoch's aggregate metrics.
		if diagnoser, ok := o.agent.(agent.Diagnoser); ok {
			for key, vals := range diagnoser.Diagnostics() {
				for _, val := range vals {
					o.log.Store(key, val)
				}
			}
		}

		o.progress.Display()
		if err := o.log.LogEpoch(epoch); err != nil {
			return fmt.Errorf("run: could not log epoch %v: %v", epoch, err)
		}

		for _, c := range o.checkpointers {
			if err := c.Checkpoint(step); err != nil {
				return fmt.Errorf("run: could not checkpoint agent: %v",
					err)
			}
		}
	}

	return nil
}

// evaluate runs the agent's deterministic policy on the evaluation
// environment. The agent does not observe evaluation timesteps, so the
// training episode in progress and the agent's replay memory are left
// untouched.
func (o *Online) evaluate() error {
	o.agent.Eval()
	defer o.agent.Train()

	for ep := 0; ep < o.testEpisodes; ep++ {
		step := o.evalEnv.Reset()
		epReturn := 0.0
		epLength := 0

		for !step.Last() {
			action := o.agent.SelectAction(step)
			step, _ = o.evalEnv.Step(action)
			epReturn += step.Reward
			epLength++
		}

		o.log.Store("TestEpRet", epReturn)
		o.log.Store("TestEpLen", float64(epLength))
	}

	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
}

// track tracks the current timestep by caching its data in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

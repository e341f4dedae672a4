// Package liveline implements a playback simulation of a controlled
// production line process.
//
// The environment replays a recorded (here, synthetically generated)
// dataset of per-batch process output signals. A playhead indexes the
// current batch. One setpoint controller per output channel holds a
// nudge which shifts the channel's raw signal; the agent's actions
// adjust these nudges. Observations are the controlled outputs
// expressed relative to their setpoints, so a perfectly controlled
// process observes the zero vector. The episode ends at a terminal
// state when any observation leaves the observation bounds, and times
// out at a step limit or when the playhead exhausts the dataset.
package liveline

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/timestep"
	"github.com/supergus/ll-spinningup-clean/utils/floatutils"
)

// Liveline implements the environment.Environment interface over a
// dataset playback with setpoint controllers.
type Liveline struct {
	environment.Task
	config      Config
	dataset     *dataset
	controllers []*Controller
	setpoints   []float64

	// Active playback window [lo, hi)
	lo, hi int

	playhead int
	stepRNG  *rand.Rand

	discount float64
	lastStep timestep.TimeStep
}

// zeroStarter starts every episode at playhead offset 0
type zeroStarter struct{}

func (zeroStarter) Start() *mat.VecDense {
	return mat.NewVecDense(1, []float64{0})
}

// New creates and returns a new Liveline environment along with the
// first timestep of the environment. One controller per output
// channel is created from controllerConfig. Episodes are cut off
// after maxSteps steps. The discount factor of every timestep is
// discount.
func New(config Config, controllerConfig ControllerConfig, maxSteps int,
	discount float64) (*Liveline, timestep.TimeStep, error) {
	if err := config.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("liveline: %v", err)
	}

	data := newDataset(config.NumBatches, config.NumOutputs, config.Seed)
	lo, hi := data.window(config.DataMode, config.TrimBatchesStart,
		config.TrimBatchesEnd)

	controllers := make([]*Controller, config.NumOutputs)
	for i := range controllers {
		controller, err := NewController(controllerConfig)
		if err != nil {
			return nil, timestep.TimeStep{}, fmt.Errorf("liveline: %v", err)
		}
		controllers[i] = controller
	}

	// The starter samples playhead offsets into [lo, hi)
	var starter environment.Starter
	switch config.ResetIndexMode {
	case ResetRandom:
		starter = environment.NewCategoricalStarter([]int{hi - lo},
			config.Seed)
	case ResetZero:
		starter = zeroStarter{}
	}

	obsBounds := make([]r1.Interval, config.NumOutputs)
	obsIndices := make([]int, config.NumOutputs)
	for i := range obsBounds {
		obsBounds[i] = r1.Interval{Min: config.ObsMin, Max: config.ObsMax}
		obsIndices[i] = i
	}
	// The step limit is checked first: an episode cut off at the step
	// limit ends with a timeout even if the observation leaves its
	// bounds on that same step, so learners still bootstrap there
	enders := []environment.Ender{
		environment.NewStepLimit(maxSteps),
		environment.NewIntervalLimit(obsBounds, obsIndices,
			timestep.TerminalStateReached),
	}

	task := newControlTask(config, starter, enders, controllers)

	env := &Liveline{
		Task:        task,
		config:      config,
		dataset:     data,
		controllers: controllers,
		setpoints:   data.means(lo, hi),
		lo:          lo,
		hi:          hi,
		stepRNG:     rand.New(rand.NewSource(config.Seed + 1)),
		discount:    discount,
	}

	firstStep := env.Reset()
	return env, firstStep, nil
}

// Reset resets the environment between episodes: controllers are
// cleared and the playhead moves to a starting batch drawn from the
// task's Starter.
func (l *Liveline) Reset() timestep.TimeStep {
	offset := int(l.Start().AtVec(0))
	l.playhead = l.lo + offset

	for _, controller := range l.controllers {
		controller.Reset()
	}

	obs := l.observe()
	floatutils.ClipSlice(obs.RawVector().Data, l.config.ObsMin,
		l.config.ObsMax)

	startStep := timestep.New(timestep.First, 0, l.discount, obs, 0)
	l.lastStep = startStep
	return startStep
}

// Step applies an action to the environment's controllers and advances
// the playhead, returning the resulting timestep and whether it is the
// last in the episode.
func (l *Liveline) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	clipped := make([]float64, action.Len())
	for i := range clipped {
		clipped[i] = floatutils.Clip(action.AtVec(i), l.config.ActionMin,
			l.config.ActionMax)
	}

	for i, controller := range l.controllers {
		controller.Apply(clipped[i])
	}

	dataEnd := false
	switch l.config.StepIndexMode {
	case Sequential:
		if l.playhead+1 >= l.hi {
			dataEnd = true
		} else {
			l.playhead++
		}
	case RandomStep:
		l.playhead = l.lo + l.stepRNG.Intn(l.hi-l.lo)
	}

	obs := l.observe()
	reward := l.GetReward(l.lastStep.Observation,
		mat.NewVecDense(len(clipped), clipped), obs)
	nextStep := timestep.New(timestep.Mid, reward, l.discount, obs,
		l.lastStep.Number+1)

	if dataEnd {
		nextStep.StepType = timestep.Last
		nextStep.SetEnd(timestep.Timeout)
	} else {
		l.End(&nextStep)
	}

	// The stored observation is clipped to the observation bounds.
	// The enders above saw the unclipped values, so a bound exit
	// still ends the episode.
	floatutils.ClipSlice(obs.RawVector().Data, l.config.ObsMin,
		l.config.ObsMax)

	l.lastStep = nextStep
	return nextStep, nextStep.Last()
}

// observe returns the current observation: the controlled outputs at
// the playhead relative to their setpoints
func (l *Liveline) observe() *mat.VecDense {
	raw := l.dataset.row(l.playhead)

	obs := make([]float64, l.config.NumOutputs)
	for i, controller := range l.controllers {
		obs[i] = controller.Output(raw.AtVec(i)) - l.setpoints[i]
	}
	return mat.NewVecDense(len(obs), obs)
}

// RawSignal returns the uncontrolled dataset outputs at the playhead
func (l *Liveline) RawSignal() *mat.VecDense {
	return l.dataset.row(l.playhead)
}

// Playhead returns the current playback position
func (l *Liveline) Playhead() int {
	return l.playhead
}

// Controllers returns the environment's setpoint controllers, one per
// output channel
func (l *Liveline) Controllers() []*Controller {
	return l.controllers
}

// Setpoints returns the current per-channel output targets
func (l *Liveline) Setpoints() []float64 {
	out := make([]float64, len(l.setpoints))
	copy(out, l.setpoints)
	return out
}

// SetOutputTargets replaces the per-channel output targets at runtime
func (l *Liveline) SetOutputTargets(targets []float64) error {
	if len(targets) != len(l.setpoints) {
		return fmt.Errorf("setOutputTargets: invalid number of targets"+
			"\n\twant(%d)\n\thave(%d)", len(l.setpoints), len(targets))
	}
	copy(l.setpoints, targets)
	return nil
}

// Update replaces the environment's reward shaping and playback
// configuration at runtime. The dataset, its window, and the episode
// structure are unchanged.
func (l *Liveline) Update(config Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("update: %v", err)
	}

	task := l.Task.(*ControlTask)
	task.baseReward = config.BaseReward
	task.rmseFactor = config.RmseFactor
	task.regFactor = config.RegFactor
	task.aRegFactor = config.ARegFactor
	task.nRegFactor = config.NRegFactor

	l.config.BaseReward = config.BaseReward
	l.config.RmseFactor = config.RmseFactor
	l.config.RegFactor = config.RegFactor
	l.config.ARegFactor = config.ARegFactor
	l.config.NRegFactor = config.NRegFactor
	l.config.StepIndexMode = config.StepIndexMode
	l.config.Verbosity = config.Verbosity
	return nil
}

// LastTimeStep returns the last TimeStep that occurred in the
// environment
func (l *Liveline) LastTimeStep() timestep.TimeStep {
	return l.lastStep
}

// DiscountSpec returns the discount specification of the environment
func (l *Liveline) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{l.discount})

	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (l *Liveline) ObservationSpec() environment.Spec {
	shape := mat.NewVecDense(l.config.NumOutputs, nil)

	lower := make([]float64, l.config.NumOutputs)
	upper := make([]float64, l.config.NumOutputs)
	for i := range lower {
		lower[i] = l.config.ObsMin
		upper[i] = l.config.ObsMax
	}

	return environment.NewSpec(shape, environment.Observation,
		mat.NewVecDense(len(lower), lower), mat.NewVecDense(len(upper), upper),
		environment.Continuous)
}

// ActionSpec returns the action specification of the environment
func (l *Liveline) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(l.config.NumOutputs, nil)

	lower := make([]float64, l.config.NumOutputs)
	upper := make([]float64, l.config.NumOutputs)
	for i := range lower {
		lower[i] = l.config.ActionMin
		upper[i] = l.config.ActionMax
	}

	return environment.NewSpec(shape, environment.Action,
		mat.NewVecDense(len(lower), lower), mat.NewVecDense(len(upper), upper),
		environment.Continuous)
}

// String converts the environment to a string representation
func (l *Liveline) String() string {
	return fmt.Sprintf("Liveline  |  playhead: %v  |  window: [%v, %v)",
		l.playhead, l.lo, l.hi)
}

// Package ddpg implements the deep deterministic policy gradient
// algorithm, an off-policy actor-critic method for continuous action
// spaces.
package ddpg

import (
	"fmt"
	"os"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/supergus/ll-spinningup-clean/agent"
	"github.com/supergus/ll-spinningup-clean/agent/nonlinear/continuous/policy"
	"github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/expreplay"
	"github.com/supergus/ll-spinningup-clean/network"
	ts "github.com/supergus/ll-spinningup-clean/timestep"
)

// DDPG implements the deep deterministic policy gradient algorithm.
//
// DDPG concurrently learns a deterministic policy and an action value
// function. The action value function is learned on minibatches from
// an experience replay buffer by regression to the one-step bootstrap
// target computed with slowly changing target networks. The policy is
// learned by following the gradient of the action value function with
// respect to the policy's actions.
type DDPG struct {
	// Behaviour policy for selecting single actions
	behaviour *policy.DeterministicMLP

	// Policy whose weights are adapted, taking batches of states
	trainPolicy    network.NeuralNet
	trainPolicyVM  G.VM
	policySolver   G.Solver
	policyStateVar *G.Node

	// Clone of the learned action value function embedded in the
	// policy's training graph. Its inputs are the states given to the
	// policy and the actions the policy selects at those states, so
	// that the policy maximizes the learned action values. Only the
	// policy's weights receive gradients on this graph.
	embeddedCritic network.NeuralNet

	// Learned action value function
	trainCritic    network.NeuralNet
	trainCriticVM  G.VM
	criticSolver   G.Solver
	criticStateVar *G.Node
	criticActVar   *G.Node
	backup         *G.Node

	// Loss values read off the training graphs on each update
	criticLossVal *G.Value
	policyLossVal *G.Value

	// Per-update diagnostics accumulated for logging
	diagnostics map[string][]float64

	// Target networks providing the bootstrap update target. Both
	// share a single graph: the target policy selects actions at the
	// next states and the target critic evaluates those actions.
	targetPolicy   network.NeuralNet
	targetCritic   network.NeuralNet
	targetVM       G.VM
	targetStateVar *G.Node

	polyak float64

	replay expreplay.ExperienceReplayer

	// Raw signal underlying the current state, if the environment
	// has one
	rawSignaler environment.RawSignaler

	// Uniform distribution for the initial exploratory actions
	actionDist  *distmv.Uniform
	actionDims  int
	startSteps  int
	updateAfter int
	updateEvery int

	nextStep ts.TimeStep

	envSteps  int
	batchSize int
	eval      bool
}

// New creates and returns a new DDPG agent
func New(env environment.Environment, config Config,
	seed uint64) (*DDPG, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		return nil, fmt.Errorf("ddpg: cannot use non-continuous actions")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	batchSize := config.BatchSize()
	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	actionLimit := env.ActionSpec().UpperBound.AtVec(0)
	init := config.InitWFn.InitWFn()

	// Behaviour policy for selecting single actions
	behaviourPol, err := policy.NewDeterministicMLP(env, 1, G.NewGraph(),
		copyInts(config.PolicyLayers), copyBools(config.PolicyBiases),
		copyActivations(config.PolicyActivations), init, config.ActionNoise,
		seed)
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create behaviour policy: %v",
			err)
	}
	behaviour := behaviourPol.(*policy.DeterministicMLP)

	// Architectures of the policy and critic networks. The policy
	// outputs one tanh unit per action dimension, scaled to the
	// action bounds. The critic takes a state-action pair and outputs
	// a single action value.
	policySizes := append(copyInts(config.PolicyLayers), actionDims)
	policyBiases := append(copyBools(config.PolicyBiases), true)
	policyActivations := append(copyActivations(config.PolicyActivations),
		network.TanH())
	criticSizes := copyInts(config.CriticLayers)
	criticBiases := copyBools(config.CriticBiases)
	criticActivations := copyActivations(config.CriticActivations)

	// Training graph for the critic: regression of Q(s, a) to the
	// externally computed bootstrap target
	gCritic := G.NewGraph()
	criticStateVar := G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	criticActVar := G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, actionDims), G.WithName("action"),
		G.WithInit(G.Zeroes()))
	trainCritic, err := network.NewSingleHeadMLPFromInputs(
		[]*G.Node{criticStateVar, criticActVar}, gCritic, criticSizes,
		criticBiases, init, criticActivations, "", "Critic")
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create critic network: %v",
			err)
	}

	backup := G.NewMatrix(gCritic, tensor.Float64,
		G.WithShape(batchSize, 1), G.WithName("backup"),
		G.WithInit(G.Zeroes()))
	criticLosses := G.Must(G.Sub(backup, trainCritic.Prediction()))
	criticLosses = G.Must(G.Square(criticLosses))
	criticLoss := G.Must(G.Mean(criticLosses))

	criticLossVal := new(G.Value)
	G.Read(criticLoss, criticLossVal)

	if _, err := G.Grad(criticLoss, trainCritic.Learnables()...); err != nil {
		return nil, fmt.Errorf("ddpg: could not compute critic gradient: %v",
			err)
	}
	trainCriticVM := G.NewTapeMachine(gCritic,
		G.BindDualValues(trainCritic.Learnables()...))

	// Training graph for the policy: gradient ascent on the critic's
	// valuation of the policy's actions
	gPolicy := G.NewGraph()
	policyStateVar := G.NewMatrix(gPolicy, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	trainPolicy, err := network.NewMultiHeadMLPFromInputs(
		[]*G.Node{policyStateVar}, actionDims, gPolicy, policySizes,
		policyBiases, init, policyActivations, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create training policy: %v",
			err)
	}
	scaledActions := G.Must(G.Mul(trainPolicy.Prediction(),
		G.NewConstant(actionLimit)))

	embeddedCritic, err := trainCritic.CloneWithInputsTo(1,
		[]*G.Node{policyStateVar, scaledActions}, gPolicy)
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not embed critic in policy "+
			"graph: %v", err)
	}
	policyLoss := G.Must(G.Mean(embeddedCritic.Prediction()))
	policyLoss = G.Must(G.Neg(policyLoss))

	policyLossVal := new(G.Value)
	G.Read(policyLoss, policyLossVal)

	// Gradients flow through the embedded critic, but only the
	// policy's weights are updated
	if _, err := G.Grad(policyLoss, trainPolicy.Learnables()...); err != nil {
		return nil, fmt.Errorf("ddpg: could not compute policy gradient: %v",
			err)
	}
	trainPolicyVM := G.NewTapeMachine(gPolicy,
		G.BindDualValues(trainPolicy.Learnables()...))

	// Target networks share one graph so that a single run computes
	// the action values of the target policy's actions at next states
	gTarget := G.NewGraph()
	targetStateVar := G.NewMatrix(gTarget, tensor.Float64,
		G.WithShape(batchSize, features), G.WithName("state"),
		G.WithInit(G.Zeroes()))
	targetPolicy, err := network.NewMultiHeadMLPFromInputs(
		[]*G.Node{targetStateVar}, actionDims, gTarget, policySizes,
		policyBiases, init, policyActivations, "target", "", false)
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create target policy: %v",
			err)
	}
	scaledTargetActions := G.Must(G.Mul(targetPolicy.Prediction(),
		G.NewConstant(actionLimit)))
	targetCritic, err := network.NewSingleHeadMLPFromInputs(
		[]*G.Node{targetStateVar, scaledTargetActions}, gTarget, criticSizes,
		criticBiases, init, criticActivations, "target", "Critic")
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create target critic: %v",
			err)
	}
	targetVM := G.NewTapeMachine(gTarget)

	// All copies of the policy start with the behaviour policy's
	// weights, and target networks start equal to the learned networks
	if err := trainPolicy.Set(behaviour.Network()); err != nil {
		return nil, fmt.Errorf("ddpg: could not initialize training "+
			"policy: %v", err)
	}
	if err := targetPolicy.Set(trainPolicy); err != nil {
		return nil, fmt.Errorf("ddpg: could not initialize target "+
			"policy: %v", err)
	}
	if err := targetCritic.Set(trainCritic); err != nil {
		return nil, fmt.Errorf("ddpg: could not initialize target "+
			"critic: %v", err)
	}
	if err := embeddedCritic.Set(trainCritic); err != nil {
		return nil, fmt.Errorf("ddpg: could not initialize embedded "+
			"critic: %v", err)
	}

	// Raw signal storage sizes the replay buffer
	rawSignaler, _ := env.(environment.RawSignaler)
	rawSize := features
	if rawSignaler != nil {
		rawSize = rawSignaler.RawSignal().Len()
	}

	replay, err := config.ExpReplay.Create(rawSize, features, actionDims,
		int64(seed))
	if err != nil {
		return nil, fmt.Errorf("ddpg: could not create experience replay "+
			"buffer: %v", err)
	}

	// Uniform distribution over the action bounds for the initial
	// exploratory actions
	bounds := make([]r1.Interval, actionDims)
	for i := range bounds {
		bounds[i] = r1.Interval{
			Min: env.ActionSpec().LowerBound.AtVec(i),
			Max: env.ActionSpec().UpperBound.AtVec(i),
		}
	}
	actionDist := distmv.NewUniform(bounds, rand.NewSource(seed))

	return &DDPG{
		behaviour: behaviour,

		trainPolicy:    trainPolicy,
		trainPolicyVM:  trainPolicyVM,
		policySolver:   config.PolicySolver,
		policyStateVar: policyStateVar,
		embeddedCritic: embeddedCritic,

		trainCritic:    trainCritic,
		trainCriticVM:  trainCriticVM,
		criticSolver:   config.CriticSolver,
		criticStateVar: criticStateVar,
		criticActVar:   criticActVar,
		backup:         backup,

		criticLossVal: criticLossVal,
		policyLossVal: policyLossVal,
		diagnostics:   make(map[string][]float64),

		targetPolicy:   targetPolicy,
		targetCritic:   targetCritic,
		targetVM:       targetVM,
		targetStateVar: targetStateVar,

		polyak: config.Polyak,
		replay: replay,

		rawSignaler: rawSignaler,
		actionDist:  actionDist,
		actionDims:  actionDims,
		startSteps:  config.StartSteps,
		updateAfter: config.UpdateAfter,
		updateEvery: config.UpdateEvery,

		batchSize: batchSize,
		eval:      false,
	}, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DDPG) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		fmt.Fprintf(os.Stderr, "Warning: ObserveFirst() should only be "+
			"called on the first timestep (current timestep = %d)\n",
			t.Number)
	}
	d.nextStep = t
	return nil
}

// Observe observes and records any timestep other than the first
// timestep. The transition from the last recorded timestep to the
// argument timestep is added to the replay buffer.
func (d *DDPG) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if !d.eval {
		d.envSteps++

		transition := ts.NewTransition(d.currentRaw(), d.nextStep, action,
			nextStep)
		if err := d.replay.Add(transition); err != nil {
			return fmt.Errorf("observe: could not add to replay buffer: %v",
				err)
		}
	}
	d.nextStep = nextStep
	return nil
}

// currentRaw returns the raw signal at the environment's current
// position, or nil if the environment has no raw signal.
func (d *DDPG) currentRaw() *mat.VecDense {
	if d.rawSignaler == nil {
		return nil
	}
	return d.rawSignaler.RawSignal()
}

// SelectAction returns an action for the argument timestep. For the
// first StartSteps training steps, actions are sampled uniformly from
// the action bounds. Afterwards, and always in evaluation mode, the
// behaviour policy selects the action.
func (d *DDPG) SelectAction(t ts.TimeStep) *mat.VecDense {
	if !d.eval && d.envSteps < d.startSteps {
		return mat.NewVecDense(d.actionDims, d.actionDist.Rand(nil))
	}
	return d.behaviour.SelectAction(t)
}

// Step updates the weights of the agent's policy and critic networks.
// Updates are performed only once UpdateAfter environment steps have
// been observed and then only on every UpdateEvery'th step, at which
// point UpdateEvery consecutive updates are performed so that the
// overall ratio of updates to environment steps is one.
func (d *DDPG) Step() error {
	if d.eval {
		return nil
	}
	if d.envSteps < d.updateAfter || d.envSteps%d.updateEvery != 0 {
		return nil
	}

	for i := 0; i < d.updateEvery; i++ {
		err := d.update()
		if expreplay.IsEmptyBuffer(err) ||
			expreplay.IsInsufficientSamples(err) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// update performs a single gradient update on the critic and the
// policy, then moves the target networks toward the learned networks.
func (d *DDPG) update() error {
	_, S, A, R, discount, NextS, err := d.replay.Sample()
	if err != nil {
		return err
	}

	// Compute the target action values at the next states
	nextStates := tensor.New(
		tensor.WithShape(d.targetStateVar.Shape()...),
		tensor.WithBacking(NextS),
	)
	if err := G.Let(d.targetStateVar, nextStates); err != nil {
		return fmt.Errorf("update: could not set target states: %v", err)
	}
	if err := d.targetVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run target networks: %v", err)
	}
	qNext := d.targetCritic.Output().Data().([]float64)

	// Bootstrap backup: r + γ Q'(s', μ'(s')), where the discount
	// stored in the replay buffer is already 0 at terminal states
	backup := make([]float64, d.batchSize)
	for i := range backup {
		backup[i] = R[i] + discount[i]*qNext[i]
	}
	d.targetVM.Reset()

	// Critic update
	states := tensor.New(
		tensor.WithShape(d.criticStateVar.Shape()...),
		tensor.WithBacking(S),
	)
	if err := G.Let(d.criticStateVar, states); err != nil {
		return fmt.Errorf("update: could not set critic states: %v", err)
	}
	actions := tensor.New(
		tensor.WithShape(d.criticActVar.Shape()...),
		tensor.WithBacking(A),
	)
	if err := G.Let(d.criticActVar, actions); err != nil {
		return fmt.Errorf("update: could not set critic actions: %v", err)
	}
	backupTensor := tensor.New(
		tensor.WithShape(d.backup.Shape()...),
		tensor.WithBacking(backup),
	)
	if err := G.Let(d.backup, backupTensor); err != nil {
		return fmt.Errorf("update: could not set backup: %v", err)
	}
	if err := d.trainCriticVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run critic update: %v", err)
	}
	if err := d.criticSolver.Step(d.trainCritic.Model()); err != nil {
		return fmt.Errorf("update: could not step critic solver: %v", err)
	}
	d.trainCriticVM.Reset()

	d.diagnostics["LossQ"] = append(d.diagnostics["LossQ"],
		(*d.criticLossVal).Data().(float64))
	d.diagnostics["QVals"] = append(d.diagnostics["QVals"],
		d.trainCritic.Output().Data().([]float64)...)

	// The policy's training graph evaluates the critic at the
	// policy's actions, so its embedded critic must track the newly
	// learned critic weights
	if err := d.embeddedCritic.Set(d.trainCritic); err != nil {
		return fmt.Errorf("update: could not update embedded critic: %v",
			err)
	}

	// Policy update
	policyStates := tensor.New(
		tensor.WithShape(d.policyStateVar.Shape()...),
		tensor.WithBacking(S),
	)
	if err := G.Let(d.policyStateVar, policyStates); err != nil {
		return fmt.Errorf("update: could not set policy states: %v", err)
	}
	if err := d.trainPolicyVM.RunAll(); err != nil {
		return fmt.Errorf("update: could not run policy update: %v", err)
	}
	if err := d.policySolver.Step(d.trainPolicy.Model()); err != nil {
		return fmt.Errorf("update: could not step policy solver: %v", err)
	}
	d.trainPolicyVM.Reset()

	d.diagnostics["LossPi"] = append(d.diagnostics["LossPi"],
		(*d.policyLossVal).Data().(float64))

	// The behaviour policy selects actions with the newly learned
	// weights
	if err := d.behaviour.Network().Set(d.trainPolicy); err != nil {
		return fmt.Errorf("update: could not update behaviour policy: %v",
			err)
	}

	// Move the target networks toward the learned networks
	if err := d.targetPolicy.Polyak(d.trainPolicy, 1-d.polyak); err != nil {
		return fmt.Errorf("update: could not update target policy: %v", err)
	}
	if err := d.targetCritic.Polyak(d.trainCritic, 1-d.polyak); err != nil {
		return fmt.Errorf("update: could not update target critic: %v", err)
	}

	return nil
}

// TdError returns the one-step TD error of the learned networks on a
// single transition. The transition's fields are repeated across the
// networks' batch dimension, so only the first output of each network
// is used.
func (d *DDPG) TdError(t ts.Transition) float64 {
	nextStates := repeatRows(t.NextState, d.batchSize)
	states := repeatRows(t.State, d.batchSize)
	actions := repeatRows(t.Action, d.batchSize)

	if err := G.Let(d.targetStateVar, tensor.New(
		tensor.WithShape(d.targetStateVar.Shape()...),
		tensor.WithBacking(nextStates),
	)); err != nil {
		panic(fmt.Sprintf("tderror: could not set target states: %v", err))
	}
	if err := d.targetVM.RunAll(); err != nil {
		panic(fmt.Sprintf("tderror: could not run target networks: %v", err))
	}
	qNext := d.targetCritic.Output().Data().([]float64)[0]
	d.targetVM.Reset()

	if err := G.Let(d.criticStateVar, tensor.New(
		tensor.WithShape(d.criticStateVar.Shape()...),
		tensor.WithBacking(states),
	)); err != nil {
		panic(fmt.Sprintf("tderror: could not set critic states: %v", err))
	}
	if err := G.Let(d.criticActVar, tensor.New(
		tensor.WithShape(d.criticActVar.Shape()...),
		tensor.WithBacking(actions),
	)); err != nil {
		panic(fmt.Sprintf("tderror: could not set critic actions: %v", err))
	}
	if err := d.trainCriticVM.RunAll(); err != nil {
		panic(fmt.Sprintf("tderror: could not run critic: %v", err))
	}
	q := d.trainCritic.Output().Data().([]float64)[0]
	d.trainCriticVM.Reset()

	return t.Reward + t.Discount*qNext - q
}

// repeatRows tiles a vector into batch rows of flat data
func repeatRows(v mat.Vector, batch int) []float64 {
	row := make([]float64, v.Len())
	for i := range row {
		row[i] = v.AtVec(i)
	}

	out := make([]float64, 0, batch*len(row))
	for i := 0; i < batch; i++ {
		out = append(out, row...)
	}
	return out
}

// Policy returns the policy used by the agent to select actions
func (d *DDPG) Policy() agent.NNPolicy {
	return d.behaviour
}

// EnvSteps returns the number of training environment steps the agent
// has observed
func (d *DDPG) EnvSteps() int {
	return d.envSteps
}

// Diagnostics returns the per-update diagnostics accumulated since the
// last call and clears the accumulator. The returned map holds the
// critic loss and policy loss, one entry per update, and the critic's
// action value estimates, one entry per batch element per update.
func (d *DDPG) Diagnostics() map[string][]float64 {
	out := d.diagnostics
	d.diagnostics = make(map[string][]float64)
	return out
}

// Eval sets the agent into evaluation mode, in which the policy's
// actions are deterministic
func (d *DDPG) Eval() {
	d.eval = true
	d.behaviour.Eval()
}

// Train sets the agent into training mode
func (d *DDPG) Train() {
	d.eval = false
	d.behaviour.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (d *DDPG) IsEval() bool {
	return d.eval
}

// EndEpisode performs cleanup at the end of an episode
func (d *DDPG) EndEpisode() {}

// Close cleans up the agent's resources
func (d *DDPG) Close() error {
	if err := d.behaviour.Close(); err != nil {
		return err
	}
	if err := d.trainPolicyVM.Close(); err != nil {
		return err
	}
	if err := d.trainCriticVM.Close(); err != nil {
		return err
	}
	return d.targetVM.Close()
}

func copyInts(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	return out
}

func copyBools(in []bool) []bool {
	out := make([]bool, len(in))
	copy(out, in)
	return out
}

func copyActivations(in []*network.Activation) []*network.Activation {
	out := make([]*network.Activation, len(in))
	copy(out, in)
	return out
}

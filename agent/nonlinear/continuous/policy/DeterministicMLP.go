// Package policy implements policies using function approximation
package policy

import (
	"fmt"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"

	"github.com/supergus/ll-spinningup-clean/agent"
	"github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/network"
	"github.com/supergus/ll-spinningup-clean/timestep"
	"github.com/supergus/ll-spinningup-clean/utils/floatutils"
)

// DeterministicMLP implements a deterministic policy parameterized by
// an MLP. The MLP outputs actions through a tanh layer, which are then
// scaled to the action bounds of the environment.
//
// In training mode, spherical Gaussian noise is added to selected
// actions for exploration. In evaluation mode, the policy's actions
// are returned unperturbed.
type DeterministicMLP struct {
	net network.NeuralNet
	vm  G.VM

	// Action selected by the policy, scaled to the environment's
	// action bounds
	scaledActions    *G.Node
	scaledActionsVal G.Value

	actionDims  int
	actionLimit float64

	noise distuv.Normal
	eval  bool
	seed  uint64
}

// NewDeterministicMLP creates a new DeterministicMLP policy that
// selects actions from a given environment env. The MLP is populated
// on a given Gorgonia ExprGraph.
//
// The parameters hiddenSizes, biases, and activations determine the
// architecture of the hidden layers of the MLP. A final layer of
// tanh units, one per action dimension, is appended so that network
// outputs stay in (-1, 1) before being scaled to the action bounds.
// The actionNoise parameter is the standard deviation of the Gaussian
// exploration noise. If actionNoise is non-positive, no noise is added
// even in training mode.
func NewDeterministicMLP(env environment.Environment, batch int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*network.Activation, init G.InitWFn, actionNoise float64,
	seed uint64) (agent.NNPolicy, error) {
	if env.ActionSpec().Cardinality != environment.Continuous {
		err := fmt.Errorf("newDeterministicMLP: deterministic MLP policy " +
			"cannot be used with discrete actions")
		return nil, err
	}

	features := env.ObservationSpec().Shape.Len()
	actionDims := env.ActionSpec().Shape.Len()
	actionLimit := env.ActionSpec().UpperBound.AtVec(0)

	// Append the tanh output layer to the architecture
	hiddenSizes = append(hiddenSizes, actionDims)
	biases = append(biases, true)
	activations = append(activations, network.TanH())

	input := G.NewMatrix(g, G.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	net, err := network.NewMultiHeadMLPFromInputs([]*G.Node{input},
		actionDims, g, hiddenSizes, biases, init, activations, "", "", false)
	if err != nil {
		return nil, fmt.Errorf("newDeterministicMLP: could not create "+
			"policy network: %v", err)
	}

	return fromNetwork(net, actionDims, actionLimit, actionNoise, seed,
		batch == 1)
}

// fromNetwork constructs a DeterministicMLP around an existing policy
// network, adding the action scaling node to the network's graph. A
// VM is created only for single-step policies that select actions.
func fromNetwork(net network.NeuralNet, actionDims int, actionLimit,
	actionNoise float64, seed uint64, withVM bool) (*DeterministicMLP, error) {
	limit := G.NewConstant(actionLimit)
	scaledActions := G.Must(G.Mul(net.Prediction(), limit))

	source := rand.NewSource(seed)
	noise := distuv.Normal{
		Mu:    0.0,
		Sigma: actionNoise,
		Src:   source,
	}

	pol := &DeterministicMLP{
		net:           net,
		scaledActions: scaledActions,
		actionDims:    actionDims,
		actionLimit:   actionLimit,
		noise:         noise,
		eval:          false,
		seed:          seed,
	}
	G.Read(pol.scaledActions, &pol.scaledActionsVal)

	if withVM {
		pol.vm = G.NewTapeMachine(net.Graph())
	}

	return pol, nil
}

// SelectAction runs the policy's network on the observation of the
// argument timestep, returning the scaled action. In training mode,
// Gaussian noise is added to each action dimension before the action
// is clipped to the action bounds.
func (d *DeterministicMLP) SelectAction(t timestep.TimeStep) *mat.VecDense {
	if d.vm == nil {
		panic("selectAction: policy has no VM for action selection")
	}
	obs := t.Observation.(*mat.VecDense).RawVector().Data

	if err := d.net.SetInput(obs); err != nil {
		panic(err)
	}
	if err := d.vm.RunAll(); err != nil {
		panic(err)
	}

	data := d.scaledActionsVal.Data().([]float64)
	action := make([]float64, d.actionDims)
	copy(action, data)
	d.vm.Reset()

	if !d.eval && d.noise.Sigma > 0 {
		for i := range action {
			action[i] += d.noise.Rand()
		}
	}
	floatutils.ClipSlice(action, -d.actionLimit, d.actionLimit)

	return mat.NewVecDense(d.actionDims, action)
}

// ScaledActions returns the node of the policy's computational graph
// that holds the selected actions after scaling to the action bounds.
func (d *DeterministicMLP) ScaledActions() *G.Node {
	return d.scaledActions
}

// ActionLimit returns the maximum magnitude of each action dimension.
func (d *DeterministicMLP) ActionLimit() float64 {
	return d.actionLimit
}

// Eval sets the policy to evaluation mode
func (d *DeterministicMLP) Eval() {
	d.eval = true
}

// Train sets the policy to training mode
func (d *DeterministicMLP) Train() {
	d.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (d *DeterministicMLP) IsEval() bool {
	return d.eval
}

// Network returns the policy's network
func (d *DeterministicMLP) Network() network.NeuralNet {
	return d.net
}

// Clone clones the DeterministicMLP to a new computational graph
func (d *DeterministicMLP) Clone() (agent.NNPolicy, error) {
	return d.CloneWithBatch(d.net.BatchSize())
}

// CloneWithBatch clones the DeterministicMLP to a new computational
// graph with a new input batch size
func (d *DeterministicMLP) CloneWithBatch(batch int) (agent.NNPolicy,
	error) {
	net, err := d.net.CloneWithBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: could not clone policy "+
			"network: %v", err)
	}

	pol, err := fromNetwork(net, d.actionDims, d.actionLimit, d.noise.Sigma,
		d.seed, batch == 1)
	if err != nil {
		return nil, err
	}
	pol.eval = d.eval
	return pol, nil
}

// Close cleans up the policy's resources
func (d *DeterministicMLP) Close() error {
	if d.vm == nil {
		return nil
	}
	return d.vm.Close()
}

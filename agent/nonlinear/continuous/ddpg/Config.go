package ddpg

import (
	"fmt"

	"github.com/supergus/ll-spinningup-clean/agent"
	"github.com/supergus/ll-spinningup-clean/environment"
	"github.com/supergus/ll-spinningup-clean/expreplay"
	"github.com/supergus/ll-spinningup-clean/initwfn"
	"github.com/supergus/ll-spinningup-clean/network"
	"github.com/supergus/ll-spinningup-clean/solver"
)

var _ agent.Config = Config{}

// Config implements a configuration for a DDPG agent
type Config struct {
	// Policy neural net
	PolicyLayers      []int
	PolicyBiases      []bool
	PolicyActivations []*network.Activation

	// Action value function neural net
	CriticLayers      []int
	CriticBiases      []bool
	CriticActivations []*network.Activation

	// Weight init function for all neural nets
	InitWFn *initwfn.InitWFn

	PolicySolver *solver.Solver
	CriticSolver *solver.Solver

	// Experience replay buffer parameters
	ExpReplay expreplay.Config

	// Polyak is the interpolation factor in polyak averaging of the
	// target networks. Target networks track the learned networks with
	// an exponential average that decays with this factor, so values
	// close to 1 give slowly changing targets.
	Polyak float64

	// ActionNoise is the standard deviation of the Gaussian
	// exploration noise added to actions at training time
	ActionNoise float64

	// StartSteps is the number of initial environment steps on which
	// uniform random actions are taken before the learned policy is
	// used. This improves early exploration.
	StartSteps int

	// UpdateAfter is the number of environment steps to collect before
	// any gradient updates are performed. The replay buffer should
	// hold a reasonable sample population before updates begin.
	UpdateAfter int

	// UpdateEvery is the number of environment steps between rounds
	// of gradient updates. One update is performed per elapsed
	// environment step, so the ratio of updates to steps is one
	// regardless of this value.
	UpdateEvery int
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c Config) Validate() error {
	if len(c.PolicyLayers) != len(c.PolicyBiases) {
		return fmt.Errorf("invalid number of policy biases"+
			"\n\twant(%d)\n\thave(%d)", len(c.PolicyLayers),
			len(c.PolicyBiases))
	}
	if len(c.PolicyLayers) != len(c.PolicyActivations) {
		return fmt.Errorf("invalid number of policy activations"+
			"\n\twant(%d)\n\thave(%d)", len(c.PolicyLayers),
			len(c.PolicyActivations))
	}
	if len(c.CriticLayers) != len(c.CriticBiases) {
		return fmt.Errorf("invalid number of critic biases"+
			"\n\twant(%d)\n\thave(%d)", len(c.CriticLayers),
			len(c.CriticBiases))
	}
	if len(c.CriticLayers) != len(c.CriticActivations) {
		return fmt.Errorf("invalid number of critic activations"+
			"\n\twant(%d)\n\thave(%d)", len(c.CriticLayers),
			len(c.CriticActivations))
	}
	if c.InitWFn == nil {
		return fmt.Errorf("no weight initialization function given")
	}
	if c.PolicySolver == nil || c.CriticSolver == nil {
		return fmt.Errorf("policy and critic solvers must both be given")
	}
	if c.Polyak < 0 || c.Polyak >= 1 {
		return fmt.Errorf("polyak must be in [0, 1), got %v", c.Polyak)
	}
	if c.UpdateEvery <= 0 {
		return fmt.Errorf("updateEvery must be positive, got %v",
			c.UpdateEvery)
	}
	if c.BatchSize() <= 0 {
		return fmt.Errorf("batch size must be positive, got %v",
			c.BatchSize())
	}
	return nil
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.ExpReplay.BatchSize
}

// ValidAgent returns whether the argument agent is valid for this
// Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*DDPG)
	return ok
}

// CreateAgent creates the DDPG agent that this Config describes
func (c Config) CreateAgent(env environment.Environment,
	seed uint64) (agent.Agent, error) {
	return New(env, c, seed)
}

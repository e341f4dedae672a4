package network

import (
	G "gorgonia.org/gorgonia"
)

// NewSingleHeadMLP creates and returns a new multi-layered perceptron
// with a single output node. Such networks predict a single scalar per
// input, for example a state-action value.
func NewSingleHeadMLP(features, batch int, g *G.ExprGraph, hiddenSizes []int,
	biases []bool, init G.InitWFn, activations []*Activation) (NeuralNet,
	error) {
	return NewMultiHeadMLP(features, batch, 1, g, hiddenSizes, biases, init,
		activations)
}

// NewSingleHeadMLPFromInputs creates and returns a new multi-layered
// perceptron with a single output node whose inputs are specific nodes
// in an existing computational graph. Multiple input nodes are
// concatenated along the feature dimension before the first layer,
// which is how action values are predicted from a state and an action.
func NewSingleHeadMLPFromInputs(inputs []*G.Node, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, init G.InitWFn,
	activations []*Activation, prefix, suffix string) (NeuralNet, error) {
	return NewMultiHeadMLPFromInputs(inputs, 1, g, hiddenSizes, biases, init,
		activations, prefix, suffix, true)
}

// Package network implements neural networks on Gorgonia
// computational graphs
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a neural network whose forward pass has been added to
// some Gorgonia computational graph
type NeuralNet interface {
	Graph() *G.ExprGraph
	Clone() (NeuralNet, error)
	CloneWithBatch(int) (NeuralNet, error)

	// CloneWithInputsTo clones the network to a new graph, wiring its
	// input to the given nodes. If multiple input nodes are given,
	// they are concatenated along axis before the forward pass.
	CloneWithInputsTo(axis int, inputs []*G.Node, g *G.ExprGraph) (NeuralNet,
		error)

	BatchSize() int
	Features() int
	Outputs() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}

// Set sets the weights of dest to the weights of source
func Set(dest, source NeuralNet) error {
	return dest.Set(source)
}

// Polyak updates the weights of dest as an exponential average toward
// the weights of source: dest <- (1-tau)*dest + tau*source
func Polyak(dest, source NeuralNet, tau float64) error {
	return dest.Polyak(source, tau)
}

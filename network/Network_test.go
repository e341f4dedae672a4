package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

const testTolerance float64 = 1e-12

// newTestPair returns two MLPs of identical architecture but with
// different weight values.
func newTestPair(t *testing.T) (NeuralNet, NeuralNet) {
	t.Helper()

	hiddenSizes := []int{5, 4}
	biases := []bool{true, true}
	activations := []*Activation{ReLU(), ReLU()}

	main, err := NewMultiHeadMLP(3, 1, 2, G.NewGraph(), hiddenSizes, biases,
		G.RangedFrom(0), activations)
	if err != nil {
		t.Fatalf("could not construct main network: %v", err)
	}

	target, err := NewMultiHeadMLP(3, 1, 2, G.NewGraph(), hiddenSizes, biases,
		G.RangedFrom(100), activations)
	if err != nil {
		t.Fatalf("could not construct target network: %v", err)
	}

	return main, target
}

// weightValues returns a copy of the values of all learnable weights
// in a network.
func weightValues(t *testing.T, net NeuralNet) [][]float64 {
	t.Helper()

	values := make([][]float64, 0, len(net.Learnables()))
	for _, node := range net.Learnables() {
		data := node.Value().Data().([]float64)
		copied := make([]float64, len(data))
		copy(copied, data)
		values = append(values, copied)
	}
	return values
}

func TestSetCopiesAllWeights(t *testing.T) {
	main, target := newTestPair(t)

	if err := target.Set(main); err != nil {
		t.Fatalf("could not set target weights: %v", err)
	}

	mainWeights := weightValues(t, main)
	targetWeights := weightValues(t, target)
	for i := range mainWeights {
		for j := range mainWeights[i] {
			if targetWeights[i][j] != mainWeights[i][j] {
				t.Errorf("weight %v of learnable %v was not copied: "+
					"expected %v, got %v", j, i, mainWeights[i][j],
					targetWeights[i][j])
			}
		}
	}
}

func TestPolyakAveragesWeights(t *testing.T) {
	main, target := newTestPair(t)

	polyak := 0.995
	oldTargetWeights := weightValues(t, target)
	mainWeights := weightValues(t, main)

	// Polyak moves the target a fraction (1 - polyak) of the way
	// toward the main network
	if err := target.Polyak(main, 1-polyak); err != nil {
		t.Fatalf("could not polyak average target weights: %v", err)
	}

	newTargetWeights := weightValues(t, target)
	for i := range newTargetWeights {
		for j := range newTargetWeights[i] {
			expected := polyak*oldTargetWeights[i][j] +
				(1-polyak)*mainWeights[i][j]
			if math.Abs(newTargetWeights[i][j]-expected) > testTolerance {
				t.Errorf("incorrect averaged weight %v of learnable %v: "+
					"expected %v, got %v", j, i, expected,
					newTargetWeights[i][j])
			}
		}
	}
}

func TestCloneWithBatchPreservesWeights(t *testing.T) {
	main, _ := newTestPair(t)

	clone, err := main.CloneWithBatch(16)
	if err != nil {
		t.Fatalf("could not clone network: %v", err)
	}

	if clone.BatchSize() != 16 {
		t.Errorf("expected clone batch size 16, got %v", clone.BatchSize())
	}
	if clone.Features() != main.Features() {
		t.Errorf("expected clone features %v, got %v", main.Features(),
			clone.Features())
	}

	mainWeights := weightValues(t, main)
	cloneWeights := weightValues(t, clone)
	for i := range mainWeights {
		for j := range mainWeights[i] {
			if cloneWeights[i][j] != mainWeights[i][j] {
				t.Errorf("weight %v of learnable %v changed during clone: "+
					"expected %v, got %v", j, i, mainWeights[i][j],
					cloneWeights[i][j])
			}
		}
	}
}

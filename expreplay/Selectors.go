package expreplay

import (
	"math/rand"
)

// Selector implements functionality for choosing which indices of an
// experience replay buffer a batch should be drawn from
type Selector interface {
	// choose selects the indices at which data should be sampled from
	// the experience replay buffer
	choose(c *circularCache) []int

	// BatchSize returns the number of elements that will be selected
	BatchSize() int
}

// uniformSelector is a Selector which selects indices from an
// experience replay buffer uniformly randomly with replacement
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly from an experience replay buffer
func NewUniformSelector(samples int, seed int64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// BatchSize gets the number of samples in a batch drawn from the buffer
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// buffer. Indices are drawn with replacement from [0, Capacity()).
func (u *uniformSelector) choose(c *circularCache) []int {
	selected := make([]int, u.BatchSize())
	for i := 0; i < u.BatchSize(); i++ {
		selected[i] = u.rng.Intn(c.Capacity())
	}

	return selected
}

package expreplay

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/supergus/ll-spinningup-clean/timestep"
)

// transitionOf returns a 1-dimensional transition whose every field is
// backed by the single value v, so buffer slots can be identified in
// tests.
func transitionOf(v float64) timestep.Transition {
	vec := mat.NewVecDense(1, []float64{v})
	return timestep.Transition{
		Raw:       vec,
		State:     vec,
		Action:    vec,
		Reward:    v,
		Discount:  0.99,
		NextState: vec,
	}
}

func newTestCache(t *testing.T, batchSize, minCapacity,
	maxCapacity int) *circularCache {
	t.Helper()

	sampler := NewUniformSelector(batchSize, 14)
	buffer, err := New(sampler, minCapacity, maxCapacity, 1, 1, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	return buffer.(*circularCache)
}

func TestAddOverwritesOldestWhenFull(t *testing.T) {
	c := newTestCache(t, 1, 1, 3)

	// Insert A, B, C, D into a buffer of capacity 3
	for _, v := range []float64{1, 2, 3, 4} {
		if err := c.Add(transitionOf(v)); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	if c.Capacity() != 3 {
		t.Errorf("size should stay at capacity \n\twant(3)\n\thave(%v)",
			c.Capacity())
	}
	if c.cursor != 1 {
		t.Errorf("cursor should wrap to 1 \n\twant(1)\n\thave(%v)", c.cursor)
	}

	// D overwrote A, leaving [D, B, C]
	expected := []float64{4, 2, 3}
	for i, v := range expected {
		if c.stateCache[i] != v {
			t.Errorf("slot %v: \n\twant(%v)\n\thave(%v)", i, v,
				c.stateCache[i])
		}
		if c.rawCache[i] != v {
			t.Errorf("raw slot %v: \n\twant(%v)\n\thave(%v)", i, v,
				c.rawCache[i])
		}
	}
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	c := newTestCache(t, 4, 1, 8)

	for i := 0; i < 50; i++ {
		if err := c.Add(transitionOf(float64(i))); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
		if c.Capacity() > c.MaxCapacity() {
			t.Fatalf("size exceeded capacity after %v inserts", i+1)
		}
		if c.cursor < 0 || c.cursor >= c.MaxCapacity() {
			t.Fatalf("cursor %v outside [0, %v)", c.cursor, c.MaxCapacity())
		}
	}

	if !c.isFull {
		t.Error("buffer should report full after overfilling")
	}
}

func TestSampleIndicesWithinOccupiedRange(t *testing.T) {
	c := newTestCache(t, 16, 1, 10)

	// Partially fill: occupied region is [0, 5)
	for i := 1; i <= 5; i++ {
		if err := c.Add(transitionOf(float64(i))); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	for trial := 0; trial < 20; trial++ {
		_, states, _, _, _, _, err := c.Sample()
		if err != nil {
			t.Fatalf("could not sample: %v", err)
		}
		for _, s := range states {
			if s < 1 || s > 5 {
				t.Fatalf("sampled value %v outside occupied slots", s)
			}
		}
	}
}

func TestSampleEmptyBuffer(t *testing.T) {
	c := newTestCache(t, 2, 1, 4)

	_, _, _, _, _, _, err := c.Sample()
	if !IsEmptyBuffer(err) {
		t.Errorf("expected empty buffer error, got %v", err)
	}
}

func TestSampleBelowMinCapacity(t *testing.T) {
	c := newTestCache(t, 2, 3, 4)

	if err := c.Add(transitionOf(1)); err != nil {
		t.Fatalf("could not add transition: %v", err)
	}

	_, _, _, _, _, _, err := c.Sample()
	if !IsInsufficientSamples(err) {
		t.Errorf("expected insufficient samples error, got %v", err)
	}
}

func TestSampleFieldsStayAligned(t *testing.T) {
	c := newTestCache(t, 8, 1, 6)

	for i := 1; i <= 9; i++ {
		if err := c.Add(transitionOf(float64(i))); err != nil {
			t.Fatalf("could not add transition: %v", err)
		}
	}

	raw, states, actions, rewards, _, nextStates, err := c.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	for i := range rewards {
		if states[i] != rewards[i] || actions[i] != rewards[i] ||
			nextStates[i] != rewards[i] || raw[i] != rewards[i] {
			t.Errorf("sampled fields misaligned at %v: raw %v state %v "+
				"action %v reward %v next %v", i, raw[i], states[i],
				actions[i], rewards[i], nextStates[i])
		}
	}
}

func TestNewInvalidConfiguration(t *testing.T) {
	sampler := NewUniformSelector(10, 14)

	if _, err := New(sampler, 1, 5, 1, 1, 1); err == nil {
		t.Error("expected error when batch size exceeds capacity")
	}
	if _, err := New(sampler, 0, 20, 1, 1, 1); err == nil {
		t.Error("expected error for non-positive min capacity")
	}
}

// Package expreplay implements fixed-capacity experience replay
// buffers for off-policy agents
package expreplay

import (
	"fmt"

	"github.com/supergus/ll-spinningup-clean/timestep"
	"github.com/supergus/ll-spinningup-clean/utils/intutils"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	BatchSize         int
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the ExperienceReplayer with the specified
// Config. The rawSize, featureSize, and actionSize parameters define
// the sizes of the raw signal, observation, and action vectors stored
// per transition.
func (c Config) Create(rawSize, featureSize, actionSize int,
	seed int64) (ExperienceReplayer, error) {
	sampler := NewUniformSelector(c.BatchSize, seed)

	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity, rawSize,
		featureSize, actionSize)
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer and returns
	// the batch as field-aligned slices: raw signals, states, actions,
	// rewards, discounts, and next states
	Sample() ([]float64, []float64, []float64, []float64, []float64,
		[]float64, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// circularCache implements a concrete ExperienceReplayer as a
// fixed-capacity circular buffer. New transitions are written at a
// cursor which advances modulo the capacity, silently overwriting the
// oldest data once the buffer is full.
//
// Invariants: cursor is always in [0, maxCapacity); currentSize never
// exceeds maxCapacity; for any stored transition, all field caches are
// indexed consistently.
type circularCache struct {
	rawCache       []float64
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	discountCache  []float64
	nextStateCache []float64

	cursor      int
	currentSize int
	isFull      bool

	sampler Selector

	minCapacity int
	maxCapacity int
	rawSize     int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The sampler
// parameter is a Selector which determines how data is sampled from
// the replay buffer. The rawSize, featureSize, and actionSize
// parameters define the sizes of the raw signal, feature, and action
// vectors.
func New(sampler Selector, minCapacity, maxCapacity, rawSize, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return &circularCache{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &circularCache{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return &circularCache{}, fmt.Errorf("new: cannot have batch size(%v) "+
			"> max buffer capacity (%v)", sampler.BatchSize(), maxCapacity)
	}

	return &circularCache{
		rawCache:       make([]float64, maxCapacity*rawSize),
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		discountCache:  make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		cursor:      0,
		currentSize: 0,
		isFull:      false,

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		rawSize:     rawSize,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the circularCache
func (c *circularCache) String() string {
	baseStr := "Cursor: %v \nSize: %v \nRaw: %v \nStates: %v \nActions: %v" +
		" \nRewards: %v \nDiscounts: %v \nNext States: %v"
	return fmt.Sprintf(baseStr, c.cursor, c.currentSize, c.rawCache,
		c.stateCache, c.actionCache, c.rewardCache, c.discountCache,
		c.nextStateCache)
}

// BatchSize returns the number of samples returned by Sample()
func (c *circularCache) BatchSize() int {
	return c.sampler.BatchSize()
}

// Capacity returns the current number of elements in the cache that
// are available for sampling
func (c *circularCache) Capacity() int {
	return c.currentSize
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the cache
func (c *circularCache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// cache before sampling is allowed
func (c *circularCache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the cache, overwriting the slot at the
// current cursor and advancing the cursor modulo the capacity. Once
// the buffer is full, the oldest transition is silently discarded.
func (c *circularCache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}
	if t.Raw != nil && t.Raw.Len() != c.rawSize {
		return fmt.Errorf("add: invalid raw signal size \n\twant(%v)"+
			"\n\thave(%v)", c.rawSize, t.Raw.Len())
	}

	index := c.cursor

	rawInd := index * c.rawSize
	if t.Raw != nil {
		for i := 0; i < c.rawSize; i++ {
			c.rawCache[rawInd+i] = t.Raw.AtVec(i)
		}
	} else {
		for i := 0; i < c.rawSize; i++ {
			c.rawCache[rawInd+i] = 0.0
		}
	}

	stateInd := index * c.featureSize
	for i := 0; i < c.featureSize; i++ {
		c.stateCache[stateInd+i] = t.State.AtVec(i)
		c.nextStateCache[stateInd+i] = t.NextState.AtVec(i)
	}

	actionInd := index * c.actionSize
	for i := 0; i < c.actionSize; i++ {
		c.actionCache[actionInd+i] = t.Action.AtVec(i)
	}

	c.rewardCache[index] = t.Reward
	c.discountCache[index] = t.Discount

	c.cursor = (c.cursor + 1) % c.maxCapacity
	c.currentSize = intutils.Min(c.currentSize+1, c.maxCapacity)
	c.isFull = c.currentSize == c.maxCapacity

	return nil
}

// Sample samples and returns a batch of transitions from the replay
// buffer. Indices are drawn by the cache's Selector from the occupied
// portion of the buffer.
func (c *circularCache) Sample() ([]float64, []float64, []float64, []float64,
	[]float64, []float64, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, nil, nil, nil, nil, nil, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, nil, nil, nil, nil, nil, err
	}

	indices := c.sampler.choose(c)

	rawBatch := make([]float64, c.BatchSize()*c.rawSize)
	for i, index := range indices {
		batchStartInd := i * c.rawSize
		expStartInd := index * c.rawSize
		copy(rawBatch[batchStartInd:batchStartInd+c.rawSize],
			c.rawCache[expStartInd:expStartInd+c.rawSize],
		)
	}

	stateBatch := make([]float64, c.BatchSize()*c.featureSize)
	nextStateBatch := make([]float64, c.BatchSize()*c.featureSize)
	for i, index := range indices {
		batchStartInd := i * c.featureSize
		expStartInd := index * c.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.stateCache[expStartInd:expStartInd+c.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+c.featureSize],
			c.nextStateCache[expStartInd:expStartInd+c.featureSize],
		)
	}

	actionBatch := make([]float64, c.BatchSize()*c.actionSize)
	for i, index := range indices {
		batchStartInd := i * c.actionSize
		expStartInd := index * c.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+c.actionSize],
			c.actionCache[expStartInd:expStartInd+c.actionSize],
		)
	}

	rewardBatch := make([]float64, c.BatchSize())
	discountBatch := make([]float64, c.BatchSize())
	for i, index := range indices {
		rewardBatch[i] = c.rewardCache[index]
		discountBatch[i] = c.discountCache[index]
	}

	return rawBatch, stateBatch, actionBatch, rewardBatch, discountBatch,
		nextStateBatch, nil
}

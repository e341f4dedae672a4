package liveline

import (
	"fmt"
	"math"
)

// ControllerMode determines how controller nudges are computed from
// agent actions
type ControllerMode string

const (
	// Absolute mode interprets each action as the new nudge value
	Absolute ControllerMode = "absolute"

	// Incremental mode interprets each action as a change to the
	// current nudge value
	Incremental ControllerMode = "incremental"
)

// DataMode selects which window of the dataset playback is active
type DataMode string

const (
	All   DataMode = "all"
	Train DataMode = "train"
	Test  DataMode = "test"
	Val   DataMode = "val"
)

// StepIndexMode determines how the playhead advances on each step
type StepIndexMode string

const (
	// Sequential advances the playhead by one batch per step
	Sequential StepIndexMode = "sequential"

	// RandomStep moves the playhead to a random batch each step
	RandomStep StepIndexMode = "random"
)

// ResetIndexMode determines where the playhead starts on reset
type ResetIndexMode string

const (
	// ResetZero starts each episode at the first untrimmed batch
	ResetZero ResetIndexMode = "zero"

	// ResetRandom starts each episode at a random untrimmed batch
	ResetRandom ResetIndexMode = "random"
)

// Verbosity levels for console output
const (
	Silent       int = 0 // No console output
	WarningsOnly int = 1 // Warnings only
	Full         int = 2 // Full verbosity
)

// Config describes a liveline process playback environment
type Config struct {
	// Action bounds. The environment clips incoming actions to these
	// bounds before applying them to its controllers.
	ActionMax float64
	ActionMin float64

	// Observation bounds. An observation outside these bounds ends
	// the episode at a terminal state.
	ObsMax float64
	ObsMin float64

	Seed uint64

	// Reward shaping. The per-step reward is BaseReward minus
	// RmseFactor times the setpoint tracking error, minus action and
	// nudge magnitude penalties. The two regularization styles come
	// from different experiment generations: RegFactor penalizes
	// action magnitude alone, while ARegFactor/NRegFactor penalize
	// action and nudge magnitudes separately. Unused factors are left
	// at zero.
	BaseReward float64
	RmseFactor float64
	RegFactor  float64
	ARegFactor float64
	NRegFactor float64

	ControllerMode ControllerMode
	DataMode       DataMode
	StepIndexMode  StepIndexMode
	ResetIndexMode ResetIndexMode

	Verbosity int

	// TrimBatchesStart and TrimBatchesEnd exclude leading and
	// trailing batches of the dataset from playback. Process lines
	// produce warm-up and shutdown artifacts at the edges of a run.
	TrimBatchesStart int
	TrimBatchesEnd   int

	// Number of controlled output channels
	NumOutputs int

	// Total number of batches in the synthetic dataset
	NumBatches int
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.ActionMin > c.ActionMax {
		return fmt.Errorf("action bounds: min (%v) > max (%v)", c.ActionMin,
			c.ActionMax)
	}
	if c.ObsMin > c.ObsMax {
		return fmt.Errorf("observation bounds: min (%v) > max (%v)",
			c.ObsMin, c.ObsMax)
	}
	switch c.ControllerMode {
	case Absolute, Incremental:
	default:
		return fmt.Errorf("unknown controller mode %q", c.ControllerMode)
	}
	switch c.DataMode {
	case All, Train, Test, Val:
	default:
		return fmt.Errorf("unknown data mode %q", c.DataMode)
	}
	switch c.StepIndexMode {
	case Sequential, RandomStep:
	default:
		return fmt.Errorf("unknown step index mode %q", c.StepIndexMode)
	}
	switch c.ResetIndexMode {
	case ResetZero, ResetRandom:
	default:
		return fmt.Errorf("unknown reset index mode %q", c.ResetIndexMode)
	}
	if c.NumOutputs <= 0 {
		return fmt.Errorf("numOutputs must be positive, got %v", c.NumOutputs)
	}
	if c.TrimBatchesStart < 0 || c.TrimBatchesEnd < 0 {
		return fmt.Errorf("trim margins cannot be negative")
	}
	if c.NumBatches-c.TrimBatchesStart-c.TrimBatchesEnd < 2 {
		return fmt.Errorf("trim margins leave fewer than 2 of %v batches "+
			"for playback", c.NumBatches)
	}
	return nil
}

// NewConfig returns a Config with default values. Callers adjust the
// fields they care about before constructing the environment.
func NewConfig() Config {
	return Config{
		ActionMax:        2.0,
		ActionMin:        -2.0,
		ObsMax:           2.0,
		ObsMin:           -2.0,
		Seed:             42,
		BaseReward:       1.0,
		RmseFactor:       1.0,
		RegFactor:        0.0,
		ARegFactor:       0.0,
		NRegFactor:       0.0,
		ControllerMode:   Absolute,
		DataMode:         All,
		StepIndexMode:    Sequential,
		ResetIndexMode:   ResetRandom,
		Verbosity:        Silent,
		TrimBatchesStart: 100,
		TrimBatchesEnd:   100,
		NumOutputs:       3,
		NumBatches:       10000,
	}
}

// ControllerConfig describes a single setpoint controller. The limit
// pairs bound the controller's output and nudge values and their
// per-step changes. Unbounded limits are the infinities.
type ControllerConfig struct {
	OutputLimMax   float64
	OutputLimMin   float64
	OutputDeltaMax float64
	OutputDeltaMin float64
	NudgeLimMax    float64
	NudgeLimMin    float64
	NudgeDeltaMax  float64
	NudgeDeltaMin  float64

	ControllerMode ControllerMode
	Verbosity      int
}

// Validate returns an error describing whether or not the controller
// configuration is valid
func (c ControllerConfig) Validate() error {
	pairs := []struct {
		name     string
		min, max float64
	}{
		{"output limit", c.OutputLimMin, c.OutputLimMax},
		{"output delta", c.OutputDeltaMin, c.OutputDeltaMax},
		{"nudge limit", c.NudgeLimMin, c.NudgeLimMax},
		{"nudge delta", c.NudgeDeltaMin, c.NudgeDeltaMax},
	}
	for _, pair := range pairs {
		if pair.min > pair.max {
			return fmt.Errorf("%v bounds: min (%v) > max (%v)", pair.name,
				pair.min, pair.max)
		}
	}
	switch c.ControllerMode {
	case Absolute, Incremental:
	default:
		return fmt.Errorf("unknown controller mode %q", c.ControllerMode)
	}
	return nil
}

// NewControllerConfig returns a ControllerConfig with all limits
// unbounded
func NewControllerConfig(mode ControllerMode) ControllerConfig {
	return ControllerConfig{
		OutputLimMax:   math.Inf(1),
		OutputLimMin:   math.Inf(-1),
		OutputDeltaMax: math.Inf(1),
		OutputDeltaMin: math.Inf(-1),
		NudgeLimMax:    math.Inf(1),
		NudgeLimMin:    math.Inf(-1),
		NudgeDeltaMax:  math.Inf(1),
		NudgeDeltaMin:  math.Inf(-1),
		ControllerMode: mode,
		Verbosity:      Silent,
	}
}

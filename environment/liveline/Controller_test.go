package liveline

import (
	"testing"
)

func TestIncrementalModeAccumulatesNudges(t *testing.T) {
	controller, err := NewController(NewControllerConfig(Incremental))
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	controller.Apply(0.1)
	controller.Apply(0.1)
	if nudge := controller.Nudge(); nudge != 0.2 {
		t.Errorf("expected accumulated nudge 0.2, got %v", nudge)
	}
}

func TestAbsoluteModeReplacesNudges(t *testing.T) {
	controller, err := NewController(NewControllerConfig(Absolute))
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	controller.Apply(0.7)
	controller.Apply(0.3)
	if nudge := controller.Nudge(); nudge != 0.3 {
		t.Errorf("expected nudge 0.3, got %v", nudge)
	}
}

func TestNudgeLimitsClipNudges(t *testing.T) {
	config := NewControllerConfig(Absolute)
	config.NudgeLimMax = 0.5
	config.NudgeLimMin = -0.5
	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	controller.Apply(3.0)
	if nudge := controller.Nudge(); nudge != 0.5 {
		t.Errorf("expected nudge clipped to 0.5, got %v", nudge)
	}
}

func TestNudgeDeltaLimitsClipChanges(t *testing.T) {
	config := NewControllerConfig(Incremental)
	config.NudgeDeltaMax = 0.1
	config.NudgeDeltaMin = -0.1
	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	controller.Apply(5.0)
	if nudge := controller.Nudge(); nudge != 0.1 {
		t.Errorf("expected nudge change clipped to 0.1, got %v", nudge)
	}
}

func TestOutputLimitsClipOutputs(t *testing.T) {
	config := NewControllerConfig(Absolute)
	config.OutputLimMax = 1.0
	controller, err := NewController(config)
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	controller.Apply(2.0)
	if out := controller.Output(0.5); out != 1.0 {
		t.Errorf("expected output clipped to 1.0, got %v", out)
	}
}

func TestUpdateParametersRejectsInvalidLimits(t *testing.T) {
	controller, err := NewController(NewControllerConfig(Absolute))
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	bad := NewControllerConfig(Absolute)
	bad.NudgeLimMin = 1.0
	bad.NudgeLimMax = -1.0
	if err := controller.UpdateParameters(bad); err == nil {
		t.Error("expected an error for inverted nudge limits")
	}
}

func TestUpdateParametersReplacesConfiguration(t *testing.T) {
	controller, err := NewController(NewControllerConfig(Absolute))
	if err != nil {
		t.Fatalf("could not construct controller: %v", err)
	}

	updated := NewControllerConfig(Incremental)
	updated.NudgeLimMax = 2.0
	if err := controller.UpdateParameters(updated); err != nil {
		t.Fatalf("could not update parameters: %v", err)
	}
	if controller.Config().ControllerMode != Incremental {
		t.Error("updated controller mode was not applied")
	}
	if controller.Config().NudgeLimMax != 2.0 {
		t.Error("updated nudge limit was not applied")
	}
}

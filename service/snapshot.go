package service

import "github.com/mycobotics/chamberlink/internal/codec"

// Snapshot is one control-loop tick's view of the chamber, pushed into the
// service by the collaborator that owns the sensors and actuators.
type Snapshot struct {
	Environmental codec.Environmental
	Targets       codec.ControlTargets
	Stage         codec.StageState
	Overrides     codec.OverrideBits
	Status        codec.StatusFlags
	Actuators     codec.ActuatorStatus

	// Human-readable identity used for the advertising name.
	Species   string
	StageName string
}

// Callbacks are the hooks the service invokes when a remote device writes
// a control characteristic. All fields are optional.
type Callbacks struct {
	SetTargets   func(codec.ControlTargets) error
	SetOverrides func(codec.OverrideBits) error
	SetStage     func(codec.StageState) error
}

func (c Callbacks) withDefaults() Callbacks {
	if c.SetTargets == nil {
		c.SetTargets = func(codec.ControlTargets) error { return nil }
	}
	if c.SetOverrides == nil {
		c.SetOverrides = func(codec.OverrideBits) error { return nil }
	}
	if c.SetStage == nil {
		c.SetStage = func(codec.StageState) error { return nil }
	}
	return c
}

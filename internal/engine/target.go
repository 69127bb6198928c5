package engine

import (
	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

// Phase is a step in the service lifecycle.
type Phase string

const (
	PhaseUninstalled        Phase = "Uninstalled"
	PhaseInstalling         Phase = "Installing"
	PhaseAwaitingDependency Phase = "AwaitingDependency"
	PhaseConfiguring        Phase = "Configuring"
	PhaseActive             Phase = "Active"
)

// TargetState is what a pass should drive the service to.
type TargetState struct {
	// Phase is the phase the pass aims for.
	Phase Phase

	// Ports is the port plan for the configured role.
	Ports ports.Plan

	// Binding is the resolved database, nil when not ready.
	Binding *dependency.Binding

	// Current is the persisted state the target was derived from.
	Current state.ServiceState
}

// DeriveTargetState is the single derivation every entry point uses.
//
// A unit whose payload is not installed targets Installing. An installed
// unit without a binding waits for the database. Otherwise the target is
// Active: settings are rendered and the service restarted, which is safe to
// repeat.
func DeriveTargetState(cfg config.ServiceConfig, binding *dependency.Binding, current state.ServiceState) TargetState {
	t := TargetState{
		Ports:   ports.PlanFor(cfg.ServiceRole),
		Binding: binding,
		Current: current,
	}

	switch {
	case !current.Available:
		t.Phase = PhaseInstalling
	case binding == nil:
		t.Phase = PhaseAwaitingDependency
	default:
		t.Phase = PhaseActive
	}
	return t
}

// NeedsInstall reports whether the payload still has to be installed.
func (t TargetState) NeedsInstall() bool {
	return t.Phase == PhaseInstalling
}

// CanConfigure reports whether settings can be rendered and applied.
func (t TargetState) CanConfigure() bool {
	return t.Phase == PhaseActive
}

// ObservedPhase reports where the service currently is, given the persisted
// flags and whether a binding resolves right now.
func ObservedPhase(current state.ServiceState, bindingReady bool) Phase {
	switch {
	case !current.Available:
		return PhaseUninstalled
	case !bindingReady:
		return PhaseAwaitingDependency
	case !current.Active:
		return PhaseConfiguring
	default:
		return PhaseActive
	}
}

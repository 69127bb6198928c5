package engine

import (
	"errors"
	"fmt"
)

// Step names a collaborator call within a pass.
type Step string

const (
	StepConfig   Step = "config"
	StepRelation Step = "relation"
	StepProxy    Step = "proxy"
	StepPorts    Step = "ports"
	StepInstall  Step = "install"
	StepUpgrade  Step = "upgrade"
	StepEnable   Step = "enable"
	StepRender   Step = "render"
	StepApply    Step = "apply"
	StepRestart  Step = "restart"
)

// CollaboratorError wraps a failure of an external collaborator.
type CollaboratorError struct {
	Step Step
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsCollaboratorFailure reports whether err came from a collaborator, and
// which step.
func IsCollaboratorFailure(err error) (Step, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Step, true
	}
	return "", false
}

func collaboratorFailure(step Step, err error) error {
	return &CollaboratorError{Step: step, Err: err}
}

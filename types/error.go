package types

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	ErrDefinitionNotFound     = errors.ConstError("definition not found")
	ErrInstanceNotFound       = errors.ConstError("instance not found")
	ErrInvalidStateTransition = errors.ConstError("invalid state transition")
	ErrDuplicateDefinitionID  = errors.ConstError("duplicate definition id")
	ErrDuplicateNodeID        = errors.ConstError("duplicate node id")
	ErrValidation             = errors.ConstError("validation error")
	ErrExecutionFailure       = errors.ConstError("execution failure")

	// ErrNotReady may be returned by a task executor or a predicate to leave
	// the node in the frontier. The instance parks until its context changes.
	ErrNotReady = errors.ConstError("node not ready")
)

var (
	_ error = &OrchestrationError{}
)

// OrchestrationError carries one of the taxonomy kinds above. errors.Is
// matches both the kind and the juju category it belongs to, so
// errors.Is(err, errors.NotFound) keeps working for callers of the juju helpers.
type OrchestrationError struct {
	*baseError

	Kind     errors.ConstError
	category errors.ConstError
}

func (e *OrchestrationError) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.category != "" && target == e.category
}

func (e *OrchestrationError) Unwrap() error {
	return e.BaseErr
}

func newOrchestrationError(kind, category errors.ConstError, err error) *OrchestrationError {
	return &OrchestrationError{baseError: newBaseErr(err), Kind: kind, category: category}
}

func NewDefinitionNotFound(definitionID string) error {
	return newOrchestrationError(ErrDefinitionNotFound, errors.NotFound,
		fmt.Errorf("workflow definition %s not found", definitionID))
}

func NewInstanceNotFound(instanceID string) error {
	return newOrchestrationError(ErrInstanceNotFound, errors.NotFound,
		fmt.Errorf("workflow instance %s not found", instanceID))
}

func NewInvalidStateTransition(instanceID string, from, to State) error {
	return newOrchestrationError(ErrInvalidStateTransition, errors.Forbidden,
		fmt.Errorf("workflow instance %s can not move from %v to %v", instanceID, from, to))
}

func NewDuplicateDefinitionID(definitionID string) error {
	return newOrchestrationError(ErrDuplicateDefinitionID, errors.AlreadyExists,
		fmt.Errorf("workflow definition %s already registered", definitionID))
}

func NewDuplicateNodeID(nodeID string) error {
	return newOrchestrationError(ErrDuplicateNodeID, errors.AlreadyExists,
		fmt.Errorf("node %s already exists", nodeID))
}

func NewValidationErrorf(format string, args ...any) error {
	return newOrchestrationError(ErrValidation, errors.NotValid, fmt.Errorf(format, args...))
}

// NewExecutionFailure wraps an error raised while running a node. The
// message of the wrapped error is kept verbatim.
func NewExecutionFailure(err error) error {
	if err == nil {
		return nil
	}
	return newOrchestrationError(ErrExecutionFailure, "", err)
}

func NewExecutionFailuref(format string, args ...any) error {
	return NewExecutionFailure(fmt.Errorf(format, args...))
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{otherErr}
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

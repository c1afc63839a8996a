package types

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a workflow instance.
type State int32

const (
	Created   State = 1
	Pending   State = 2
	Running   State = 3
	Paused    State = 4
	Completed State = 10
	Failed    State = 11
	Cancelled State = 12
)

var stateNames = map[State]string{
	Created:   "CREATED",
	Pending:   "PENDING",
	Running:   "RUNNING",
	Paused:    "PAUSED",
	Completed: "COMPLETED",
	Failed:    "FAILED",
	Cancelled: "CANCELLED",
}

func (s State) String() string {
	if name, exists := stateNames[s]; exists {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s State) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// NodeKind is the closed set of node kinds a Definition may contain.
// Adding a kind means extending this list, kindNames and the dispatcher switch.
type NodeKind int32

const (
	Task     NodeKind = 1
	Decision NodeKind = 2
	Join     NodeKind = 3
	Fork     NodeKind = 4
	Merge    NodeKind = 5
)

var kindNames = map[NodeKind]string{
	Task:     "task",
	Decision: "decision",
	Join:     "join",
	Fork:     "fork",
	Merge:    "merge",
}

func (k NodeKind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", int32(k))
}

func (k NodeKind) Valid() bool {
	_, exists := kindNames[k]
	return exists
}

// IsControlFlow reports whether the kind is one of the placeholder
// control-flow kinds (join, fork, merge).
func (k NodeKind) IsControlFlow() bool {
	return k == Join || k == Fork || k == Merge
}

// TaskExecutor performs the domain work behind a Task node. Only the error
// return decides whether the node failed; the result is opaque to the engine.
type TaskExecutor interface {
	Execute(ctx context.Context, domain string, input Data) (any, error)
}

type TaskExecutorFunc func(ctx context.Context, domain string, input Data) (any, error)

func (f TaskExecutorFunc) Execute(ctx context.Context, domain string, input Data) (any, error) {
	return f(ctx, domain, input)
}

// Predicate gates an edge (evaluated on the source node's result) or decides
// a Decision node (evaluated on a copy of the instance context).
type Predicate interface {
	Evaluate(value any) (bool, error)
}

type PredicateFunc func(value any) (bool, error)

func (f PredicateFunc) Evaluate(value any) (bool, error) {
	return f(value)
}

package runtime

import (
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

var transitions = map[types.State][]types.State{
	types.Created: {types.Running, types.Cancelled},
	types.Running: {types.Paused, types.Completed, types.Failed, types.Cancelled},
	// a node dispatched before the pause may still finish the instance
	types.Paused: {types.Running, types.Completed, types.Failed, types.Cancelled},
}

func canTransit(from, to types.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// loopControl tracks one execution goroutine of an instance. stop asks the
// loop to exit at its next boundary, done is closed once it has.
type loopControl struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newLoopControl() *loopControl {
	return &loopControl{stop: make(chan struct{}), done: make(chan struct{})}
}

func (l *loopControl) signalStop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *loopControl) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// instanceRunner is the in-memory state of one instance. Only the execution
// loop of the instance mutates frontier, completed and outputs.
type instanceRunner struct {
	mu sync.RWMutex

	id  string
	def *types.Definition

	state       types.State
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	frontier     []string
	completed    []string
	completedSet map[string]bool
	outputs      map[string]any
	context      types.Data
	metadata     types.Data

	err        string
	failedNode string

	loop     *loopControl
	wake     chan struct{}
	finished chan struct{}
}

func newInstanceRunner(id string, def *types.Definition, initial types.Data, metadata types.Data) *instanceRunner {
	r := &instanceRunner{
		id:           id,
		def:          def,
		state:        types.Created,
		createdAt:    time.Now(),
		frontier:     make([]string, 0),
		completed:    make([]string, 0),
		completedSet: make(map[string]bool),
		outputs:      make(map[string]any),
		context:      initial.Clone(),
		metadata:     metadata.Clone(),
		wake:         make(chan struct{}, 1),
		finished:     make(chan struct{}),
	}
	if start := def.StartNode(); start != "" {
		r.frontier = append(r.frontier, start)
	}
	return r
}

// transitLocked moves the instance to state `to`, stamping the start and
// completion times. Callers hold mu.
func (r *instanceRunner) transitLocked(to types.State) error {
	if !canTransit(r.state, to) {
		return types.NewInvalidStateTransition(r.id, r.state, to)
	}
	r.state = to

	now := time.Now()
	if to == types.Running && r.startedAt.IsZero() {
		r.startedAt = now
	}
	if to.IsTerminal() {
		r.completedAt = now
	}
	return nil
}

// markFinished releases the WaitInstance callers once the terminal state
// has been archived.
func (r *instanceRunner) markFinished() {
	close(r.finished)
}

// finish commits a terminal state. It reports false when another terminal
// state was committed first.
func (r *instanceRunner) finish(to types.State, errMsg, failedNode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.IsTerminal() {
		return false
	}
	if err := r.transitLocked(to); err != nil {
		return false
	}
	r.err = errMsg
	r.failedNode = failedNode
	return true
}

// finishStopped commits to only while lc is still the loop of r. It reports
// false for current when a resume launched a newer loop in the meantime.
func (r *instanceRunner) finishStopped(lc *loopControl, to types.State) (committed, current bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loop != lc {
		return false, false
	}
	if r.state.IsTerminal() {
		return false, true
	}
	return r.transitLocked(to) == nil, true
}

func (r *instanceRunner) getState() types.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *instanceRunner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *instanceRunner) frontierSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.frontier...)
}

func (r *instanceRunner) frontierEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frontier) == 0
}

func (r *instanceRunner) isCompleted(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.completedSet[nodeID]
}

func (r *instanceRunner) contextCopy() types.Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.context.Clone()
}

func (r *instanceRunner) reachedEndNode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.def.EndNodes() {
		if r.completedSet[id] {
			return true
		}
	}
	return false
}

// joinReady reports whether none of the parents of node can still complete.
// A parent that is neither completed nor reachable from the rest of the
// frontier, e.g. behind a decision branch not taken, no longer holds the join.
func (r *instanceRunner) joinReady(node *types.Node) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make(map[string]bool)
	for _, parent := range node.Parents() {
		if !r.completedSet[parent] {
			pending[parent] = true
		}
	}
	if len(pending) == 0 {
		return true
	}

	// only the frontier and its not yet completed descendants can still run
	seen := map[string]bool{node.ID: true}
	queue := append([]string(nil), r.frontier...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] || r.completedSet[id] {
			continue
		}
		seen[id] = true
		if pending[id] {
			return false
		}
		if n, exists := r.def.Node(id); exists {
			queue = append(queue, n.Children()...)
		}
	}
	return true
}

// commitNode records the output of nodeID, moves it from the frontier to the
// completed list and appends the successors not seen yet.
func (r *instanceRunner) commitNode(nodeID string, output any, next []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs[nodeID] = output
	for i, id := range r.frontier {
		if id == nodeID {
			r.frontier = append(r.frontier[:i], r.frontier[i+1:]...)
			break
		}
	}
	if !r.completedSet[nodeID] {
		r.completedSet[nodeID] = true
		r.completed = append(r.completed, nodeID)
	}

	for _, id := range next {
		if r.completedSet[id] || contains(r.frontier, id) {
			continue
		}
		r.frontier = append(r.frontier, id)
	}
}

func (r *instanceRunner) mergeContext(values types.Data) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.IsTerminal() {
		return errors.Forbiddenf("workflow instance %s is %v", r.id, r.state)
	}
	r.context.Merge(values)
	return nil
}

func (r *instanceRunner) snapshot() *types.InstanceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &types.InstanceSnapshot{
		ID:             r.id,
		DefinitionID:   r.def.ID,
		State:          r.state,
		CreatedAt:      r.createdAt,
		StartedAt:      r.startedAt,
		CompletedAt:    r.completedAt,
		Frontier:       append([]string{}, r.frontier...),
		CompletedNodes: append([]string{}, r.completed...),
		Outputs:        utils.CloneMap(r.outputs),
		Context:        r.context.Clone(),
		Error:          r.err,
		FailedNode:     r.failedNode,
		Metadata:       r.metadata.Clone(),
	}
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

package runtime

import (
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/dagflow/types"
)

var (
	errLoopStopped = errors.New("execution loop stopped")
)

func (o *orchestrator) runLoop(r *instanceRunner, lc *loopControl, prev *loopControl) {
	defer close(lc.done)
	if prev != nil {
		<-prev.done
	}

	failedNode, err := o.execute(r, lc)
	switch {
	case err == nil, errors.Is(err, errLoopStopped):
		return
	}

	log.WithFields(log.Fields{
		"instance": r.id,
		"node":     failedNode,
	}).Errorf("workflow instance failed: %v", err)
	o.finish(r, types.Failed, err.Error(), failedNode)
}

// execute drives r until it terminates, fails or lc is stopped. It returns
// the failing node along with the error.
func (o *orchestrator) execute(r *instanceRunner, lc *loopControl) (string, error) {
	// a resumed instance may have reached an end node before it was paused
	if r.reachedEndNode() {
		o.complete(r, "end node")
		return "", nil
	}

	for {
		if lc.stopped() || r.getState() != types.Running {
			return "", errLoopStopped
		}

		progressed, failedNode, err := o.runPass(r, lc, r.frontierSnapshot())
		if err != nil {
			return failedNode, err
		}

		if progressed == 0 {
			if r.frontierEmpty() {
				o.complete(r, "empty frontier")
				return "", nil
			}
			log.Debugf("workflow instance %s waiting on %v", r.id, r.frontierSnapshot())
			select {
			case <-r.wake:
			case <-lc.stop:
				return "", errLoopStopped
			}
			continue
		}

		if r.reachedEndNode() {
			o.complete(r, "end node")
			return "", nil
		}
	}
}

func (o *orchestrator) complete(r *instanceRunner, reason string) {
	if o.finish(r, types.Completed, "", "") {
		log.Infof("workflow instance %s completed (%s)", r.id, reason)
	}
}

// eligible reports whether node may be dispatched in this pass.
func (o *orchestrator) eligible(r *instanceRunner, node *types.Node) bool {
	if node.Kind == types.Join && o.opts.JoinBarrier {
		return r.joinReady(node)
	}
	return true
}

// runPass dispatches the frontier snapshot and commits the results in
// snapshot order. It returns how many nodes completed.
func (o *orchestrator) runPass(r *instanceRunner, lc *loopControl, snapshot []string) (int, string, error) {
	nodes := make([]*types.Node, 0, len(snapshot))
	for _, id := range snapshot {
		node, exists := r.def.Node(id)
		if !exists {
			return 0, id, types.NewExecutionFailuref("node %s does not exist in definition %s", id, r.def.ID)
		}
		if !o.eligible(r, node) {
			continue
		}
		nodes = append(nodes, node)
	}

	if o.pool != nil && len(nodes) > 1 {
		return o.runConcurrent(r, lc, nodes)
	}

	progressed := 0
	for _, node := range nodes {
		if lc.stopped() {
			return progressed, "", errLoopStopped
		}
		output, err := o.dispatch(r, node)
		if err == nil {
			err = o.advance(r, node, output)
		}
		switch {
		case errors.Is(err, types.ErrNotReady):
			continue
		case err != nil:
			return progressed, node.ID, err
		}
		progressed++
	}
	return progressed, "", nil
}

// advance computes the successors of node and commits its output.
func (o *orchestrator) advance(r *instanceRunner, node *types.Node, output any) error {
	next, err := nextNodes(r.def, node.ID, output, r.isCompleted)
	if err != nil {
		return errors.Trace(err)
	}
	r.commitNode(node.ID, output, next)
	return nil
}

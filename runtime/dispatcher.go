package runtime

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/dagflow/types"
)

// dispatch executes one node of r according to its kind. Panics raised by
// the executor or a predicate become execution failures.
func (o *orchestrator) dispatch(r *instanceRunner, node *types.Node) (output any, retErr error) {
	record := &types.NodeTraceRecord{
		InstanceID: r.id,
		NodeID:     node.ID,
		Kind:       node.Kind,
		StartTime:  time.Now(),
	}
	log.Debugf("workflow instance %s running %s node %s", r.id, node.Kind, node.ID)

	defer func() {
		if p := recover(); p != nil {
			output, retErr = nil, types.NewExecutionFailure(fmt.Errorf("panic on node %s: %v", node.ID, p))
		}
		record.EndTime = time.Now()
		record.Output = output
		if retErr != nil {
			record.Error = retErr.Error()
		}
		o.metrics.NodeExecuted(node.Kind, retErr, record.EndTime.Sub(record.StartTime))
		o.saveRecord(o.opts.Ctx, record)
	}()

	switch node.Kind {
	case types.Task:
		if node.Domain == "" {
			return nil, types.NewValidationErrorf("task node %s has no domain specified", node.ID)
		}
		input := node.Input.Clone()
		record.Input = input
		output, err := o.executor.Execute(o.opts.Ctx, node.Domain, input)
		if err != nil {
			if errors.Is(err, types.ErrNotReady) {
				return nil, err
			}
			return nil, types.NewExecutionFailure(err)
		}
		return output, nil

	case types.Decision:
		if node.Predicate == nil {
			return true, nil
		}
		ok, err := node.Predicate.Evaluate(r.contextCopy())
		if err != nil {
			if errors.Is(err, types.ErrNotReady) {
				return nil, err
			}
			return nil, types.NewExecutionFailure(err)
		}
		return ok, nil

	case types.Join, types.Fork, types.Merge:
		return types.Data{
			"status":    "completed",
			"node_type": node.Kind.String(),
		}, nil

	default:
		return nil, types.NewValidationErrorf("unknown node kind %v for node %s", node.Kind, node.ID)
	}
}

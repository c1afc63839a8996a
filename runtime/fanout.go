package runtime

import (
	"sync"

	"github.com/juju/errors"

	"github.com/warriorguo/dagflow/types"
)

type dispatchResult struct {
	output any
	err    error
}

// runConcurrent dispatches nodes on the shared pool and commits the results
// in the order of nodes. Results after the first failure are dropped.
func (o *orchestrator) runConcurrent(r *instanceRunner, lc *loopControl, nodes []*types.Node) (int, string, error) {
	if lc.stopped() {
		return 0, "", errLoopStopped
	}

	results := make([]dispatchResult, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		i, node := i, node
		wg.Add(1)
		o.pool.Submit(func() {
			defer wg.Done()
			results[i].output, results[i].err = o.dispatch(r, node)
		})
	}
	wg.Wait()

	progressed := 0
	for i, node := range nodes {
		err := results[i].err
		if err == nil {
			err = o.advance(r, node, results[i].output)
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

package runtime

import (
	"fmt"

	"github.com/warriorguo/dagflow/types"
	"github.com/warriorguo/dagflow/utils"
)

// nextNodes scans the edges leaving from in definition order and returns the
// targets of the edges that fire on result, skipping completed nodes.
// An edge without predicate always fires.
func nextNodes(def *types.Definition, from string, result any, isCompleted func(string) bool) ([]string, error) {
	next := make([]string, 0)
	for _, e := range def.OutEdges(from) {
		if e.Predicate != nil {
			fire, err := evaluate(e.Predicate, result)
			if err != nil {
				return nil, types.NewExecutionFailuref("edge %s -> %s: %v", e.Source, e.Target, err)
			}
			if !fire {
				continue
			}
		}
		if isCompleted != nil && isCompleted(e.Target) {
			continue
		}
		next = append(next, e.Target)
	}
	return utils.UniqueSlice(next), nil
}

func evaluate(p types.Predicate, value any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("predicate panic: %v", r)
		}
	}()
	return p.Evaluate(value)
}

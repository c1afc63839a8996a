package predicate

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/tidwall/gjson"

	"github.com/warriorguo/dagflow/types"
)

// Path fires when the gjson path expr matches a truthy element of the JSON
// form of the value. Missing, null, false, 0 and "" do not fire.
//
//	predicate.Path("order.total")
//	predicate.Path(`items.#(sku=="A-1")`)
func Path(expr string) types.Predicate {
	return types.PredicateFunc(func(value any) (bool, error) {
		b, err := json.Marshal(value)
		if err != nil {
			return false, errors.Annotatef(err, "marshal value for path %q", expr)
		}
		return resultTruthy(gjson.GetBytes(b, expr)), nil
	})
}

func resultTruthy(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		return true
	default:
		return false
	}
}

// Package predicate provides the predicates bound to decision nodes and
// edges: plain Go functions, JSON path lookups and sandboxed Lua scripts.
package predicate

import (
	"reflect"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/dagflow/types"
)

// Func adapts fn into a types.Predicate.
func Func(fn func(value any) (bool, error)) types.Predicate {
	return types.PredicateFunc(fn)
}

// Truthy fires when the value is truthy: true, a non-zero number, a
// non-empty string other than "false"/"0", or a non-empty collection.
func Truthy() types.Predicate {
	return types.PredicateFunc(func(value any) (bool, error) {
		return truthy(value), nil
	})
}

// Not negates p. Errors of p are returned as is.
func Not(p types.Predicate) types.Predicate {
	return types.PredicateFunc(func(value any) (bool, error) {
		ok, err := p.Evaluate(value)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// ContextKey is meant for decision nodes: it reports the truthiness of
// context[key]. A missing key is false.
func ContextKey(key string) types.Predicate {
	return types.PredicateFunc(func(value any) (bool, error) {
		data, err := asData(value)
		if err != nil {
			return false, errors.Trace(err)
		}
		v, exists := data.Get(key)
		return exists && truthy(v), nil
	})
}

// AwaitContextKey behaves like ContextKey but keeps the decision node
// pending with types.ErrNotReady until key is set.
func AwaitContextKey(key string) types.Predicate {
	return types.PredicateFunc(func(value any) (bool, error) {
		data, err := asData(value)
		if err != nil {
			return false, errors.Trace(err)
		}
		v, exists := data.Get(key)
		if !exists {
			return false, types.ErrNotReady
		}
		return truthy(v), nil
	})
}

func asData(value any) (types.Data, error) {
	switch v := value.(type) {
	case types.Data:
		return v, nil
	case map[string]any:
		return types.Data(v), nil
	case nil:
		return types.Data{}, nil
	}
	return nil, errors.NotValidf("context value of type %T", value)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
		return v != ""
	}

	if f, err := cast.ToFloat64E(value); err == nil {
		return f != 0
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

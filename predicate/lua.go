package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/juju/errors"

	"github.com/warriorguo/dagflow/types"
)

const (
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableIndex       = -3
	luaGlobalTableName  = "_G"
	luaInputLocal       = "local input = select(1, ...)\n"
	luaEnvUpValue       = 1
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// luaStates is shared by every Lua predicate.
var luaStates = make(chan *lua.State, luaStatePoolSize)

type luaPredicate struct {
	script   string
	bytecode []byte
}

/**
 * Lua compiles script into a predicate. The evaluated value is bound to the
 * local `input` and the script result is coerced with Lua truthiness:
 *
 *	p, err := predicate.Lua(`return input.amount > 100`)
 *
 * The io, os, debug and package libraries and the load functions are not
 * available. Syntax errors are reported here, runtime errors by Evaluate.
 */
func Lua(script string) (types.Predicate, error) {
	L := lua.NewState()
	setupSandbox(L)

	if err := lua.LoadString(L, luaInputLocal+script); err != nil {
		return nil, errors.NewNotValid(err, "lua predicate")
	}
	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, errors.Annotatef(err, "dump lua predicate")
	}
	return &luaPredicate{script: script, bytecode: buf.Bytes()}, nil
}

func (p *luaPredicate) Evaluate(value any) (bool, error) {
	L := getState()
	defer returnState(L)

	setupSandbox(L)
	if err := L.Load(bytes.NewReader(p.bytecode), "predicate", "b"); err != nil {
		return false, errors.Annotatef(err, "load lua predicate")
	}
	pushEnv(L)
	if _, ok := lua.SetUpValue(L, -2, luaEnvUpValue); !ok {
		return false, errors.New("lua predicate has no _ENV upvalue")
	}
	if err := pushValue(L, value); err != nil {
		return false, errors.Trace(err)
	}
	if err := L.ProtectedCall(1, 1, 0); err != nil {
		return false, errors.Annotatef(err, "lua predicate %q", p.script)
	}
	return L.ToBoolean(-1), nil
}

func setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

// pushEnv pushes a fresh environment for one evaluation. Reads fall back to
// the sandboxed globals while writes, _G.x included, stay in the new table,
// so pooled states do not carry globals from one predicate to the next.
func pushEnv(L *lua.State) {
	L.NewTable()
	L.PushValue(-1)
	L.SetField(luaGlobalTableIndex, luaGlobalTableName)

	L.NewTable()
	L.Global(luaGlobalTableName)
	L.SetField(luaGlobalTableIndex, "__index")
	L.PushBoolean(false)
	L.SetField(luaGlobalTableIndex, "__metatable")
	L.SetMetaTable(luaGlobalTableIndex)
}

func getState() *lua.State {
	select {
	case L := <-luaStates:
		return L
	default:
		return lua.NewState()
	}
}

func returnState(L *lua.State) {
	L.SetTop(0)

	select {
	case luaStates <- L:
	default:
	}
}

// pushValue pushes scalars as is and anything else through its JSON form,
// so nested Go types reach Lua as tables.
func pushValue(L *lua.State, value any) error {
	switch value.(type) {
	case nil, bool, string, int, int64, float64:
		goToLua(L, value)
		return nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return errors.Annotatef(err, "convert %T for lua", value)
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return errors.Trace(err)
	}
	goToLua(L, normalized)
	return nil
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		L.CreateTable(len(v), 0)
		for i, item := range v {
			L.PushInteger(i + 1)
			goToLua(L, item)
			L.SetTable(luaTableIndex)
		}
	case map[string]any:
		L.CreateTable(0, len(v))
		for k, val := range v {
			L.PushString(k)
			goToLua(L, val)
			L.SetTable(luaTableIndex)
		}
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

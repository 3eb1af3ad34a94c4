package script

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/util"
)

type (
	// Env compiles and runs Lua scripts with pooled interpreter states. It
	// also carries an Ale environment, bootstrapped on first use
	Env struct {
		statePool chan *lua.State
		scripts   *util.LRU[[sha256.Size]byte, *Compiled]
		ale       *AleEnv
		aleOnce   sync.Once
		cacheSize int
	}

	// Compiled is a precompiled script
	Compiled struct {
		bytecode []byte
	}

	// invocation carries the per-call bindings of the script globals
	invocation struct {
		state *flow.State
		err   error
	}
)

// DefaultCacheSize is the number of compiled scripts an Env keeps
const DefaultCacheSize = 256

const (
	luaStatePoolSize   = 10
	luaGlobalTableIdx  = -2
	luaTableIdx        = -3
	luaGlobalTableName = "_G"
	luaChunkName       = "step"
	luaPrelude         = "local state, inputs = ...\n"
	luaArgCount        = 2
)

var (
	ErrCompile     = errors.New("lua compile error")
	ErrExecution   = errors.New("lua execution error")
	ErrRouterLabel = errors.New("router script must return a string label")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewEnv creates a Lua environment with the default script cache size
func NewEnv() *Env {
	return NewEnvWithCacheSize(DefaultCacheSize)
}

// NewEnvWithCacheSize creates a Lua environment that keeps at most size
// compiled scripts. A non-positive size selects DefaultCacheSize
func NewEnvWithCacheSize(size int) *Env {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Env{
		statePool: make(chan *lua.State, luaStatePoolSize),
		scripts:   util.NewLRU[[sha256.Size]byte, *Compiled](size),
		cacheSize: size,
	}
}

// Ale returns the Ale environment sharing this Env's cache size
func (e *Env) Ale() *AleEnv {
	e.aleOnce.Do(func() {
		e.ale = NewAleEnv(e.cacheSize)
	})
	return e.ale
}

// Compile compiles src, reusing an earlier compilation of the same source
func (e *Env) Compile(src string) (*Compiled, error) {
	return e.scripts.Get(sha256.Sum256([]byte(src)),
		func() (*Compiled, error) {
			return e.compile(src)
		},
	)
}

// Validate reports whether src compiles
func (e *Env) Validate(src string) error {
	_, err := e.Compile(src)
	return err
}

// Step compiles src into a step function
func (e *Env) Step(src string) (flow.StepFunc, error) {
	c, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return func(
		ctx context.Context, st *flow.State, in flow.Inputs,
	) (any, error) {
		return e.Execute(ctx, c, st, in)
	}, nil
}

// Router compiles src into a router function
func (e *Env) Router(src string) (flow.RouterFunc, error) {
	c, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return func(
		ctx context.Context, st *flow.State, in flow.Inputs,
	) (api.Label, error) {
		res, err := e.Execute(ctx, c, st, in)
		if err != nil {
			return "", err
		}
		switch v := res.(type) {
		case nil:
			return "", nil
		case string:
			return api.Label(v), nil
		default:
			return "", fmt.Errorf("%w, got %T", ErrRouterLabel, res)
		}
	}, nil
}

// Execute runs a compiled script against the flow state and inputs
func (e *Env) Execute(
	ctx context.Context, c *Compiled, st *flow.State, in flow.Inputs,
) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	L := e.getState()
	defer e.returnState(L)

	inv := &invocation{state: st}
	inv.register(L)

	if err := L.Load(bytes.NewReader(c.bytecode), luaChunkName, "b"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}
	pushMap(L, st.Snapshot())
	pushInputs(L, in)

	if err := L.ProtectedCall(luaArgCount, 1, 0); err != nil {
		if inv.err != nil {
			return nil, inv.err
		}
		return nil, fmt.Errorf("%w: %w", ErrExecution, err)
	}

	res := luaToGo(L, -1)
	L.Pop(1)
	return res, nil
}

func (e *Env) compile(src string) (*Compiled, error) {
	L := lua.NewState()
	setupSandbox(L)

	if err := lua.LoadString(L, luaPrelude+src); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return &Compiled{bytecode: buf.Bytes()}, nil
}

func (e *Env) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		L := lua.NewState()
		setupSandbox(L)
		return L
	}
}

func (e *Env) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case e.statePool <- L:
	default:
	}
}

func setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIdx, name)
	}
	L.Pop(1)
}

func (inv *invocation) register(L *lua.State) {
	L.Register("set", inv.set)
	L.Register("get", inv.get)
	L.Register("fail", inv.fail)
}

func (inv *invocation) set(L *lua.State) int {
	key := lua.CheckString(L, 1)
	if _, err := inv.state.Set(key, luaToGo(L, 2)); err != nil {
		inv.err = err
		lua.Errorf(L, "%s", err.Error())
	}
	return 0
}

func (inv *invocation) get(L *lua.State) int {
	path := lua.CheckString(L, 1)
	if v, ok := inv.state.Lookup(path); ok {
		goToLua(L, v)
		return 1
	}
	L.PushNil()
	return 1
}

func (inv *invocation) fail(L *lua.State) int {
	msg := strings.TrimSpace(lua.OptString(L, 1, "script failed"))
	inv.err = flow.Fail(msg)
	lua.Errorf(L, "%s", msg)
	return 0
}

func pushInputs(L *lua.State, in flow.Inputs) {
	L.CreateTable(0, len(in))
	for name, v := range in {
		L.PushString(string(name))
		goToLua(L, v)
		L.SetTable(luaTableIdx)
	}
}

func pushMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, v := range m {
		L.PushString(k)
		goToLua(L, v)
		L.SetTable(luaTableIdx)
	}
}

func pushArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableIdx)
	}
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		L.PushNil()
	case string:
		L.PushString(v)
	case api.Label:
		L.PushString(string(v))
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case error:
		L.PushString(v.Error())
	case []any:
		pushArray(L, v)
	case map[string]any:
		pushMap(L, v)
	case api.Values:
		pushMap(L, v)
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToGo(L, index)
	default:
		return nil
	}
}

// luaTableToGo converts a sequence to []any and any other table to
// map[string]any
func luaTableToGo(L *lua.State, index int) any {
	abs := L.AbsIndex(index)
	length := L.RawLength(abs)

	count := 0
	L.PushNil()
	for L.Next(abs) {
		count++
		L.Pop(1)
	}

	if length > 0 && count == length {
		arr := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(abs, i)
			arr[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return arr
	}

	res := make(map[string]any, count)
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		res[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return res
}

package script

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kode4food/ale"
	"github.com/kode4food/ale/core/bootstrap"
	"github.com/kode4food/ale/data"
	"github.com/kode4food/ale/env"
	"github.com/kode4food/ale/eval"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/util"
)

// AleEnv compiles and runs Ale scripts. Each script becomes a procedure of
// the input value, a fail procedure, and the declared state arguments
type AleEnv struct {
	env     *env.Environment
	scripts *util.LRU[[sha256.Size]byte, data.Procedure]
	mu      sync.Mutex
}

const (
	aleLambdaTemplate = "(lambda (%s) %s)"
	aleInputArg       = "input"
	aleFailArg        = "fail"
)

var (
	ErrAleCompile      = errors.New("ale compile error")
	ErrAleExecution    = errors.New("ale execution error")
	ErrAleNotProcedure = errors.New("not a procedure")
	ErrAleArgument     = errors.New("invalid ale argument name")
)

// NewAleEnv creates a bootstrapped Ale environment keeping at most size
// compiled scripts. A non-positive size selects DefaultCacheSize
func NewAleEnv(size int) *AleEnv {
	if size <= 0 {
		size = DefaultCacheSize
	}
	e := env.NewEnvironment()
	bootstrap.Into(e)
	return &AleEnv{
		env:     e,
		scripts: util.NewLRU[[sha256.Size]byte, data.Procedure](size),
	}
}

// Compile compiles src with the named state arguments, reusing an earlier
// compilation of the same source and arguments
func (e *AleEnv) Compile(src string, args []string) (data.Procedure, error) {
	if err := checkAleArgs(args); err != nil {
		return nil, err
	}
	names := slices.Concat([]string{aleInputArg, aleFailArg}, args)
	key := sha256.Sum256([]byte(strings.Join(names, " ") + "\n" + src))
	return e.scripts.Get(key, func() (data.Procedure, error) {
		return e.compile(src, names)
	})
}

// Step compiles src into a step function. When the script returns an
// object, its entries are written to the flow state as one mutation
func (e *AleEnv) Step(src string, args []string) (flow.StepFunc, error) {
	proc, err := e.Compile(src, args)
	if err != nil {
		return nil, err
	}
	return func(
		ctx context.Context, st *flow.State, in flow.Inputs,
	) (any, error) {
		res, err := e.Execute(ctx, proc, args, st, in)
		if err != nil {
			return nil, err
		}
		if m, ok := res.(map[string]any); ok {
			if _, err := st.SetMany(api.Values(m)); err != nil {
				return nil, err
			}
		}
		return res, nil
	}, nil
}

// Router compiles src into a router function. The script returns its label
// as a string or keyword
func (e *AleEnv) Router(src string, args []string) (flow.RouterFunc, error) {
	proc, err := e.Compile(src, args)
	if err != nil {
		return nil, err
	}
	return func(
		ctx context.Context, st *flow.State, in flow.Inputs,
	) (api.Label, error) {
		res, err := e.Execute(ctx, proc, args, st, in)
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

// Execute calls a compiled procedure with the single fired input and the
// current values of the state arguments
func (e *AleEnv) Execute(
	ctx context.Context, proc data.Procedure, args []string,
	st *flow.State, in flow.Inputs,
) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vals := make(data.Vector, 0, len(args)+2)
	vals = append(vals, goToAle(inputValue(in)), aleFail())
	for _, name := range args {
		v, _ := st.Get(name)
		vals = append(vals, goToAle(v))
	}

	res, err := catchPanic(ErrAleExecution, func() (ale.Value, error) {
		return proc.Call(vals...), nil
	})
	if err != nil {
		return nil, err
	}
	return aleToGo(res), nil
}

func (e *AleEnv) compile(src string, names []string) (data.Procedure, error) {
	lambda := fmt.Sprintf(aleLambdaTemplate, strings.Join(names, " "), src)

	e.mu.Lock()
	defer e.mu.Unlock()
	return catchPanic(ErrAleCompile, func() (data.Procedure, error) {
		ns := e.env.GetAnonymous()
		res, err := eval.String(ns, data.String(lambda))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAleCompile, err)
		}
		proc, ok := res.(data.Procedure)
		if !ok {
			return nil, fmt.Errorf("%w: %w, got %T",
				ErrAleCompile, ErrAleNotProcedure, res)
		}
		return proc, nil
	})
}

func checkAleArgs(args []string) error {
	for i, name := range args {
		switch {
		case name == "" || strings.ContainsAny(name, " \t\n()[]{}\"';"):
			return fmt.Errorf("%w: %q", ErrAleArgument, name)
		case name == aleInputArg || name == aleFailArg:
			return fmt.Errorf("%w: %q is reserved", ErrAleArgument, name)
		case slices.Contains(args[:i], name):
			return fmt.Errorf("%w: %q is repeated", ErrAleArgument, name)
		}
	}
	return nil
}

// inputValue is the output of the single fired source, or an object of
// every fired source keyed by step name
func inputValue(in flow.Inputs) any {
	switch len(in) {
	case 0:
		return nil
	case 1:
		return normalizeInput(in.Value())
	default:
		res := make(map[string]any, len(in))
		for name, v := range in {
			res[string(name)] = normalizeInput(v)
		}
		return res
	}
}

func normalizeInput(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

// aleFail builds the procedure a script calls to fail its step
func aleFail() data.Procedure {
	return data.MakeProcedure(func(args ...ale.Value) ale.Value {
		panic(flow.Fail(fmt.Sprint(aleToGo(args[0]))))
	}, 1)
}

func goToAle(value any) ale.Value {
	switch v := value.(type) {
	case nil:
		return data.Null
	case string:
		return data.String(v)
	case api.Label:
		return data.String(v)
	case bool:
		return data.Bool(v)
	case int:
		return data.Integer(v)
	case int64:
		return data.Integer(v)
	case float64:
		return data.Float(v)
	case []any:
		vec := make(data.Vector, len(v))
		for i, item := range v {
			vec[i] = goToAle(item)
		}
		return vec
	case api.Values:
		return goMapToAle(v)
	case map[string]any:
		return goMapToAle(v)
	default:
		return data.String(fmt.Sprint(v))
	}
}

func goMapToAle(m map[string]any) *data.Object {
	obj := data.NewObject()
	for k, v := range m {
		pair := data.NewCons(data.Keyword(k), goToAle(v))
		obj = obj.Put(pair).(*data.Object)
	}
	return obj
}

func aleToGo(value ale.Value) any {
	switch v := value.(type) {
	case data.Bool:
		return bool(v)
	case data.String:
		return string(v)
	case data.Keyword:
		return string(v)
	case data.Integer:
		return int(v)
	case data.Float:
		return float64(v)
	case data.Vector:
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = aleToGo(item)
		}
		return res
	case *data.List:
		var res []any
		for l := v; !l.IsEmpty(); {
			head, tail, ok := l.Split()
			if !ok {
				break
			}
			res = append(res, aleToGo(head))
			l = tail.(*data.List)
		}
		return res
	case *data.Object:
		res := map[string]any{}
		for _, pair := range v.Pairs() {
			res[fmt.Sprint(aleToGo(pair.Car()))] = aleToGo(pair.Cdr())
		}
		return res
	default:
		if value == data.Null {
			return nil
		}
		return fmt.Sprint(v)
	}
}

// catchPanic turns a panic raised while compiling or calling a procedure
// into an error. Panics carrying an error, such as a step failure, are
// returned as is
func catchPanic[T any](
	baseErr error, fn func() (T, error),
) (res T, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			var ee *flow.ExecutionError
			if errors.As(e, &ee) {
				err = e
				return
			}
			err = fmt.Errorf("%w: %w", baseErr, e)
			return
		}
		err = fmt.Errorf("%w: %v", baseErr, r)
	}()
	return fn()
}

// Package luaguard evaluates guard expressions written in Lua.
//
// An expression is the body of a predicate with three parameters in scope:
//
//	value     the candidate value (slot placement), nil otherwise
//	bound     array of bound arguments (reaction placement), empty otherwise
//	typename  the candidate's type name
//
// Go values are exposed as plain Lua tables built from their JSON shape,
// so struct fields are addressed by their json tags. The state is
// sandboxed: only the base, table, string and math libraries are opened
// and the loaders are removed.
package luaguard

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/timebox/internal/guard"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 100 * time.Millisecond

// Guard is a compiled Lua predicate.
//
// gopher-lua states are not goroutine-safe; evaluations are serialized on
// an internal mutex.
type Guard struct {
	mu      sync.Mutex
	src     string
	L       *lua.LState
	fn      *lua.LFunction
	timeout time.Duration
	closed  bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithTimeout bounds each evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		g.timeout = d
	}
}

// Compile parses expr into a Guard.
func Compile(expr string, opts ...Option) (*Guard, error) {
	g := &Guard{src: expr, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(g)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	chunk, err := L.LoadString("return function(value, bound, typename) return (" + expr + ") end")
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("luaguard: compile %q: %w", expr, err)
	}
	if err := L.CallByParam(lua.P{Fn: chunk, NRet: 1, Protect: true}); err != nil {
		L.Close()
		return nil, fmt.Errorf("luaguard: compile %q: %w", expr, err)
	}
	fn, ok := L.Get(-1).(*lua.LFunction)
	L.Pop(1)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("luaguard: compile %q: not a predicate", expr)
	}

	g.L = L
	g.fn = fn
	return g, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string, opts ...Option) *Guard {
	g, err := Compile(expr, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// String returns the source expression.
func (g *Guard) String() string {
	return g.src
}

// Allows implements guard.Guard. The result follows Lua truthiness: only
// nil and false reject.
func (g *Guard) Allows(c guard.Candidate) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false, fmt.Errorf("luaguard: %q: state closed", g.src)
	}

	value, err := toLua(g.L, guard.Subject(c.Value))
	if err != nil {
		return false, fmt.Errorf("luaguard: %q: %w", g.src, err)
	}
	bound := g.L.NewTable()
	for i, b := range c.Bound {
		lv, err := toLua(g.L, guard.Subject(b))
		if err != nil {
			return false, fmt.Errorf("luaguard: %q: bound[%d]: %w", g.src, i, err)
		}
		bound.RawSetInt(i+1, lv)
	}

	if g.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		g.L.SetContext(ctx)
		defer g.L.RemoveContext()
	}

	top := g.L.GetTop()
	defer g.L.SetTop(top)

	err = g.L.CallByParam(lua.P{Fn: g.fn, NRet: 1, Protect: true},
		value, bound, lua.LString(c.Type))
	if err != nil {
		return false, fmt.Errorf("luaguard: %q: %w", g.src, err)
	}
	return lua.LVAsBool(g.L.Get(-1)), nil
}

// Close releases the Lua state. Further evaluations fail.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.L.Close()
	}
}

// toLua converts v through its JSON shape.
func toLua(L *lua.LState, v any) (lua.LValue, error) {
	if v == nil {
		return lua.LNil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return lua.LNil, fmt.Errorf("encode %T: %w", v, err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return lua.LNil, fmt.Errorf("decode %T: %w", v, err)
	}
	return plainToLua(L, plain), nil
}

func plainToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, e := range val {
			t.RawSetInt(i+1, plainToLua(L, e))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range val {
			t.RawSetString(k, plainToLua(L, e))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

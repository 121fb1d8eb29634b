// Package scriptlet compiles and runs user-supplied expression and function
// bodies against bound input values. Scriptlets are Lua chunks executed in a
// restricted interpreter state (no os/io libraries), giving best-effort
// isolation rather than security-grade sandboxing.
package scriptlet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/flowgrid/types"
)

// Result carries the outcome of an asynchronous evaluation.
type Result struct {
	Value any
	Err   error
}

// Evaluator compiles scriptlets once per distinct source text and runs each
// invocation in a fresh interpreter state. The compiled-chunk cache and the
// optional result cache are the only cross-invocation shared state; both are
// safe for concurrent node executions.
type Evaluator struct {
	logger  *zap.Logger
	protos  *protoCache
	results ResultCache
	group   singleflight.Group
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithResultCache enables result caching keyed by (code, input) fingerprint.
func WithResultCache(cache ResultCache) Option {
	return func(e *Evaluator) { e.results = cache }
}

// WithCompiledCacheSize bounds the compiled-chunk cache (default 256).
func WithCompiledCacheSize(n int) Option {
	return func(e *Evaluator) { e.protos = newProtoCache(n) }
}

// New creates an Evaluator.
func New(logger *zap.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{
		logger: logger.With(zap.String("component", "scriptlet")),
		protos: newProtoCache(256),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WrapExpression turns a bare expression ("value > 3") into a runnable chunk.
func WrapExpression(expr string) string {
	return "return (" + strings.TrimSpace(expr) + ")"
}

// CheckSyntax parses code without running it, for configuration-time
// validation of conditions and function bodies.
func (e *Evaluator) CheckSyntax(code string) error {
	if strings.TrimSpace(code) == "" {
		return types.NewError(types.ErrCompilation, "empty scriptlet")
	}
	if _, err := parse.Parse(strings.NewReader(code), "scriptlet"); err != nil {
		return types.NewError(types.ErrCompilation, "scriptlet failed to parse").WithCause(err)
	}
	return nil
}

// Eval compiles (or reuses) the chunk and runs it with the given globals
// bound. The returned value is the chunk's first return value converted to a
// plain Go value. Compilation failures carry COMPILATION, runtime failures
// EXECUTION.
func (e *Evaluator) Eval(ctx context.Context, code string, bindings map[string]any) (any, error) {
	proto, err := e.compile(code)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, proto, bindings)
}

// EvalAsync runs Eval on its own goroutine and delivers the settlement on
// the returned channel, preserving future-style consumption for callers that
// treat scriptlets as asynchronous.
func (e *Evaluator) EvalAsync(ctx context.Context, code string, bindings map[string]any) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		value, err := e.Eval(ctx, code, bindings)
		out <- Result{Value: value, Err: err}
	}()
	return out
}

// EvalCached consults the result cache before evaluating; concurrent
// identical invocations share one computation. The second return reports a
// cache hit.
func (e *Evaluator) EvalCached(ctx context.Context, code string, bindings map[string]any) (any, bool, error) {
	if e.results == nil {
		value, err := e.Eval(ctx, code, bindings)
		return value, false, err
	}

	key := Fingerprint(code, bindings)
	if value, ok := e.results.Get(ctx, key); ok {
		return value, true, nil
	}

	value, err, shared := e.group.Do(key, func() (any, error) {
		value, err := e.Eval(ctx, code, bindings)
		if err == nil {
			e.results.Set(ctx, key, value)
		}
		return value, err
	})
	return value, shared, err
}

// Fingerprint derives the result-cache key from the code and the serialized
// input. encoding/json sorts map keys, so equal bindings fingerprint equally.
func Fingerprint(code string, bindings map[string]any) string {
	h := sha256.New()
	h.Write([]byte(code))
	h.Write([]byte{0})
	if data, err := json.Marshal(bindings); err == nil {
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Evaluator) compile(code string) (*lua.FunctionProto, error) {
	if proto, ok := e.protos.get(code); ok {
		return proto, nil
	}
	chunk, err := parse.Parse(strings.NewReader(code), "scriptlet")
	if err != nil {
		return nil, types.NewError(types.ErrCompilation, "scriptlet failed to parse").WithCause(err)
	}
	proto, err := lua.Compile(chunk, "scriptlet")
	if err != nil {
		return nil, types.NewError(types.ErrCompilation, "scriptlet failed to compile").WithCause(err)
	}
	e.protos.put(code, proto)
	return proto, nil
}

func (e *Evaluator) run(ctx context.Context, proto *lua.FunctionProto, bindings map[string]any) (any, error) {
	L := newRestrictedState()
	defer L.Close()
	L.SetContext(ctx)

	for name, value := range bindings {
		L.SetGlobal(name, toLua(L, value))
	}

	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrExecution, "scriptlet canceled").WithCause(ctx.Err())
		}
		return nil, types.NewError(types.ErrExecution, luaErrorMessage(err))
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(ret), nil
}

// luaErrorMessage strips the interpreter's position prefix so error routing
// surfaces the user's message ("x" from error('x')).
func luaErrorMessage(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok {
		msg := apiErr.Object.String()
		if idx := strings.LastIndex(msg, ": "); idx >= 0 && strings.HasPrefix(msg, "scriptlet:") {
			return msg[idx+2:]
		}
		return msg
	}
	return err.Error()
}

// newRestrictedState opens only the base, table, string, and math libraries.
func newRestrictedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	return L
}

// protoCache is a bounded compiled-chunk cache with oldest-first eviction.
type protoCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*lua.FunctionProto
	fifo    []string
}

func newProtoCache(limit int) *protoCache {
	if limit <= 0 {
		limit = 256
	}
	return &protoCache{
		limit:   limit,
		entries: make(map[string]*lua.FunctionProto, limit),
	}
}

func (c *protoCache) get(code string) (*lua.FunctionProto, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	proto, ok := c.entries[code]
	return proto, ok
}

func (c *protoCache) put(code string, proto *lua.FunctionProto) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[code]; exists {
		return
	}
	if len(c.fifo) >= c.limit {
		oldest := c.fifo[0]
		c.fifo = c.fifo[1:]
		delete(c.entries, oldest)
	}
	c.entries[code] = proto
	c.fifo = append(c.fifo, code)
}

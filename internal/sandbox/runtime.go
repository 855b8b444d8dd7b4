package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/luabox/luabox/internal/logging"
	"github.com/luabox/luabox/internal/monitoring"
)

// unsafeGlobals are stripped from the base library so scripts cannot
// reach the filesystem or re-enter the compiler.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "collectgarbage", "require"}

// Runtime owns one isolated Lua execution context. It is not safe for
// concurrent use; the owning caller serializes registration and
// execution, running independent Runtimes for parallelism.
type Runtime struct {
	id      string
	cfg     Config
	state   *lua.LState
	reg     *registry
	limits  *limiter
	log     *logging.Logger
	metrics *monitoring.Metrics
	lastErr *Error
	gen     uint64
	closed  bool
}

// New creates a Runtime with the given resource ceilings. The returned
// handle must be passed explicitly; there is no process-wide instance.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		id:     uuid.NewString(),
		cfg:    cfg,
		reg:    newRegistry(),
		limits: &limiter{},
		log:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.limits.setCPU(cfg.CPUSeconds)
	r.limits.setMemory(cfg.MemoryBytes)

	if err := r.openState(); err != nil {
		return nil, err
	}

	r.metrics.RuntimeOpened()
	return r, nil
}

// Available reports whether the embedded Lua engine can execute a
// trivial chunk. Callers check this once before constructing Runtimes.
func Available() bool {
	L := lua.NewState()
	defer L.Close()
	return L.DoString("return 1 + 1") == nil
}

// ID returns the runtime's unique identifier, used in log fields and
// pool stats.
func (r *Runtime) ID() string {
	return r.id
}

// openState builds a fresh LState with only the safe standard libraries
// and re-materializes every registered library into its globals.
func (r *Runtime) openState() error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	L.SetTop(0)

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	// print goes to the host logger instead of stdout.
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		r.log.Info("script output",
			zap.String("runtime", r.id),
			zap.String("text", strings.Join(parts, "\t")))
		return 0
	}))

	r.state = L
	for lib, fns := range r.reg.libs {
		r.materialize(lib, fns)
	}
	return nil
}

// RegisterLibrary merges fns into the named library and exposes each
// entry in script scope as lib.name. Re-registering an existing library
// adds new entries and overwrites colliding ones; other entries are
// untouched. Registration is allowed at any point in the runtime's
// lifetime, including between executions.
func (r *Runtime) RegisterLibrary(lib string, fns map[string]Func) {
	r.reg.register(lib, fns)
	if r.state != nil {
		r.materialize(lib, fns)
	}
}

// RegisterFunction is a single-entry convenience over RegisterLibrary.
func (r *Runtime) RegisterFunction(lib, name string, fn Func) {
	r.RegisterLibrary(lib, map[string]Func{name: fn})
}

// ListFunctions returns a copy of the named library's function table, or
// nil if the library is unknown.
func (r *Runtime) ListFunctions(lib string) map[string]Func {
	return r.reg.functions(lib)
}

// ListLibraries returns a copy of the whole registered function table.
func (r *Runtime) ListLibraries() map[string]Library {
	return r.reg.libraries()
}

// IsRegistered reports whether fn exists in the named library.
func (r *Runtime) IsRegistered(fn, lib string) bool {
	return r.reg.isRegistered(fn, lib)
}

// SetCPULimit adjusts the CPU ceiling in consumed seconds; 0 removes it.
// Takes effect for in-flight executions as well.
func (r *Runtime) SetCPULimit(seconds float64) {
	r.limits.setCPU(seconds)
}

// SetMemoryLimit adjusts the memory ceiling in bytes; 0 removes it.
func (r *Runtime) SetMemoryLimit(bytes int64) {
	r.limits.setMemory(bytes)
}

// Compile parses source without running it. Top-level side effects do
// not execute. The returned unit is reusable until the runtime is reset
// or closed.
func (r *Runtime) Compile(source string) (*CompiledUnit, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	fn, err := r.state.LoadString(source)
	if err != nil {
		return nil, r.fail(classify(err, nil))
	}

	r.clearLastError()
	return &CompiledUnit{fn: fn, owner: r, gen: r.gen}, nil
}

// Validate reports whether source compiles. It never returns an error;
// the last-error record still reflects why validation failed.
func (r *Runtime) Validate(source string) bool {
	_, err := r.Compile(source)
	return err == nil
}

// Run executes a compiled unit to completion or abort, returning the
// full ordered sequence of script return values. Host-side effects
// performed by callables before an abort are not rolled back.
func (r *Runtime) Run(unit *CompiledUnit) ([]interface{}, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if unit == nil || unit.fn == nil {
		return nil, r.fail(newError(KindGeneric, "nil compiled unit"))
	}
	if unit.owner != r {
		return nil, r.fail(newError(KindGeneric, "compiled unit belongs to a different runtime"))
	}
	if unit.gen != r.gen {
		return nil, r.fail(newError(KindGeneric, "compiled unit predates a runtime reset"))
	}

	return r.guarded(func() error {
		r.state.Push(unit.fn)
		return r.state.PCall(0, lua.MultRet, nil)
	})
}

// Execute compiles and runs source. A single-value result is unwrapped
// to its bare value; zero or multiple values come back as the sequence.
func (r *Runtime) Execute(source string) (interface{}, error) {
	unit, err := r.Compile(source)
	if err != nil {
		return nil, err
	}
	results, err := r.Run(unit)
	if err != nil {
		return nil, err
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// Evaluate runs expression wrapped as `return (expression)` and coerces
// the result with Lua truthiness: nil and false are false, everything
// else is true. Evaluate never returns an error; a failed expression
// behaves as "condition not met", with LastError recording the cause.
func (r *Runtime) Evaluate(expression string) bool {
	result, err := r.Execute("return (" + expression + ")")
	if err != nil {
		return false
	}
	switch v := result.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}

// CallGlobal invokes a function reachable from script global scope by
// name, where the name may use a dotted path into nested tables
// ("metrics.record"). It always returns the full ordered sequence of
// return values, for symmetry with host-to-script calls. An undefined
// name is a runtime failure, not a syntax failure.
func (r *Runtime) CallGlobal(name string, args ...interface{}) ([]interface{}, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	fn, err := r.lookupGlobal(name)
	if err != nil {
		return nil, err
	}

	largs := make([]lua.LValue, 0, len(args))
	for _, arg := range args {
		lv, err := toLua(r.state, arg)
		if err != nil {
			return nil, r.fail(newError(KindGeneric, "%s", err.Error()))
		}
		largs = append(largs, lv)
	}

	return r.guarded(func() error {
		return r.state.CallByParam(lua.P{
			Fn:      fn,
			NRet:    lua.MultRet,
			Protect: true,
		}, largs...)
	})
}

// Bind sets one global variable in script scope. It is sugar for
// passing per-call data; registered libraries are the canonical path.
// A value that cannot be marshalled (cyclic or too deeply nested) is
// rejected and recorded as the last error.
func (r *Runtime) Bind(name string, value interface{}) error {
	if r.state == nil {
		return newError(KindGeneric, "runtime is closed")
	}
	lv, err := toLua(r.state, value)
	if err != nil {
		return r.fail(newError(KindGeneric, "%s", err.Error()))
	}
	r.state.SetGlobal(name, lv)
	return nil
}

// LastError returns the failure recorded by the most recent operation,
// or nil if it succeeded. It is overwritten by every failing operation
// and cleared by every successful one, never accumulated.
func (r *Runtime) LastError() *Error {
	return r.lastErr
}

// LastErrorMessage returns the most recent failure's prefixed message.
func (r *Runtime) LastErrorMessage() (string, bool) {
	if r.lastErr == nil {
		return "", false
	}
	return r.lastErr.Error(), true
}

// Reset tears down the execution context and builds a fresh one with
// the same limits and registered libraries. Compiled units from before
// the reset are invalidated; global state set by scripts is gone.
func (r *Runtime) Reset() error {
	if r.closed {
		return newError(KindGeneric, "runtime is closed")
	}
	r.state.Close()
	r.gen++
	r.lastErr = nil
	return r.openState()
}

// Close destroys the runtime and every compiled unit it produced.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.gen++
	if r.state != nil {
		r.state.Close()
		r.state = nil
	}
	r.metrics.RuntimeClosed()
}

// guarded runs call with the resource limiter attached, collects any
// values it left on the stack, and routes failures through the
// classifier. Every public execution path funnels through here so the
// last-error contract holds uniformly.
func (r *Runtime) guarded(call func() error) ([]interface{}, error) {
	execCtx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	r.state.SetContext(execCtx)
	defer r.state.RemoveContext()

	stop := make(chan struct{})
	go r.limits.watch(cancel, stop)
	defer close(stop)

	base := r.state.GetTop()
	start := time.Now()
	err := call()
	elapsed := time.Since(start)

	if err != nil {
		r.state.SetTop(base)
		r.metrics.ObserveExecution("error", elapsed)
		return nil, r.fail(classify(err, execCtx))
	}

	top := r.state.GetTop()
	results := make([]interface{}, 0, top-base)
	var convErr error
	for i := base + 1; i <= top; i++ {
		v, err := fromLua(r.state.Get(i))
		if err != nil {
			convErr = err
			break
		}
		results = append(results, v)
	}
	r.state.SetTop(base)

	if convErr != nil {
		r.metrics.ObserveExecution("error", elapsed)
		return nil, r.fail(newError(KindRuntime, "%s", convErr.Error()))
	}

	r.metrics.ObserveExecution("ok", elapsed)
	r.clearLastError()
	return results, nil
}

// lookupGlobal resolves a possibly dotted name to a callable function.
// Resolution uses raw table access: metamethods do not run during
// lookup, so a script-installed __index trap cannot escape the
// classified error path, and a member only reachable through one
// resolves as undefined.
func (r *Runtime) lookupGlobal(name string) (*lua.LFunction, error) {
	parts := strings.Split(name, ".")
	value := r.state.G.Global.RawGetString(parts[0])
	for _, part := range parts[1:] {
		tbl, ok := value.(*lua.LTable)
		if !ok {
			return nil, r.fail(newError(KindRuntime, "attempt to index a non-table value in %q", name))
		}
		value = tbl.RawGetString(part)
	}

	fn, ok := value.(*lua.LFunction)
	if !ok {
		return nil, r.fail(newError(KindRuntime, "global function %q is not defined", name))
	}
	return fn, nil
}

// materialize installs fns into the script-visible table for lib,
// creating the table when absent and merging when present.
func (r *Runtime) materialize(lib string, fns map[string]Func) {
	tbl, ok := r.state.GetGlobal(lib).(*lua.LTable)
	if !ok {
		tbl = r.state.NewTable()
		r.state.SetGlobal(lib, tbl)
	}
	for name, fn := range fns {
		r.state.SetField(tbl, name, r.wrapFunc(fn))
	}
}

// wrapFunc bridges one host callable into the VM. Arguments are
// marshalled in script order; the result sequence is pushed back
// value-for-value, so a nil sequence is a void return and a one-element
// sequence is a plain single return. A host error aborts the script
// with the message preserved.
func (r *Runtime) wrapFunc(fn Func) *lua.LFunction {
	return r.state.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		args := make([]interface{}, 0, n)
		for i := 1; i <= n; i++ {
			v, err := fromLua(L.Get(i))
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			args = append(args, v)
		}

		out, err := fn(args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		for _, v := range out {
			lv, err := toLua(L, v)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(lv)
		}
		return len(out)
	})
}

func (r *Runtime) ensureOpen() error {
	if r.closed || r.state == nil {
		return r.fail(newError(KindGeneric, "runtime is closed"))
	}
	return nil
}

// fail records e as the last error, reports it to the configured sink
// and metrics, and returns it to the caller.
func (r *Runtime) fail(e *Error) error {
	r.lastErr = e
	if r.cfg.LogErrors {
		r.log.Error("script failure",
			zap.String("runtime", r.id),
			zap.String("kind", e.Kind.String()),
			zap.String("message", e.Message))
	}
	r.metrics.RecordError(e.Kind.String())
	return e
}

func (r *Runtime) clearLastError() {
	r.lastErr = nil
}

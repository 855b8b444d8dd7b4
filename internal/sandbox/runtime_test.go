package sandbox

import (
	"errors"
	"testing"
)

func newTestRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestAvailable(t *testing.T) {
	if !Available() {
		t.Fatal("embedded engine should be available")
	}
}

func TestExecute(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	tests := []struct {
		name   string
		script string
		want   interface{}
	}{
		{
			name:   "arithmetic",
			script: "return 10 + 5 * 2",
			want:   float64(20),
		},
		{
			name:   "string library",
			script: "return string.upper('hello')",
			want:   "HELLO",
		},
		{
			name:   "math library",
			script: "return math.max(3, 7)",
			want:   float64(7),
		},
		{
			name:   "boolean",
			script: "return 1 == 1",
			want:   true,
		},
		{
			name:   "nil result",
			script: "return nil",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Execute(tt.script)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Execute() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
			if rt.LastError() != nil {
				t.Errorf("LastError() = %v after success, want nil", rt.LastError())
			}
		})
	}
}

func TestExecuteSequenceResults(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	got, err := rt.Execute("return 1, 'two', true")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	seq, ok := got.([]interface{})
	if !ok {
		t.Fatalf("Execute() = %T, want sequence", got)
	}
	if len(seq) != 3 || seq[0] != float64(1) || seq[1] != "two" || seq[2] != true {
		t.Errorf("Execute() = %v, want [1 two true]", seq)
	}

	got, err = rt.Execute("local x = 1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seq, ok := got.([]interface{}); !ok || len(seq) != 0 {
		t.Errorf("Execute() = %v, want empty sequence", got)
	}
}

func TestCompileDoesNotRun(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	unit, err := rt.Compile("touched = true")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	got, err := rt.Execute("return touched")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != nil {
		t.Errorf("compilation executed top-level code: touched = %v", got)
	}

	if _, err := rt.Run(unit); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, _ := rt.Execute("return touched"); got != true {
		t.Errorf("unit did not run: touched = %v", got)
	}
}

func TestCompiledUnitReuse(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	unit, err := rt.Compile("counter = (counter or 0) + 1 return counter")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	for i := 1; i <= 3; i++ {
		out, err := rt.Run(unit)
		if err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
		if len(out) != 1 || out[0] != float64(i) {
			t.Errorf("Run() #%d = %v, want [%d]", i, out, i)
		}
	}
}

func TestCompiledUnitInvalidation(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	unit, err := rt.Compile("return 1")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if err := rt.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := rt.Run(unit); err == nil {
		t.Error("Run() accepted a unit from before a reset")
	}

	other := newTestRuntime(t, DefaultConfig())
	fresh, err := other.Compile("return 1")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := rt.Run(fresh); err == nil {
		t.Error("Run() accepted a unit owned by another runtime")
	}
}

func TestValidate(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	if !rt.Validate("return 1 + 1") {
		t.Error("Validate() = false for valid script")
	}
	if rt.LastError() != nil {
		t.Errorf("LastError() = %v after successful validation", rt.LastError())
	}

	if rt.Validate("return 1 +") {
		t.Error("Validate() = true for invalid script")
	}
	if e := rt.LastError(); e == nil || e.Kind != KindSyntax {
		t.Errorf("LastError() = %v, want syntax kind", e)
	}
}

func TestSyntaxErrorClassification(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	_, err := rt.Compile("function broken(")
	if err == nil {
		t.Fatal("Compile() accepted invalid source")
	}

	var sandboxErr *Error
	if !errors.As(err, &sandboxErr) {
		t.Fatalf("Compile() error type = %T", err)
	}
	if sandboxErr.Kind != KindSyntax {
		t.Errorf("error kind = %v, want syntax", sandboxErr.Kind)
	}
}

func TestRuntimeErrorClassification(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	_, err := rt.Execute("return missing_function()")
	if err == nil {
		t.Fatal("Execute() succeeded calling an undefined function")
	}

	var sandboxErr *Error
	if !errors.As(err, &sandboxErr) {
		t.Fatalf("Execute() error type = %T", err)
	}
	if sandboxErr.Kind != KindRuntime {
		t.Errorf("error kind = %v, want runtime", sandboxErr.Kind)
	}
}

func TestLastErrorContract(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	if _, err := rt.Execute("return 1 +"); err == nil {
		t.Fatal("Execute() accepted invalid source")
	}
	if rt.LastError() == nil {
		t.Fatal("LastError() = nil after failure")
	}
	if _, ok := rt.LastErrorMessage(); !ok {
		t.Fatal("LastErrorMessage() absent after failure")
	}

	if _, err := rt.Execute("return 1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if rt.LastError() != nil {
		t.Error("LastError() not cleared by subsequent success")
	}
	if _, ok := rt.LastErrorMessage(); ok {
		t.Error("LastErrorMessage() present after success")
	}
}

func TestEvaluate(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"true comparison", "1 == 1", true},
		{"false comparison", "1 == 2", false},
		{"nil is false", "nil", false},
		{"zero is true", "0", true},
		{"empty string is true", "''", true},
		{"string equality", "string.upper('ok') == 'OK'", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rt.Evaluate(tt.expr); got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateNeverRaises(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	if rt.Evaluate("1 ==") {
		t.Error("Evaluate() = true for broken expression")
	}
	if e := rt.LastError(); e == nil || e.Kind != KindSyntax {
		t.Errorf("LastError() = %v, want syntax kind", e)
	}

	if rt.Evaluate("missing_function()") {
		t.Error("Evaluate() = true for failing expression")
	}
	if e := rt.LastError(); e == nil || e.Kind != KindRuntime {
		t.Errorf("LastError() = %v, want runtime kind", e)
	}
}

func TestCallGlobal(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	if _, err := rt.Execute("function add(a, b) return a + b end"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	out, err := rt.CallGlobal("add", 5, 3)
	if err != nil {
		t.Fatalf("CallGlobal() error = %v", err)
	}
	if len(out) != 1 || out[0] != float64(8) {
		t.Errorf("CallGlobal() = %v, want [8]", out)
	}
}

func TestCallGlobalDottedPath(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	script := `
		util = {
			strings = {
				shout = function(s) return string.upper(s), #s end,
			},
		}
	`
	if _, err := rt.Execute(script); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	out, err := rt.CallGlobal("util.strings.shout", "hey")
	if err != nil {
		t.Fatalf("CallGlobal() error = %v", err)
	}
	if len(out) != 2 || out[0] != "HEY" || out[1] != float64(3) {
		t.Errorf("CallGlobal() = %v, want [HEY 3]", out)
	}
}

func TestCallGlobalUndefined(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	_, err := rt.CallGlobal("no_such_function")
	if err == nil {
		t.Fatal("CallGlobal() succeeded for undefined name")
	}

	var sandboxErr *Error
	if !errors.As(err, &sandboxErr) {
		t.Fatalf("CallGlobal() error type = %T", err)
	}
	if sandboxErr.Kind != KindRuntime {
		t.Errorf("error kind = %v, want runtime", sandboxErr.Kind)
	}
}

func TestCallGlobalLookupIgnoresMetamethods(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	script := "util = setmetatable({}, {__index = function() error('lookup trap') end})"
	if _, err := rt.Execute(script); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Name resolution must not fire __index; a raising metamethod stays
	// inside the classified error path instead of escaping the call.
	_, err := rt.CallGlobal("util.member")
	if err == nil {
		t.Fatal("CallGlobal() resolved a member through a raising __index")
	}
	var sandboxErr *Error
	if !errors.As(err, &sandboxErr) {
		t.Fatalf("CallGlobal() error type = %T", err)
	}
	if sandboxErr.Kind != KindRuntime {
		t.Errorf("error kind = %v, want runtime", sandboxErr.Kind)
	}

	got, err := rt.Execute("return 'alive'")
	if err != nil || got != "alive" {
		t.Fatalf("runtime unusable after trapped lookup: %v, %v", got, err)
	}
}

func TestBind(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rt.Bind("threshold", 10)
	if !rt.Evaluate("threshold == 10") {
		t.Error("bound scalar not visible in script scope")
	}

	rt.Bind("threshold", 20)
	if !rt.Evaluate("threshold == 20") {
		t.Error("rebinding did not overwrite the global")
	}
}

func TestSecurityGlobalsStripped(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	for _, name := range unsafeGlobals {
		if rt.Evaluate(name + " ~= nil") {
			t.Errorf("%s is reachable from script scope", name)
		}
	}

	// os and io libraries are never opened.
	if rt.Evaluate("os ~= nil") || rt.Evaluate("io ~= nil") {
		t.Error("os/io libraries are reachable from script scope")
	}
}

func TestClosedRuntime(t *testing.T) {
	rt, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rt.Close()
	rt.Close() // idempotent

	if _, err := rt.Execute("return 1"); err == nil {
		t.Error("Execute() succeeded on closed runtime")
	}
	if rt.Validate("return 1") {
		t.Error("Validate() = true on closed runtime")
	}
}

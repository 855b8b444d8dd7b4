package sandbox

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Kind classifies a sandbox failure.
type Kind int

const (
	// KindGeneric covers sandbox-layer failures with no better bucket.
	KindGeneric Kind = iota
	// KindSyntax means the script failed to compile.
	KindSyntax
	// KindRuntime means the script compiled but failed during execution,
	// including calls to undefined functions and host callables returning
	// an error.
	KindRuntime
	// KindTimeout means the CPU limit was exceeded.
	KindTimeout
	// KindMemory means the memory limit was exceeded.
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	case KindMemory:
		return "memory"
	default:
		return "generic"
	}
}

// Error is a classified sandbox failure. Message carries the underlying
// engine or host message verbatim; Error() prefixes it with the kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Cancellation causes injected by the resource limiter. The classifier
// maps them back to their kinds after an aborted run.
var (
	errCPUExceeded    = errors.New("cpu time limit exceeded")
	errMemoryExceeded = errors.New("memory limit exceeded")
)

// classify maps a raw engine failure to exactly one Kind. execCtx is the
// per-run context; when the limiter cancelled it, the cancellation cause
// wins over whatever error the VM surfaced while unwinding.
func classify(err error, execCtx context.Context) *Error {
	if execCtx != nil {
		switch cause := context.Cause(execCtx); {
		case errors.Is(cause, errCPUExceeded):
			return &Error{Kind: KindTimeout, Message: errCPUExceeded.Error()}
		case errors.Is(cause, errMemoryExceeded):
			return &Error{Kind: KindMemory, Message: errMemoryExceeded.Error()}
		}
	}

	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		msg := apiErr.Object.String()
		switch apiErr.Type {
		case lua.ApiErrorSyntax:
			return &Error{Kind: KindSyntax, Message: msg}
		case lua.ApiErrorRun, lua.ApiErrorError, lua.ApiErrorPanic:
			return &Error{Kind: KindRuntime, Message: msg}
		}
	}

	return &Error{Kind: KindGeneric, Message: err.Error()}
}

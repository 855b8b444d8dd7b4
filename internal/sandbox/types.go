package sandbox

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/luabox/luabox/internal/logging"
	"github.com/luabox/luabox/internal/monitoring"
)

// Config defines the resource ceilings for a Runtime.
type Config struct {
	CPUSeconds  float64 // Consumed CPU time per execution; 0 = unlimited
	MemoryBytes int64   // Heap growth per execution; 0 = unlimited
	LogErrors   bool    // Report classified failures to the logger
}

// DefaultConfig returns the stock ceilings: 30 CPU seconds and 64 MB.
func DefaultConfig() Config {
	return Config{
		CPUSeconds:  30,
		MemoryBytes: 64 << 20,
		LogErrors:   true,
	}
}

// Option configures optional Runtime collaborators.
type Option func(*Runtime)

// WithLogger attaches the failure sink the runtime reports into.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runtime) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics attaches an execution metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runtime) {
		r.metrics = m
	}
}

// CompiledUnit is the executable form of a successfully parsed script.
// It is owned by the Runtime that compiled it, may be run any number of
// times, and becomes invalid when that Runtime is reset or closed.
type CompiledUnit struct {
	fn    *lua.LFunction
	owner *Runtime
	gen   uint64
}

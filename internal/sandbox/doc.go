/*
Package sandbox executes untrusted Lua scripts inside resource-bounded
runtimes using the gopher-lua engine.

# Overview

Each Runtime owns one isolated Lua state with:

  - CPU limits (consumed execution time, not wall clock)
  - Memory limits (heap growth per execution)
  - A stripped standard library (base, table, string, math only)
  - A namespaced registry of host callables exposed as Lua tables
  - A classified error taxonomy with a last-error record

# Architecture

The runtime is built from small parts:

 1. Runtime: gopher-lua LState with isolated globals
 2. Registry: (library, function) table of host callables
 3. Marshaller: bidirectional host/Lua value conversion
 4. Limiter: CPU and heap watchdog cancelling overruns
 5. Classifier: maps every failure to one of syntax, runtime,
    timeout, memory, generic

# Security Model

Sandboxed scripts cannot:
  - Touch the filesystem (dofile, loadfile, require are removed)
  - Re-enter the compiler (load is removed)
  - Run past the configured CPU or memory ceilings

All host interaction goes through registered callables; values crossing
the boundary are converted, never shared.

# Usage Example

	rt, err := sandbox.New(sandbox.DefaultConfig())
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.RegisterFunction("m", "double", func(args []interface{}) ([]interface{}, error) {
		n, _ := args[0].(float64)
		return []interface{}{n * 2}, nil
	})

	v, err := rt.Execute("return m.double(21)") // 42

# Concurrency

A Runtime is single-caller; run independent Runtimes (or a Pool) for
parallel scripts. Registration and execution on one instance must not
interleave across goroutines.
*/
package sandbox

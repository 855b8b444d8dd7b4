package sandbox

// Func is a host callable exposed into script scope. Arguments arrive as
// marshalled host values in script order. A non-nil result sequence is
// returned to the script value-for-value; returning nil means void. A
// non-nil error aborts the script with a runtime error carrying the
// error's message verbatim.
type Func func(args []interface{}) ([]interface{}, error)

// Library is a named group of host callables.
type Library map[string]Func

// registry holds all libraries known to one Runtime. It is plain
// single-owner state; the Runtime serializes access.
type registry struct {
	libs map[string]Library
}

func newRegistry() *registry {
	return &registry{libs: make(map[string]Library)}
}

// register merges fns into the named library, creating it if absent.
// Existing entries with the same name are overwritten, other entries are
// left alone: a union-merge with last-write-wins per key, never a full
// replacement of the library.
func (r *registry) register(lib string, fns map[string]Func) {
	target, ok := r.libs[lib]
	if !ok {
		target = make(Library, len(fns))
		r.libs[lib] = target
	}
	for name, fn := range fns {
		target[name] = fn
	}
}

// functions returns a copy of the named library, or nil if absent.
func (r *registry) functions(lib string) map[string]Func {
	src, ok := r.libs[lib]
	if !ok {
		return nil
	}
	out := make(map[string]Func, len(src))
	for name, fn := range src {
		out[name] = fn
	}
	return out
}

// libraries returns a copy of the whole table.
func (r *registry) libraries() map[string]Library {
	out := make(map[string]Library, len(r.libs))
	for lib := range r.libs {
		out[lib] = r.functions(lib)
	}
	return out
}

func (r *registry) isRegistered(fn, lib string) bool {
	target, ok := r.libs[lib]
	if !ok {
		return false
	}
	_, ok = target[fn]
	return ok
}

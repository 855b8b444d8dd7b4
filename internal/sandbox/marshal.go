package sandbox

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// maxMarshalDepth bounds how deeply nested a value crossing the
// host/script boundary may be. A self-referential table would recurse
// without end and overflow the host stack, so conversion fails once
// the limit is hit instead.
const maxMarshalDepth = 128

var errMarshalDepth = fmt.Errorf(
	"value nesting exceeds %d levels; the value likely contains a reference cycle", maxMarshalDepth)

// toLua converts a host value to its Lua representation. Ordered host
// sequences become 1-indexed Lua tables; key/value maps become hash
// tables (insertion order is not preserved, Lua tables have none).
// Values outside the supported variant set map to nil.
func toLua(L *lua.LState, v interface{}) (lua.LValue, error) {
	return toLuaDepth(L, v, 0)
}

func toLuaDepth(L *lua.LState, v interface{}, depth int) (lua.LValue, error) {
	if depth > maxMarshalDepth {
		return lua.LNil, errMarshalDepth
	}

	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(val), nil
	case int:
		return lua.LNumber(val), nil
	case int32:
		return lua.LNumber(val), nil
	case int64:
		return lua.LNumber(val), nil
	case uint:
		return lua.LNumber(val), nil
	case uint64:
		return lua.LNumber(val), nil
	case float32:
		return lua.LNumber(val), nil
	case float64:
		return lua.LNumber(val), nil
	case string:
		return lua.LString(val), nil
	case []interface{}:
		tbl := L.NewTable()
		for i, item := range val {
			lv, err := toLuaDepth(L, item, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			tbl.RawSetInt(i+1, lv)
		}
		return tbl, nil
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, item := range val {
			lv, err := toLuaDepth(L, item, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			tbl.RawSetString(k, lv)
		}
		return tbl, nil
	case lua.LValue:
		return val, nil
	default:
		return lua.LNil, nil
	}
}

// fromLua converts a Lua value to its host representation. Tables with a
// non-empty array part come back as []interface{} (index 1 maps to host
// index 0); everything else, including the empty table, comes back as
// map[string]interface{} with stringified keys. Numbers are always
// float64, matching Lua's single number type.
func fromLua(v lua.LValue) (interface{}, error) {
	return fromLuaDepth(v, 0)
}

func fromLuaDepth(v lua.LValue, depth int) (interface{}, error) {
	if depth > maxMarshalDepth {
		return nil, errMarshalDepth
	}

	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			seq := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				item, err := fromLuaDepth(val.RawGetInt(i), depth+1)
				if err != nil {
					return nil, err
				}
				seq = append(seq, item)
			}
			return seq, nil
		}
		m := make(map[string]interface{})
		var convErr error
		val.ForEach(func(k, item lua.LValue) {
			if convErr != nil {
				return
			}
			hv, err := fromLuaDepth(item, depth+1)
			if err != nil {
				convErr = err
				return
			}
			m[k.String()] = hv
		})
		if convErr != nil {
			return nil, convErr
		}
		return m, nil
	default:
		// Functions, userdata and threads have no host representation.
		return nil, nil
	}
}

package scriptlet

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts a plain Go value (as produced by JSON decoding) into a Lua
// value. Unknown types are marshaled through JSON as a fallback.
func toLua(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return lua.LNumber(f)
		}
		return lua.LString(v.String())
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, toLua(L, item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(toLua(L, item))
		}
		return tbl
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return lua.LNil
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return lua.LNil
		}
		if _, again := decoded.(map[string]any); again {
			return toLua(L, decoded)
		}
		if _, again := decoded.([]any); again {
			return toLua(L, decoded)
		}
		switch decoded.(type) {
		case nil, bool, string, float64:
			return toLua(L, decoded)
		}
		return lua.LNil
	}
}

// fromLua converts a Lua value back into a plain Go value. Tables with
// contiguous integer keys become slices, others become maps.
func fromLua(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case *lua.LTable:
		length := v.Len()
		if length > 0 {
			out := make([]any, 0, length)
			for i := 1; i <= length; i++ {
				out = append(out, fromLua(v.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		v.ForEach(func(key, item lua.LValue) {
			out[key.String()] = fromLua(item)
		})
		if len(out) == 0 {
			return []any{}
		}
		return out
	default:
		return v.String()
	}
}

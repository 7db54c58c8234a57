package docstore

import (
	"reflect"
	"time"
)

// Clean prepares a value for writing. Unset map entries are dropped, typed
// nil pointers, maps and slices become an explicit nil, times are converted to
// UTC, and nested maps and []any are cleaned recursively. Non-nil pointers are
// dereferenced.
func Clean(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Sentinel:
		if x == Unset {
			return nil
		}
		return x
	case Doc:
		if x == nil {
			return nil
		}
		return cleanMap(x)
	case map[string]any:
		if x == nil {
			return nil
		}
		return cleanMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Clean(e)
		}
		return out
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Clean(rv.Elem().Interface())
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// CleanDoc is Clean for a whole document. A nil document cleans to an empty one.
func CleanDoc(d Doc) Doc {
	if d == nil {
		return Doc{}
	}
	return cleanMap(d)
}

func cleanMap(m map[string]any) Doc {
	out := make(Doc, len(m))
	for k, v := range m {
		if s, ok := v.(Sentinel); ok && s == Unset {
			continue
		}
		out[k] = Clean(v)
	}
	return out
}

// ResolveServerTime returns a copy of v with every ServerTime sentinel
// replaced by now.
func ResolveServerTime(v any, now time.Time) any {
	switch x := v.(type) {
	case Sentinel:
		if x == ServerTime {
			return now
		}
		return x
	case Doc:
		out := make(Doc, len(x))
		for k, e := range x {
			out[k] = ResolveServerTime(e, now)
		}
		return out
	case map[string]any:
		out := make(Doc, len(x))
		for k, e := range x {
			out[k] = ResolveServerTime(e, now)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ResolveServerTime(e, now)
		}
		return out
	}
	return v
}

// Copy returns a deep copy of nested maps and []any inside d.
func Copy(d Doc) Doc {
	if d == nil {
		return nil
	}
	return copyValue(d).(Doc)
}

func copyValue(v any) any {
	switch x := v.(type) {
	case Doc:
		out := make(Doc, len(x))
		for k, e := range x {
			out[k] = copyValue(e)
		}
		return out
	case map[string]any:
		out := make(Doc, len(x))
		for k, e := range x {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}

func stampCreate(d Doc) Doc {
	if _, ok := d["createdAt"]; !ok {
		d["createdAt"] = ServerTime
	}
	d["updatedAt"] = ServerTime
	return d
}

func stampUpdate(d Doc) Doc {
	d["updatedAt"] = ServerTime
	return d
}

package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Lookup resolves a dotted path inside d.
func Lookup(d map[string]any, path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch x := cur.(type) {
		case Doc:
			m = x
		case map[string]any:
			m = x
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Matches reports whether d satisfies every condition.
func Matches(d Doc, conds []Condition) bool {
	for _, c := range conds {
		v, ok := Lookup(d, c.Field)
		switch c.Op {
		case OpEq:
			if c.Value == nil {
				if ok && v != nil {
					return false
				}
				continue
			}
			if !ok || !Equal(v, c.Value) {
				return false
			}
		case OpIn:
			if !ok {
				return false
			}
			list, _ := c.Value.([]any)
			found := false
			for _, want := range list {
				if Equal(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Equal compares two stored values. Numbers compare by value regardless of
// their Go type and times compare by instant.
func Equal(a, b any) bool {
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two stored values. Missing and nil values sort first, then
// booleans, numbers, strings and times; values of other types compare equal.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	case 2:
		na, _ := number(a)
		nb, _ := number(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 0
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := number(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	if _, ok := v.(time.Time); ok {
		return 4
	}
	return 5
}

// Apply filters, orders and limits docs in memory according to q. It is used
// by the in-memory backend and by callers merging results from several
// queries.
func Apply(docs []Doc, q Query) []Doc {
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		if Matches(d, q.Where) {
			out = append(out, d)
		}
	}
	if q.OrderBy != "" {
		SortDocs(out, q.OrderBy, q.Desc)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// SortDocs sorts docs in place by the value at path.
func SortDocs(docs []Doc, path string, desc bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := Lookup(docs[i], path)
		b, _ := Lookup(docs[j], path)
		c := Compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

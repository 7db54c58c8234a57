package docstore

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeTimes converts store-native timestamp values anywhere inside v to
// time.Time in UTC and converts BSON containers to Doc and []any.
//
// Recognized shapes:
//   - primitive.DateTime and primitive.Timestamp (MongoDB)
//   - time.Time in any location
//   - {"seconds": n, "nanoseconds": n} and {"_seconds": n, "_nanoseconds": n}
//     maps, as found in documents exported from Firestore
func NormalizeTimes(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case time.Time:
		return x.UTC()
	case Doc:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case primitive.M:
		return normalizeMap(x)
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = e.Value
		}
		return normalizeMap(m)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeTimes(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeTimes(e)
		}
		return out
	}
	return v
}

// NormalizeDoc is NormalizeTimes for a whole document.
func NormalizeDoc(d map[string]any) Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = NormalizeTimes(v)
	}
	return out
}

func normalizeMap(m map[string]any) any {
	if t, ok := timestampMap(m); ok {
		return t
	}
	out := make(Doc, len(m))
	for k, v := range m {
		out[k] = NormalizeTimes(v)
	}
	return out
}

func timestampMap(m map[string]any) (time.Time, bool) {
	if len(m) != 2 {
		return time.Time{}, false
	}
	for _, keys := range [][2]string{{"seconds", "nanoseconds"}, {"_seconds", "_nanoseconds"}} {
		sec, ok1 := number(m[keys[0]])
		nsec, ok2 := number(m[keys[1]])
		if ok1 && ok2 {
			return time.Unix(int64(sec), int64(nsec)).UTC(), true
		}
	}
	return time.Time{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

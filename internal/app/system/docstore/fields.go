package docstore

import (
	"strings"
	"time"
)

// Str returns the string at path, or "" when absent or not a string.
func (d Doc) Str(path string) string {
	v, _ := Lookup(d, path)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// FirstStr returns the first non-empty string among paths.
func (d Doc) FirstStr(paths ...string) string {
	for _, p := range paths {
		if s := d.Str(p); s != "" {
			return s
		}
	}
	return ""
}

// Map returns the nested document at path, or nil.
func (d Doc) Map(path string) Doc {
	v, _ := Lookup(d, path)
	switch m := v.(type) {
	case Doc:
		return m
	case map[string]any:
		return Doc(m)
	}
	return nil
}

// Time returns the time at path.
func (d Doc) Time(path string) (time.Time, bool) {
	v, _ := Lookup(d, path)
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

// TimeOrZero returns the time at path or the zero time.
func (d Doc) TimeOrZero(path string) time.Time {
	t, _ := d.Time(path)
	return t
}

// Int returns the number at path truncated to an int.
func (d Doc) Int(path string) (int, bool) {
	v, _ := Lookup(d, path)
	n, ok := number(v)
	return int(n), ok
}

// Bool returns the boolean at path.
func (d Doc) Bool(path string) (value bool, ok bool) {
	v, _ := Lookup(d, path)
	b, ok := v.(bool)
	return b, ok
}

// Has reports whether path is present with a non-nil value.
func (d Doc) Has(path string) bool {
	v, ok := Lookup(d, path)
	return ok && v != nil
}

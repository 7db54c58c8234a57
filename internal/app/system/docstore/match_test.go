package docstore

import (
	"testing"
	"time"
)

func TestMatches(t *testing.T) {
	d := Doc{
		"status":     "ACTIVE",
		"seats":      int64(5),
		"assignedTo": Doc{"userId": "u1"},
		"releasedAt": nil,
	}
	tests := []struct {
		name  string
		conds []Condition
		want  bool
	}{
		{"eq string", []Condition{Eq("status", "ACTIVE")}, true},
		{"eq number across types", []Condition{Eq("seats", 5)}, true},
		{"eq dotted", []Condition{Eq("assignedTo.userId", "u1")}, true},
		{"eq nil on missing", []Condition{Eq("revokedAt", nil)}, true},
		{"eq nil on explicit nil", []Condition{Eq("releasedAt", nil)}, true},
		{"eq nil on present", []Condition{Eq("assignedTo", nil)}, false},
		{"in hit", []Condition{In("status", "PENDING", "ACTIVE")}, true},
		{"in miss", []Condition{In("status", "PENDING")}, false},
		{"and", []Condition{Eq("status", "ACTIVE"), Eq("assignedTo.userId", "u2")}, false},
		{"no conditions", nil, true},
	}
	for _, tc := range tests {
		if got := Matches(d, tc.conds); got != tc.want {
			t.Errorf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestApplyOrdering(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Doc{
		{"id": "a", "at": t1.Add(2 * time.Hour)},
		{"id": "b"},
		{"id": "c", "at": t1},
	}

	got := Apply(docs, Query{OrderBy: "at", Desc: true})
	if got[0].ID() != "a" || got[1].ID() != "c" || got[2].ID() != "b" {
		t.Errorf("desc order = %v %v %v", got[0].ID(), got[1].ID(), got[2].ID())
	}

	got = Apply(docs, Query{OrderBy: "at", Limit: 1})
	if len(got) != 1 || got[0].ID() != "b" {
		t.Errorf("asc limit 1 = %v", got)
	}
}

func TestDocAccessors(t *testing.T) {
	d := Doc{
		"name":   "  Ada ",
		"alias":  "",
		"n":      float64(3),
		"ok":     true,
		"when":   "2024-05-01T10:00:00Z",
		"nested": map[string]any{"k": "v"},
	}
	if d.Str("name") != "Ada" {
		t.Errorf("Str trims: %q", d.Str("name"))
	}
	if d.FirstStr("alias", "missing", "name") != "Ada" {
		t.Errorf("FirstStr = %q", d.FirstStr("alias", "missing", "name"))
	}
	if n, ok := d.Int("n"); !ok || n != 3 {
		t.Errorf("Int = %d, %v", n, ok)
	}
	if b, ok := d.Bool("ok"); !ok || !b {
		t.Errorf("Bool = %v, %v", b, ok)
	}
	if ts, ok := d.Time("when"); !ok || ts.Hour() != 10 {
		t.Errorf("Time = %v, %v", ts, ok)
	}
	if d.Map("nested").Str("k") != "v" {
		t.Errorf("Map nested lookup failed")
	}
	if d.Has("alias.x") || !d.Has("name") {
		t.Errorf("Has mismatch")
	}
}

func TestWriteValidate(t *testing.T) {
	if err := (Write{Kind: WriteSet, Collection: "c"}).Validate(); err == nil {
		t.Errorf("missing id should fail validation")
	}
	if err := (Write{Kind: WriteKind(99), Collection: "c", ID: "1"}).Validate(); err == nil {
		t.Errorf("unknown kind should fail validation")
	}
	if err := (Write{Kind: WriteRequire, Collection: "c", ID: "1"}).Validate(); err != nil {
		t.Errorf("valid write: %v", err)
	}
}

// Package memstore is an in-memory docstore.Backend. It backs tests and the
// "memory" store_backend, and mirrors the semantics of the MongoDB backend:
// string ids, dotted-path patches, and all-or-nothing batch commits.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/google/uuid"
)

// Store holds collections of documents behind a single mutex.
type Store struct {
	mu     sync.RWMutex
	colls  map[string]map[string]docstore.Doc
	faults map[string]error

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to resolve docstore.ServerTime.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the function used for generated ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		colls:  make(map[string]map[string]docstore.Doc),
		faults: make(map[string]error),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FailCollection makes every operation touching collection return err until
// cleared with a nil err. Tests use it to exercise degraded reads.
func (s *Store) FailCollection(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, collection)
		return
	}
	s.faults[collection] = err
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.colls[collection])
}

func (s *Store) fault(collection string) error {
	if err, ok := s.faults[collection]; ok {
		return fmt.Errorf("memstore %s: %w", collection, err)
	}
	return nil
}

// Get implements docstore.Backend.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(collection); err != nil {
		return nil, err
	}
	d, ok := s.colls[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return docstore.Copy(d), nil
}

// Find implements docstore.Backend.
func (s *Store) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(collection); err != nil {
		return nil, err
	}
	all := make([]docstore.Doc, 0, len(s.colls[collection]))
	for _, d := range s.colls[collection] {
		all = append(all, d)
	}
	// Stable base order so unordered queries are deterministic.
	docstore.SortDocs(all, docstore.IDField, false)
	matched := docstore.Apply(all, q)
	out := make([]docstore.Doc, len(matched))
	for i, d := range matched {
		out[i] = docstore.Copy(d)
	}
	return out, nil
}

// Insert implements docstore.Backend.
func (s *Store) Insert(ctx context.Context, collection string, data docstore.Doc) (docstore.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(collection); err != nil {
		return nil, err
	}
	id := data.ID()
	if id == "" {
		id = s.newID()
	}
	coll := s.collection(collection)
	if _, exists := coll[id]; exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	d := s.prepare(data)
	d[docstore.IDField] = id
	coll[id] = d
	return docstore.Copy(d), nil
}

// Patch implements docstore.Backend.
func (s *Store) Patch(ctx context.Context, collection, id string, data docstore.Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(collection); err != nil {
		return err
	}
	coll := s.colls[collection]
	cur, ok := coll[id]
	if !ok {
		return docstore.ErrNotFound
	}
	coll[id] = merge(cur, s.prepare(data))
	return nil
}

// Remove implements docstore.Backend.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(collection); err != nil {
		return err
	}
	if _, ok := s.colls[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.colls[collection], id)
	return nil
}

// Commit implements docstore.Backend. Writes are applied to copies of the
// touched collections, which replace the live ones only if every write
// succeeds.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]map[string]docstore.Doc)
	stage := func(name string) (map[string]docstore.Doc, error) {
		if err := s.fault(name); err != nil {
			return nil, err
		}
		if c, ok := staged[name]; ok {
			return c, nil
		}
		c := make(map[string]docstore.Doc, len(s.colls[name]))
		for k, v := range s.colls[name] {
			c[k] = v
		}
		staged[name] = c
		return c, nil
	}

	for i, w := range writes {
		coll, err := stage(w.Collection)
		if err != nil {
			return err
		}
		switch w.Kind {
		case docstore.WriteSet:
			d := s.prepare(w.Data)
			d[docstore.IDField] = w.ID
			coll[w.ID] = d
		case docstore.WriteUpdate:
			cur, ok := coll[w.ID]
			if !ok {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.ID, docstore.ErrNotFound)
			}
			coll[w.ID] = merge(cur, s.prepare(w.Data))
		case docstore.WriteDelete:
			delete(coll, w.ID)
		case docstore.WriteRequire:
			cur, ok := coll[w.ID]
			if !ok || !docstore.Matches(cur, w.Where) {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.ID, docstore.ErrPreconditionFailed)
			}
		default:
			return fmt.Errorf("write %d: %w", i, docstore.ErrInvalidWrite)
		}
	}

	for name, c := range staged {
		s.colls[name] = c
	}
	return nil
}

// Ping implements docstore.Backend.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) collection(name string) map[string]docstore.Doc {
	c, ok := s.colls[name]
	if !ok {
		c = make(map[string]docstore.Doc)
		s.colls[name] = c
	}
	return c
}

// prepare returns a deep copy of data with ServerTime resolved.
func (s *Store) prepare(data docstore.Doc) docstore.Doc {
	resolved := docstore.ResolveServerTime(docstore.Copy(data), s.now())
	d, _ := resolved.(docstore.Doc)
	if d == nil {
		d = docstore.Doc{}
	}
	return d
}

// merge returns a copy of cur with patch applied. Dotted keys in patch set
// nested fields, creating intermediate documents as needed.
func merge(cur, patch docstore.Doc) docstore.Doc {
	out := docstore.Copy(cur)
	for k, v := range patch {
		if k == docstore.IDField {
			continue
		}
		setPath(out, strings.Split(k, "."), v)
	}
	return out
}

func setPath(d docstore.Doc, parts []string, v any) {
	if len(parts) == 1 {
		d[parts[0]] = v
		return
	}
	next, ok := d[parts[0]].(docstore.Doc)
	if !ok {
		if m, isMap := d[parts[0]].(map[string]any); isMap {
			next = docstore.Doc(m)
		} else {
			next = docstore.Doc{}
		}
		d[parts[0]] = next
	}
	setPath(next, parts[1:], v)
}

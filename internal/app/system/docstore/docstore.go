// Package docstore is the data-access seam between licensehub and the hosted
// document database.
//
// A Backend speaks to a concrete store (MongoDB, or the in-memory store used
// by tests) and always propagates errors. The Adapter wraps a Backend with the
// policy the rest of the app relies on:
//
//   - every write is cleaned (Unset dropped, typed nils written as null) and
//     stamped with ServerTime;
//   - every read has store-native timestamps normalized to time.Time (UTC);
//   - soft reads (GetByID, Query, QueryWith) log and swallow failures;
//   - strict reads (Fetch, Find) and batches return errors to the caller.
//
// Documents are plain maps. Ids are strings and are exposed on every document
// under the "id" key.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Doc is a single document.
type Doc map[string]any

// IDField is the key under which a document's id is exposed.
const IDField = "id"

// ID returns the document id, or "" when absent.
func (d Doc) ID() string {
	s, _ := d[IDField].(string)
	return s
}

var (
	// ErrNotFound is returned by strict reads and by batch updates that target
	// a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrPreconditionFailed is returned when a batch precondition does not hold
	// at commit time. Nothing in the batch is applied.
	ErrPreconditionFailed = errors.New("batch precondition failed")
	// ErrInvalidWrite is returned for writes missing a collection or id.
	ErrInvalidWrite = errors.New("invalid write")
)

// Sentinel values may be placed in documents handed to write paths.
type Sentinel int

const (
	// Unset marks a field that must not be written at all. It is the
	// equivalent of an absent key and is dropped by Clean.
	Unset Sentinel = iota + 1
	// ServerTime is replaced by the store's clock when the write is applied.
	ServerTime
)

func (s Sentinel) String() string {
	switch s {
	case Unset:
		return "docstore.Unset"
	case ServerTime:
		return "docstore.ServerTime"
	}
	return fmt.Sprintf("docstore.Sentinel(%d)", int(s))
}

// Op is a query predicate operator.
type Op string

const (
	OpEq Op = "=="
	OpIn Op = "in"
)

// Condition is one predicate of a compound query. Field may be a dotted path
// into nested documents, e.g. "assignedTo.userId".
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Eq matches documents whose field equals v. Eq(field, nil) also matches
// documents where the field is missing.
func Eq(field string, v any) Condition {
	return Condition{Field: field, Op: OpEq, Value: v}
}

// In matches documents whose field equals any of vs.
func In[T any](field string, vs ...T) Condition {
	list := make([]any, len(vs))
	for i, v := range vs {
		list[i] = v
	}
	return Condition{Field: field, Op: OpIn, Value: list}
}

// Query is a compound AND query with optional ordering and limit.
type Query struct {
	Where   []Condition
	OrderBy string
	Desc    bool
	Limit   int
}

// WriteKind identifies the kind of a batched write.
type WriteKind int

const (
	// WriteSet creates the document or replaces it entirely.
	WriteSet WriteKind = iota + 1
	// WriteUpdate merges fields into an existing document. The whole batch
	// fails with ErrNotFound if the document is missing.
	WriteUpdate
	// WriteDelete removes a document. Deleting a missing document is a no-op.
	WriteDelete
	// WriteRequire writes nothing; it asserts that the document exists and
	// matches Where when the batch is applied.
	WriteRequire
)

func (k WriteKind) String() string {
	switch k {
	case WriteSet:
		return "set"
	case WriteUpdate:
		return "update"
	case WriteDelete:
		return "delete"
	case WriteRequire:
		return "require"
	}
	return "unknown"
}

// Write is one operation of an atomic batch.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       Doc
	Where      []Condition
}

// Validate reports malformed writes before anything is sent to a store.
func (w Write) Validate() error {
	if w.Collection == "" || w.ID == "" {
		return fmt.Errorf("%w: %s needs collection and id (got %q/%q)", ErrInvalidWrite, w.Kind, w.Collection, w.ID)
	}
	if w.Kind < WriteSet || w.Kind > WriteRequire {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidWrite, int(w.Kind))
	}
	return nil
}

// Backend is a concrete document store. All methods propagate errors.
type Backend interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Find returns every document matching q.
	Find(ctx context.Context, collection string, q Query) ([]Doc, error)
	// Insert creates a document. The id is taken from data["id"] when
	// present, otherwise generated. Returns ErrAlreadyExists for taken ids.
	Insert(ctx context.Context, collection string, data Doc) (Doc, error)
	// Patch merges data into an existing document or returns ErrNotFound.
	// Keys may be dotted paths.
	Patch(ctx context.Context, collection, id string, data Doc) error
	// Remove deletes a document or returns ErrNotFound.
	Remove(ctx context.Context, collection, id string) error
	// Commit applies writes atomically: all of them or none.
	Commit(ctx context.Context, writes []Write) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

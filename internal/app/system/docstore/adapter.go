package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Adapter applies licensehub's read/write policy on top of a Backend.
type Adapter struct {
	b   Backend
	log *zap.Logger
}

// NewAdapter wraps b. A nil logger is replaced with a no-op logger.
func NewAdapter(b Backend, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{b: b, log: logger}
}

// Backend returns the wrapped backend.
func (a *Adapter) Backend() Backend { return a.b }

// GetByID returns the document or nil. Missing documents and store failures
// both yield nil; failures are logged.
func (a *Adapter) GetByID(ctx context.Context, collection, id string) Doc {
	if id == "" {
		return nil
	}
	d, err := a.Fetch(ctx, collection, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Warn("docstore: get failed",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
		}
		return nil
	}
	return d
}

// Fetch returns the document or an error (ErrNotFound when missing).
func (a *Adapter) Fetch(ctx context.Context, collection, id string) (Doc, error) {
	if id == "" {
		return nil, fmt.Errorf("%s/<empty id>: %w", collection, ErrNotFound)
	}
	d, err := a.b.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	return NormalizeDoc(d), nil
}

// Query returns every document matching conds, or an empty result when the
// query fails.
func (a *Adapter) Query(ctx context.Context, collection string, conds ...Condition) []Doc {
	return a.QueryWith(ctx, collection, Query{Where: conds})
}

// QueryWith is Query with ordering and limit. Failures yield an empty result.
func (a *Adapter) QueryWith(ctx context.Context, collection string, q Query) []Doc {
	docs, err := a.Find(ctx, collection, q)
	if err != nil {
		a.log.Warn("docstore: query failed",
			zap.String("collection", collection),
			zap.Int("conditions", len(q.Where)),
			zap.Error(err))
		return nil
	}
	return docs
}

// Find is the strict form of QueryWith.
func (a *Adapter) Find(ctx context.Context, collection string, q Query) ([]Doc, error) {
	docs, err := a.b.Find(ctx, collection, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]Doc, 0, len(docs))
	for _, d := range docs {
		out = append(out, NormalizeDoc(d))
	}
	return out, nil
}

// Create inserts a cleaned, timestamped document and returns it as stored.
func (a *Adapter) Create(ctx context.Context, collection string, data Doc) (Doc, error) {
	d, err := a.b.Insert(ctx, collection, stampCreate(CleanDoc(data)))
	if err != nil {
		a.log.Warn("docstore: create failed",
			zap.String("collection", collection),
			zap.Error(err))
		return nil, fmt.Errorf("create in %s: %w", collection, err)
	}
	return NormalizeDoc(d), nil
}

// Update merges data into an existing document. It reports false, after
// logging, when the document is missing or the write fails.
func (a *Adapter) Update(ctx context.Context, collection, id string, data Doc) bool {
	if err := a.b.Patch(ctx, collection, id, stampUpdate(CleanDoc(data))); err != nil {
		a.log.Warn("docstore: update failed",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err))
		return false
	}
	return true
}

// Delete removes a document. It reports false, after logging, when the
// document is missing or the delete fails.
func (a *Adapter) Delete(ctx context.Context, collection, id string) bool {
	if err := a.b.Remove(ctx, collection, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Warn("docstore: delete failed",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
		}
		return false
	}
	return true
}

// Batch starts an atomic multi-document write.
func (a *Adapter) Batch() *Batch {
	return &Batch{a: a}
}

// Batch accumulates writes that are committed together. Errors from Commit
// always propagate; nothing is applied when Commit fails.
type Batch struct {
	a      *Adapter
	writes []Write
}

// Set creates or replaces a document.
func (b *Batch) Set(collection, id string, data Doc) *Batch {
	b.writes = append(b.writes, Write{
		Kind:       WriteSet,
		Collection: collection,
		ID:         id,
		Data:       stampCreate(CleanDoc(data)),
	})
	return b
}

// Update merges fields into an existing document.
func (b *Batch) Update(collection, id string, data Doc) *Batch {
	b.writes = append(b.writes, Write{
		Kind:       WriteUpdate,
		Collection: collection,
		ID:         id,
		Data:       stampUpdate(CleanDoc(data)),
	})
	return b
}

// Delete removes a document if it exists.
func (b *Batch) Delete(collection, id string) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
	return b
}

// Require makes the batch conditional on the document existing and matching
// conds at commit time.
func (b *Batch) Require(collection, id string, conds ...Condition) *Batch {
	b.writes = append(b.writes, Write{Kind: WriteRequire, Collection: collection, ID: id, Where: conds})
	return b
}

// Len returns the number of queued writes, preconditions included.
func (b *Batch) Len() int { return len(b.writes) }

// Writes returns the queued writes.
func (b *Batch) Writes() []Write { return b.writes }

// Commit applies the batch. An empty batch is a no-op.
func (b *Batch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}
	for _, w := range b.writes {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	if err := b.a.b.Commit(ctx, b.writes); err != nil {
		b.a.log.Warn("docstore: batch commit failed",
			zap.Int("writes", len(b.writes)),
			zap.Error(err))
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

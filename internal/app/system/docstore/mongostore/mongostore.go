// Package mongostore is the MongoDB docstore.Backend.
//
// Documents are stored with their string id in _id and exposed to callers
// under "id". Batches run through txn.Run so replica sets get real
// transactions; standalone servers fall back to sequential writes, with
// preconditions checked before any write is issued.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/txn"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ErrNotReady is returned when an operation's context ends before the
// initial connection has been established.
var ErrNotReady = errors.New("mongostore: connection not ready")

// Config controls how Open connects.
type Config struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	// MaxElapsed bounds the total time spent retrying the initial connection.
	// Zero means one minute.
	MaxElapsed time.Duration
}

// Store implements docstore.Backend on a MongoDB database.
type Store struct {
	log   *zap.Logger
	ready chan struct{}

	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
	err    error
}

// Open returns immediately and connects in the background, retrying with
// exponential backoff. Operations block until the connection is ready or
// their context ends. Use Ready to wait explicitly.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{log: logger, ready: make(chan struct{})}
	go s.connect(ctx, cfg)
	return s
}

// New wraps an already connected database.
func New(db *mongo.Database, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{log: logger, ready: make(chan struct{}), client: db.Client(), db: db}
	close(s.ready)
	return s
}

func (s *Store) connect(ctx context.Context, cfg Config) {
	defer close(s.ready)

	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = time.Minute
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	attempt := 0
	client, err := backoff.Retry(ctx, func() (*mongo.Client, error) {
		attempt++
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return nil, err
		}
		return c, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("mongo connect failed; retrying",
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = fmt.Errorf("mongostore: connect: %w", err)
		s.log.Error("mongo connect gave up", zap.Int("attempts", attempt), zap.Error(err))
		return
	}
	s.client = client
	s.db = client.Database(cfg.Database)
	s.log.Info("mongo connected",
		zap.String("database", cfg.Database),
		zap.Int("attempts", attempt))
}

// Ready is closed once the initial connection attempt has finished,
// successfully or not.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Database waits for the connection and returns the database handle.
func (s *Store) Database(ctx context.Context) (*mongo.Database, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.db, nil
}

// Close disconnects the client once connected.
func (s *Store) Close(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (s *Store) coll(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := s.Database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

// Get implements docstore.Backend.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	c, err := s.coll(ctx, collection)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := c.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, docstore.ErrNotFound
		}
		return nil, err
	}
	return fromBSON(raw), nil
}

// Find implements docstore.Backend.
func (s *Store) Find(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	c, err := s.coll(ctx, collection)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: field(q.OrderBy), Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := c.Find(ctx, filter(q.Where), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []docstore.Doc
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	return out, cur.Err()
}

// Insert implements docstore.Backend.
func (s *Store) Insert(ctx context.Context, collection string, data docstore.Doc) (docstore.Doc, error) {
	c, err := s.coll(ctx, collection)
	if err != nil {
		return nil, err
	}
	id := data.ID()
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	doc := toBSON(data, now)
	doc["_id"] = id
	if _, err := c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
		}
		return nil, err
	}
	return fromBSON(doc), nil
}

// Patch implements docstore.Backend.
func (s *Store) Patch(ctx context.Context, collection, id string, data docstore.Doc) error {
	c, err := s.coll(ctx, collection)
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx, bson.M{"_id": id}, update(data))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Remove implements docstore.Backend.
func (s *Store) Remove(ctx context.Context, collection, id string) error {
	c, err := s.coll(ctx, collection)
	if err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Commit implements docstore.Backend.
func (s *Store) Commit(ctx context.Context, writes []docstore.Write) error {
	db, err := s.Database(ctx)
	if err != nil {
		return err
	}
	return txn.Run(ctx, db, s.log, func(ctx context.Context) error {
		// Preconditions first so the non-transactional fallback never writes
		// a partial batch because of a failed check.
		for i, w := range writes {
			if w.Kind != docstore.WriteRequire {
				continue
			}
			f := filter(w.Where)
			f["_id"] = w.ID
			err := db.Collection(w.Collection).FindOne(ctx, f).Err()
			if errors.Is(err, mongo.ErrNoDocuments) {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.ID, docstore.ErrPreconditionFailed)
			}
			if err != nil {
				return err
			}
		}
		for i, w := range writes {
			if err := apply(ctx, db, w); err != nil {
				return fmt.Errorf("write %d (%s %s/%s): %w", i, w.Kind, w.Collection, w.ID, err)
			}
		}
		return nil
	})
}

func apply(ctx context.Context, db *mongo.Database, w docstore.Write) error {
	c := db.Collection(w.Collection)
	switch w.Kind {
	case docstore.WriteSet:
		doc := toBSON(w.Data, time.Now().UTC())
		doc["_id"] = w.ID
		_, err := c.ReplaceOne(ctx, bson.M{"_id": w.ID}, doc, options.Replace().SetUpsert(true))
		return err
	case docstore.WriteUpdate:
		res, err := c.UpdateOne(ctx, bson.M{"_id": w.ID}, update(w.Data))
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return docstore.ErrNotFound
		}
		return nil
	case docstore.WriteDelete:
		_, err := c.DeleteOne(ctx, bson.M{"_id": w.ID})
		return err
	case docstore.WriteRequire:
		return nil
	}
	return docstore.ErrInvalidWrite
}

// Ping implements docstore.Backend.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.Database(ctx)
	if err != nil {
		return err
	}
	return db.Client().Ping(ctx, nil)
}

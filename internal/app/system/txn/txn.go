// Package txn runs multi-collection MongoDB writes inside a transaction and
// falls back to sequential execution on deployments without transaction
// support (standalone servers, some emulators).
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a transaction. If the server rejects transactions,
// fn is run once more without one and a warning is logged. The ctx passed to
// fn carries the session when a transaction is active, so every collection
// call inside fn must use it.
func Run(ctx context.Context, db *mongo.Database, logger *zap.Logger, fn func(ctx context.Context) error) error {
	return run(ctx, logger, func(ctx context.Context, fn func(context.Context) error) error {
		sess, err := db.Client().StartSession()
		if err != nil {
			return err
		}
		defer sess.EndSession(ctx)
		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
			return nil, fn(sc)
		})
		return err
	}, fn)
}

// inTxn runs fn inside a transaction.
type inTxn func(ctx context.Context, fn func(context.Context) error) error

func run(ctx context.Context, logger *zap.Logger, txn inTxn, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	err := txn(ctx, fn)
	if err != nil && IsNotSupported(err) {
		logger.Warn("transactions unavailable; running without", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// IsNotSupported reports whether err means the deployment cannot run
// multi-document transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	s := strings.ToLower(err.Error())
	hasTxn := strings.Contains(s, "transaction")
	switch {
	case hasTxn && strings.Contains(s, "replica set"):
		return true
	case strings.Contains(s, "session") && strings.Contains(s, "not supported"):
		return true
	case hasTxn && strings.Contains(s, "session"):
		return true
	case strings.Contains(s, "illegal operation"):
		return true
	}
	return false
}

// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore/memstore"
	"github.com/dalemusser/licensehub/internal/app/system/docstore/mongostore"
	"github.com/dalemusser/licensehub/internal/app/system/indexes"
	"github.com/dalemusser/licensehub/internal/app/system/timeouts"
	"github.com/dalemusser/licensehub/internal/app/system/validators"
	"github.com/dalemusser/licensehub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// ConnectDB opens the document store and the cache.
//
// MongoDB connects in the background with retries; operations wait for it.
// Redis is verified before startup continues.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	var deps DBDeps

	switch appCfg.StoreBackend {
	case backendMemory:
		deps.Store = memstore.New()
		logger.Info("using in-memory document store")
	default:
		deps.Mongo = mongostore.Open(context.WithoutCancel(ctx), mongostore.Config{
			URI:            appCfg.MongoURI,
			Database:       appCfg.MongoDatabase,
			MaxPoolSize:    appCfg.MongoMaxPoolSize,
			MinPoolSize:    appCfg.MongoMinPoolSize,
			ConnectTimeout: timeouts.Medium(),
		}, logger)
		deps.Store = deps.Mongo
	}

	switch appCfg.CacheBackend {
	case backendRedis:
		rc, err := cache.NewRedis(ctx, appCfg.RedisURL, "licensehub", logger)
		if err != nil {
			return deps, fmt.Errorf("redis cache: %w", err)
		}
		deps.Redis = rc
		deps.Cache = rc
		logger.Info("using redis cache")
	default:
		mem := cache.NewMemory(logger)
		deps.Cache = mem
		deps.Sweeper = workers.NewCacheSweeper(mem, logger, sweepInterval(appCfg))
	}

	return deps, nil
}

// EnsureSchema creates the MongoDB collections, validators and indexes.
// The memory store needs none.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Mongo == nil {
		return nil
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "ensure schema")
	defer cancel()
	db, err := deps.Mongo.Database(ctx)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := validators.EnsureAll(ctx, db, logger); err != nil {
		logger.Error("collection validators failed", zap.Error(err))
		return fmt.Errorf("ensure validators: %w", err)
	}
	if err := indexes.EnsureAll(ctx, db, logger); err != nil {
		logger.Error("index setup failed", zap.Error(err))
		return fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("indexes ensured", zap.String("database", appCfg.MongoDatabase))
	return nil
}

// sweepInterval is the shorter of the two cache TTLs, at least one minute.
func sweepInterval(appCfg AppConfig) time.Duration {
	d := appCfg.CacheTTL
	if appCfg.OrgContextTTL > 0 && (d <= 0 || appCfg.OrgContextTTL < d) {
		d = appCfg.OrgContextTTL
	}
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

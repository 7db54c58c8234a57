// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/app/system/docstore/mongostore"
	"github.com/dalemusser/licensehub/internal/app/system/workers"
)

// DBDeps holds the backends shared by every request.
type DBDeps struct {
	// Store is the document store every component reads and writes.
	Store docstore.Backend
	// Mongo is set when Store is MongoDB; schema setup and shutdown use it.
	Mongo *mongostore.Store

	Cache cache.Cache
	// Redis is set when Cache is the shared Redis cache.
	Redis *cache.Redis
	// Sweeper evicts expired entries from the in-process cache. Nil with Redis.
	Sweeper *workers.CacheSweeper
}

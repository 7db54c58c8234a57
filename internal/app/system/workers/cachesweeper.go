// internal/app/system/workers/cachesweeper.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner drops expired cache entries and reports how many it removed.
type Pruner interface {
	Prune(ctx context.Context) int
}

// CacheSweeper is a background worker that evicts expired entries from the
// in-process cache. Expired entries are otherwise only removed when read.
type CacheSweeper struct {
	cache    Pruner
	log      *zap.Logger
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewCacheSweeper creates a sweeper that prunes c every interval.
func NewCacheSweeper(c Pruner, logger *zap.Logger, interval time.Duration) *CacheSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheSweeper{
		cache:    c,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop. Calling it more than once is a no-op.
func (w *CacheSweeper) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
		w.log.Info("cache sweeper started", zap.Duration("interval", w.interval))
	})
}

// Stop signals the worker to stop and waits for it to finish.
func (w *CacheSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("cache sweeper stopped")
	})
}

func (w *CacheSweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep runs one prune pass and returns the number of entries removed.
func (w *CacheSweeper) Sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n := w.cache.Prune(ctx)
	if n > 0 {
		w.log.Debug("pruned expired cache entries", zap.Int("count", n))
	}
	return n
}

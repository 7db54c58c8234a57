// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/licensehub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time initialization after the backends are connected and
// before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("count", n))
	}
	if appCfg.IdentityReadyTimeout > 0 {
		cur := timeouts.Current()
		cur.IdentityReady = appCfg.IdentityReadyTimeout
		timeouts.Configure(cur)
	}

	if deps.Sweeper != nil {
		deps.Sweeper.Start()
	}

	mode := "direct"
	if appCfg.APIBaseURL != "" && !appCfg.WebOnlyMode {
		mode = "remote-first"
	}
	logger.Info("licensehub starting",
		zap.String("store_backend", appCfg.StoreBackend),
		zap.String("cache_backend", appCfg.CacheBackend),
		zap.String("data_path", mode),
		zap.Bool("conditional_assign", appCfg.ConditionalAssign),
		zap.Duration("cache_ttl", appCfg.CacheTTL),
		zap.Duration("org_context_ttl", appCfg.OrgContextTTL))
	return nil
}

// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	apifeature "github.com/dalemusser/licensehub/internal/app/features/api"
	healthfeature "github.com/dalemusser/licensehub/internal/app/features/health"
	"github.com/dalemusser/licensehub/internal/app/portal"
	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/ratelimit"
	"github.com/dalemusser/licensehub/internal/app/system/remote"
	"github.com/dalemusser/licensehub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. licensehub assembles the portal over the
// shared store and cache, loads each request's identity from its session
// cookie or service token, and mounts health, metrics and the JSON API.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	sessionMgr.WithServiceToken(appCfg.APIToken)

	p, err := portal.New(deps.Store, deps.Cache, portal.Config{
		Remote: remote.Options{
			IsWebOnlyMode: appCfg.WebOnlyMode,
			APIBaseURL:    appCfg.APIBaseURL,
		},
		APIToken:             appCfg.APIToken,
		CacheTTL:             appCfg.CacheTTL,
		OrgContextTTL:        appCfg.OrgContextTTL,
		IdentityReadyTimeout: timeouts.IdentityReady(),
		OrgOverrides:         appCfg.OrgOverrides,
		ConditionalAssign:    appCfg.ConditionalAssign,
		AvatarBaseURL:        appCfg.AvatarBaseURL,
		AuditMode:            appCfg.AuditLog,
	}, logger)
	if err != nil {
		logger.Error("portal init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Global auth middleware: attaches the request's identity provider.
	r.Use(sessionMgr.LoadIdentity)

	// Health check endpoint for load balancers and orchestrators
	var cachePing healthfeature.Pinger
	if deps.Redis != nil {
		cachePing = deps.Redis
	}
	healthHandler := healthfeature.NewHandler(deps.Store, cachePing, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.Handler())

	apiHandler := apifeature.NewHandler(p, logger)
	if appCfg.APIWriteLimit > 0 {
		apiHandler.WriteLimiter = ratelimit.New(appCfg.APIWriteLimit, time.Minute)
	}
	r.Mount("/api", apifeature.Routes(apiHandler))

	return r, nil
}

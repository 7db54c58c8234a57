package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/cache"
	"github.com/dalemusser/licensehub/internal/app/system/docstore"
	"github.com/dalemusser/licensehub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func memoryConfig() AppConfig {
	return AppConfig{
		StoreBackend:  backendMemory,
		CacheBackend:  backendMemory,
		CacheTTL:      time.Minute,
		OrgContextTTL: time.Minute,
		SessionKey:    "test-session-key-for-testing-only-0123",
		SessionName:   "licensehub-session",
		SessionMaxAge: time.Hour,
		APIToken:      "svc-token",
		AuditLog:      "off",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *AppConfig)
		core    *config.CoreConfig
		wantErr bool
	}{
		{"memory defaults", func(c *AppConfig) {}, nil, false},
		{"mongo ok", func(c *AppConfig) {
			c.StoreBackend = backendMongo
			c.MongoURI = "mongodb://localhost:27017"
			c.MongoDatabase = "licensehub"
		}, nil, false},
		{"mongo bad uri", func(c *AppConfig) {
			c.StoreBackend = backendMongo
			c.MongoURI = "postgres://nope"
			c.MongoDatabase = "licensehub"
		}, nil, true},
		{"unknown store", func(c *AppConfig) { c.StoreBackend = "sqlite" }, nil, true},
		{"redis without url", func(c *AppConfig) { c.CacheBackend = backendRedis }, nil, true},
		{"redis with url", func(c *AppConfig) {
			c.CacheBackend = backendRedis
			c.RedisURL = "redis://localhost:6379/0"
		}, nil, false},
		{"bad audit mode", func(c *AppConfig) { c.AuditLog = "loud" }, nil, true},
		{"bad overrides", func(c *AppConfig) { c.OrgOverrides = "no-equals-sign" }, nil, true},
		{"good overrides", func(c *AppConfig) { c.OrgOverrides = "a@example.com=org-1, b@example.com=org-2" }, nil, false},
		{"negative write limit", func(c *AppConfig) { c.APIWriteLimit = -1 }, nil, true},
		{"bad api url", func(c *AppConfig) { c.APIBaseURL = "ftp://api" }, nil, true},
		{"bad api url ignored in web-only mode", func(c *AppConfig) {
			c.APIBaseURL = "ftp://api"
			c.WebOnlyMode = true
		}, nil, false},
		{"default session key in prod", func(c *AppConfig) { c.SessionKey = defaultSessionKey }, &config.CoreConfig{Env: "prod"}, true},
		{"default session key in dev", func(c *AppConfig) { c.SessionKey = defaultSessionKey }, &config.CoreConfig{Env: "dev"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(tt.core, cfg, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectDB_Memory(t *testing.T) {
	ctx := context.Background()
	deps, err := ConnectDB(ctx, &config.CoreConfig{}, memoryConfig(), testLogger())
	require.NoError(t, err)
	assert.NotNil(t, deps.Store)
	assert.Nil(t, deps.Mongo)
	assert.IsType(t, &cache.Memory{}, deps.Cache)
	assert.NotNil(t, deps.Sweeper)

	assert.NoError(t, EnsureSchema(ctx, &config.CoreConfig{}, memoryConfig(), deps, testLogger()))
	assert.NoError(t, Startup(ctx, &config.CoreConfig{}, memoryConfig(), deps, testLogger()))
	assert.NoError(t, Shutdown(ctx, &config.CoreConfig{}, memoryConfig(), deps, testLogger()))
}

func TestConnectDB_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.CacheBackend = backendRedis
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	ctx := context.Background()
	deps, err := ConnectDB(ctx, &config.CoreConfig{}, cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, deps.Redis)
	assert.Nil(t, deps.Sweeper)

	deps.Cache.Set(ctx, "k", "v")
	var got string
	assert.True(t, deps.Cache.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)

	assert.NoError(t, Shutdown(ctx, &config.CoreConfig{}, cfg, deps, testLogger()))
}

func TestConnectDB_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := memoryConfig()
	cfg.CacheBackend = backendRedis
	cfg.RedisURL = "redis://" + addr + "/0"
	_, err := ConnectDB(context.Background(), &config.CoreConfig{}, cfg, testLogger())
	assert.Error(t, err)
}

func TestBuildHandler(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	deps, err := ConnectDB(ctx, &config.CoreConfig{}, cfg, testLogger())
	require.NoError(t, err)

	_, err = deps.Store.Insert(ctx, models.CollUsers, docstore.Doc{
		"id": "u1", "email": "u1@example.com", "name": "Una", "organizationId": "org-1",
	})
	require.NoError(t, err)

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	require.NoError(t, err)

	get := func(path string, authed bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authed {
			req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
			req.Header.Set(auth.HeaderUserID, "u1")
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health", false).Code)
	assert.Equal(t, http.StatusUnauthorized, get("/api/me", false).Code)

	rec := get("/api/me", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u1"`)

	rec = get("/metrics", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "licensehub_cache_requests_total"))
}

func TestBuildHandler_WriteLimit(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.APIWriteLimit = 1
	deps, err := ConnectDB(ctx, &config.CoreConfig{}, cfg, testLogger())
	require.NoError(t, err)

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, cfg, deps, testLogger())
	require.NoError(t, err)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/licenses/missing/unassign", nil)
		req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
		req.Header.Set(auth.HeaderUserID, "u1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNotFound, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestHooksName(t *testing.T) {
	assert.Equal(t, "licensehub", Hooks.Name)
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, 5*time.Minute, sweepInterval(AppConfig{CacheTTL: 5 * time.Minute, OrgContextTTL: 10 * time.Minute}))
	assert.Equal(t, 2*time.Minute, sweepInterval(AppConfig{CacheTTL: 5 * time.Minute, OrgContextTTL: 2 * time.Minute}))
	assert.Equal(t, time.Minute, sweepInterval(AppConfig{CacheTTL: time.Second}))
	assert.Equal(t, time.Minute, sweepInterval(AppConfig{}))
}

package testutil

import (
	"context"
	"net/http"

	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/go-chi/chi/v5"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithIdentity attaches a signed-in identity to the request context.
func WithIdentity(r *http.Request, uid, email string) *http.Request {
	p := identity.NewStatic(identity.Identity{UID: uid, Email: email})
	return r.WithContext(identity.NewContext(r.Context(), p))
}

// IdentityContext returns a background context carrying a signed-in identity.
func IdentityContext(uid, email string) context.Context {
	return identity.NewContext(context.Background(), identity.NewStatic(identity.Identity{UID: uid, Email: email}))
}

// Package auth turns an incoming request into an identity.Provider.
//
// Browsers are identified by a gorilla/sessions cookie. Service callers (the
// remote API client) present the shared service token as a bearer token and
// name the acting user in headers.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"
	userNameKey  = "user_name"

	// HeaderUserID and HeaderUserEmail name the acting user on service calls.
	HeaderUserID    = "X-Licensehub-User"
	HeaderUserEmail = "X-Licensehub-Email"
)

// SessionManager reads and writes the session cookie.
type SessionManager struct {
	store        *sessions.CookieStore
	name         string
	serviceToken string
	log          *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager. An empty
// sessionKey generates a random per-process key, which logs everyone out on
// restart and is only suitable for development.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		return nil, errors.New("session name is empty")
	}
	key := []byte(sessionKey)
	switch {
	case sessionKey == "":
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate session key failed")
		}
		logger.Warn("session key not configured; using an ephemeral key")
	case len(sessionKey) < 32:
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// WithServiceToken enables bearer authentication for service callers.
func (sm *SessionManager) WithServiceToken(token string) *SessionManager {
	sm.serviceToken = token
	return sm
}

// SignIn stores id in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, id identity.Identity) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && !isDecodeErr(err) {
		return fmt.Errorf("load session: %w", err)
	}
	sess.Values[userIDKey] = id.UID
	sess.Values[userEmailKey] = id.Email
	sess.Values[userNameKey] = id.DisplayName
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil && !isDecodeErr(err) {
		return fmt.Errorf("load session: %w", err)
	}
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// Identify returns the provider for r. It never fails; unauthenticated
// requests get an anonymous provider.
func (sm *SessionManager) Identify(r *http.Request) identity.Provider {
	if id, ok := sm.serviceIdentity(r); ok {
		return identity.NewStatic(id)
	}
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		// A stale cookie signed with a rotated key is not an error worth
		// more than a debug line.
		if isDecodeErr(err) {
			sm.log.Debug("session cookie rejected", zap.Error(err))
		} else {
			sm.log.Warn("session load failed", zap.Error(err))
		}
		return identity.Anonymous()
	}
	uid, _ := sess.Values[userIDKey].(string)
	if uid == "" {
		return identity.Anonymous()
	}
	email, _ := sess.Values[userEmailKey].(string)
	name, _ := sess.Values[userNameKey].(string)
	return identity.NewStatic(identity.Identity{UID: uid, Email: email, DisplayName: name})
}

func (sm *SessionManager) serviceIdentity(r *http.Request) (identity.Identity, bool) {
	if sm.serviceToken == "" {
		return identity.Identity{}, false
	}
	h := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found || subtle.ConstantTimeCompare([]byte(token), []byte(sm.serviceToken)) != 1 {
		return identity.Identity{}, false
	}
	uid := r.Header.Get(HeaderUserID)
	if uid == "" {
		return identity.Identity{}, false
	}
	return identity.Identity{UID: uid, Email: r.Header.Get(HeaderUserEmail)}, true
}

// LoadIdentity attaches the request's identity provider to its context.
func (sm *SessionManager) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := identity.NewContext(r.Context(), sm.Identify(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests without a signed-in identity with 401.
// It must run after LoadIdentity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := identity.FromContext(r.Context())
		if ok {
			if _, signedIn := p.Current(); signedIn {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})
}

func isDecodeErr(err error) bool {
	var scErr securecookie.Error
	return errors.As(err, &scErr) && scErr.IsDecode()
}

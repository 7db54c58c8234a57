// Package remote implements the try-remote-else-direct strategy. When a
// remote API base URL is configured and the process is not in web-only mode,
// operations first call the licensehub HTTP API and fall back to the direct
// store path when the API is unreachable or does not implement the call.
// Reads also fall back on server errors; mutations do not.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Options selects the data path.
type Options struct {
	// IsWebOnlyMode forces the direct store path.
	IsWebOnlyMode bool
	// APIBaseURL is the remote API root, e.g. "https://portal.example.com".
	APIBaseURL string
}

// PreferRemote reports whether operations should try the remote API first.
func (o Options) PreferRemote() bool {
	return !o.IsWebOnlyMode && o.APIBaseURL != ""
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("remote api: %d: %s", e.Code, e.Message)
}

// ShouldFallback reports whether err from a remote read means the direct
// path should be tried: transport failures, 5xx, and the statuses that mean
// the endpoint does not exist (404, 405). Other 4xx are real answers.
func ShouldFallback(err error) bool {
	se, ok := fallbackCandidate(err)
	if !ok {
		return false
	}
	if se == nil {
		return true
	}
	switch {
	case se.Code >= 500:
		return true
	case se.Code == http.StatusNotFound, se.Code == http.StatusMethodNotAllowed:
		return true
	}
	return false
}

// ShouldFallbackWrite is ShouldFallback for mutations. A 5xx or 404 may
// come after the server already changed data, so only transport failures
// and the statuses that prove nothing ran (405, 501) fall back.
func ShouldFallbackWrite(err error) bool {
	se, ok := fallbackCandidate(err)
	if !ok {
		return false
	}
	if se == nil {
		return true
	}
	return se.Code == http.StatusMethodNotAllowed || se.Code == http.StatusNotImplemented
}

// fallbackCandidate returns ok=false for errors that never fall back, and
// the StatusError when err carries one (nil for transport failures).
func fallbackCandidate(err error) (*StatusError, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, false
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return nil, true
	}
	return se, true
}

// Strategy chooses between the remote client and the direct path.
type Strategy struct {
	opts   Options
	client *Client
	log    *zap.Logger
}

// NewStrategy returns a strategy. A nil client always goes direct.
func NewStrategy(opts Options, client *Client, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{opts: opts, client: client, log: logger}
}

// Direct returns a strategy that never calls the remote API.
func Direct() *Strategy { return NewStrategy(Options{IsWebOnlyMode: true}, nil, nil) }

// PreferRemote reports whether the remote path is attempted.
func (s *Strategy) PreferRemote() bool {
	return s != nil && s.client != nil && s.opts.PreferRemote()
}

// Client returns the remote client, or nil.
func (s *Strategy) Client() *Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Do runs a read: remoteFn when the strategy prefers the remote API, falling
// back to directFn per ShouldFallback. Errors that must not fall back are
// returned.
func Do[T any](ctx context.Context, s *Strategy, op string, remoteFn func(context.Context, *Client) (T, error), directFn func(context.Context) (T, error)) (T, error) {
	return run(ctx, s, op, ShouldFallback, remoteFn, directFn)
}

// Mutate is Do for operations that change data; it falls back per
// ShouldFallbackWrite.
func Mutate[T any](ctx context.Context, s *Strategy, op string, remoteFn func(context.Context, *Client) (T, error), directFn func(context.Context) (T, error)) (T, error) {
	return run(ctx, s, op, ShouldFallbackWrite, remoteFn, directFn)
}

func run[T any](ctx context.Context, s *Strategy, op string, fallback func(error) bool, remoteFn func(context.Context, *Client) (T, error), directFn func(context.Context) (T, error)) (T, error) {
	if !s.PreferRemote() || remoteFn == nil || isDirectOnly(ctx) {
		return directFn(ctx)
	}
	v, err := remoteFn(ctx, s.client)
	if err == nil {
		metrics.RemoteCalls.WithLabelValues("ok").Inc()
		return v, nil
	}
	if !fallback(err) {
		metrics.RemoteCalls.WithLabelValues("error").Inc()
		var zero T
		return zero, err
	}
	metrics.RemoteCalls.WithLabelValues("fallback").Inc()
	s.log.Warn("remote api unavailable; using direct path",
		zap.String("op", op),
		zap.Error(err))
	return directFn(ctx)
}

type directKey struct{}

// DirectOnly marks ctx so that Do never calls the remote API. The HTTP API
// serves its requests this way, which keeps a server configured with its own
// base URL from calling itself.
func DirectOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, directKey{}, true)
}

func isDirectOnly(ctx context.Context) bool {
	v, _ := ctx.Value(directKey{}).(bool)
	return v
}

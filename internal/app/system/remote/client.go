package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/auth"
	"github.com/dalemusser/licensehub/internal/app/system/identity"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"
	"go.uber.org/zap"
)

// Client calls the licensehub HTTP API on behalf of the identity carried in
// each request's context.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

// NewClient builds a client for opts.APIBaseURL. GET responses are cached in
// memory and revalidated with ETags. A non-empty token is sent as a bearer
// token on every request.
func NewClient(opts Options, token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(opts.APIBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.APIBaseURL)
	}

	var rt http.RoundTripper = httpcache.NewTransport(httpcache.NewMemoryCache())
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   rt,
		}
	}
	return &Client{
		base: base,
		http: &http.Client{Transport: rt, Timeout: 30 * time.Second},
		log:  logger,
	}, nil
}

// Get decodes the JSON response of GET path into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Do sends a JSON request and decodes a JSON response into out (when out is
// non-nil). Non-2xx responses return *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p, ok := identity.FromContext(ctx); ok {
		if id, signedIn := p.Current(); signedIn {
			req.Header.Set(auth.HeaderUserID, id.UID)
			req.Header.Set(auth.HeaderUserEmail, id.Email)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

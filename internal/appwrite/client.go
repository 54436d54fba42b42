// Package appwrite is a small client for the document store's account,
// databases and realtime APIs.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
)

const (
	responseFormat        = "1.5.0"
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second
)

func defaultHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		// OAuth redirects are for browsers.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

// Client talks to one project. It is safe for concurrent use.
type Client struct {
	cfg  *config.Config
	http *http.Client

	mu    sync.RWMutex
	token string
	kind  string
}

// New builds a client for cfg. token may be nil.
func New(cfg *config.Config, token *auth.TokenInfo) *Client {
	c := &Client{
		cfg:  cfg,
		http: defaultHTTPClient(cfg.RequestTimeout),
	}
	if token != nil {
		c.SetToken(token.Token)
	}
	return c
}

// SetToken replaces the credential attached to later calls. An empty token
// makes the client anonymous.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.kind = ""
	if token != "" {
		c.kind = auth.KindOf(token)
	}
}

func (c *Client) credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.kind
}

// Config returns the coordinates this client was built with.
func (c *Client) Config() *config.Config { return c.cfg }

func (c *Client) url(path string, query url.Values) string {
	u := c.cfg.Endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("X-Appwrite-Project", c.cfg.Project)
	h.Set("X-Appwrite-Response-Format", responseFormat)
	token, kind := c.credentials()
	switch {
	case token == "":
	case kind == auth.KindJWT:
		h.Set("X-Appwrite-JWT", token)
	default:
		h.Set("X-Appwrite-Session", token)
	}
}

// do sends one request. A non-2xx response becomes an *APIError. out may be
// nil to discard the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, args any, out any) (http.Header, error) {
	var body io.Reader
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return nil, err
	}
	if args != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req.Header)

	r, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()
	slog.Debug("api call", "method", method, "path", path, "status", r.StatusCode)

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		apiErr := &APIError{Status: r.StatusCode}
		if jsonErr := json.Unmarshal(b, apiErr); jsonErr != nil || apiErr.Message == "" {
			// the response body is the error message
			apiErr.Message = strings.TrimSpace(string(b))
		}
		apiErr.Status = r.StatusCode
		return r.Header, apiErr
	}
	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return r.Header, fmt.Errorf("decode: %w", err)
		}
	}
	return r.Header, nil
}

package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
)

// Session is a created login session.
type Session struct {
	ID     string    `json:"$id"`
	UserID string    `json:"userId"`
	Secret string    `json:"secret"`
	Expire time.Time `json:"expire"`
}

// GetAccount returns the identity the current credentials belong to.
func (c *Client) GetAccount(ctx context.Context) (*model.Identity, error) {
	var id model.Identity
	if _, err := c.do(ctx, http.MethodGet, "/account", nil, nil, &id); err != nil {
		return nil, authFailure("get account", err)
	}
	if id.ID == "" {
		return nil, authFailure("get account", errors.New("empty account id"))
	}
	return &id, nil
}

// OAuth2TokenURL is where the browser must go to log in with provider.
// After consent the provider redirects to success with userId and secret
// query parameters, or to failure.
func (c *Client) OAuth2TokenURL(provider, success, failure string) (string, error) {
	if provider == "" {
		return "", authFailure("oauth2", errors.New("no provider"))
	}
	if _, err := url.ParseRequestURI(success); err != nil {
		return "", authFailure("oauth2", fmt.Errorf("success url: %w", err))
	}
	if failure == "" {
		failure = success
	}
	q := url.Values{}
	q.Set("project", c.cfg.Project)
	q.Set("success", success)
	q.Set("failure", failure)
	return c.url("/account/tokens/oauth2/"+url.PathEscape(provider), q), nil
}

// CreateSession exchanges a login token for a session. The session secret
// comes from the body when the server exposes it, otherwise from the
// fallback cookie header.
func (c *Client) CreateSession(ctx context.Context, userID, secret string) (*Session, error) {
	args := map[string]string{"userId": userID, "secret": secret}
	var s Session
	h, err := c.do(ctx, http.MethodPost, "/account/sessions/token", nil, args, &s)
	if err != nil {
		return nil, authFailure("create session", err)
	}
	if s.Secret == "" {
		s.Secret = c.sessionFromHeaders(h)
	}
	if s.Secret == "" {
		return nil, authFailure("create session", errors.New("server returned no session secret"))
	}
	return &s, nil
}

func (c *Client) sessionFromHeaders(h http.Header) string {
	name := "a_session_" + c.cfg.Project
	if raw := h.Get("X-Fallback-Cookies"); raw != "" {
		var cookies map[string]string
		if err := json.Unmarshal([]byte(raw), &cookies); err == nil && cookies[name] != "" {
			return cookies[name]
		}
	}
	resp := http.Response{Header: h}
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// DeleteSession ends a session; "current" ends the one in use.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = "current"
	}
	_, err := c.do(ctx, http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, nil, nil)
	return authFailure("delete session", err)
}

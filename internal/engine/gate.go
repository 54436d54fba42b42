package engine

import (
	"context"
	"log/slog"

	"github.com/Makepad-fr/tada/internal/model"
)

// Gate tracks who is signed in.
type Gate struct {
	provider IdentityProvider
	identity *model.Identity
}

// Authenticated reports whether an identity is established.
func (g *Gate) Authenticated() bool { return g.identity != nil }

// Identity is the signed-in account or nil.
func (g *Gate) Identity() *model.Identity { return g.identity }

// check asks the provider for the current session. Any failure is logged
// and reported as no identity.
func (g *Gate) check(ctx context.Context) *model.Identity {
	id, err := g.provider.GetAccount(ctx)
	if err != nil {
		slog.Info("not authenticated", "error", err)
		return nil
	}
	return id
}

// Login hands the user to the provider's redirect flow. open receives the
// URL to visit; control then leaves the client and the outcome is only
// seen by a later Establish. Failures are logged.
func (g *Gate) Login(provider, returnURL string, open func(string) error) {
	u, err := g.provider.OAuth2TokenURL(provider, returnURL, returnURL)
	if err != nil {
		slog.Error("login failed", "provider", provider, "error", err)
		return
	}
	if err := open(u); err != nil {
		slog.Error("login failed", "provider", provider, "error", err)
	}
}

func (g *Gate) set(id *model.Identity) { g.identity = id }
func (g *Gate) clear()                 { g.identity = nil }

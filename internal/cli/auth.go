package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/engine"
	"github.com/Makepad-fr/tada/internal/ui"
)

const defaultLoginWait = 3 * time.Minute

func (a *App) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in and out",
	}
	cmd.AddCommand(a.loginCmd(), a.logoutCmd(), a.statusCmd(), a.whoamiCmd())
	return cmd
}

func (a *App) loginCmd() *cobra.Command {
	var (
		provider string
		token    string
		wait     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through an OAuth provider, or store a token",
		Long: "Opens the provider's consent page and waits for it to redirect back " +
			"to a local callback. With --token, stores a session secret or JWT instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.validConfig(); err != nil {
				return err
			}
			if token != "" {
				return a.loginWithToken(cmd.Context(), token)
			}
			return a.loginWithProvider(cmd.Context(), provider, wait)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "google", "OAuth provider")
	cmd.Flags().StringVar(&token, "token", "", "session secret or JWT to store")
	cmd.Flags().DurationVar(&wait, "wait", defaultLoginWait, "how long to wait for the provider")
	return cmd
}

func (a *App) loginWithToken(ctx context.Context, token string) error {
	client := appwrite.New(a.cfg, &auth.TokenInfo{Token: token, Kind: auth.KindOf(token)})
	rctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	id, err := client.GetAccount(rctx)
	if err != nil {
		return failure(fmt.Errorf("token rejected: %w", err))
	}
	if err := a.store.Set(token, id.ID, nil); err != nil {
		return failure(fmt.Errorf("save token: %w", err))
	}
	ui.OK(a.Out, "logged in as "+displayName(id.Name, id.Email, id.ID))
	return nil
}

type callback struct {
	userID, secret string
}

// loginWithProvider runs the token flow: the provider redirects the browser
// to a loopback callback with a one-time secret, which is exchanged for a
// session.
func (a *App) loginWithProvider(ctx context.Context, provider string, wait time.Duration) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return failure(fmt.Errorf("callback listener: %w", err))
	}
	returnURL := fmt.Sprintf("http://%s/callback", ln.Addr())

	got := make(chan callback, 1)
	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cb := callback{userID: q.Get("userId"), secret: q.Get("secret")}
		if cb.userID == "" || cb.secret == "" {
			http.Error(w, "Login failed. You can close this tab.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Logged in. You can close this tab.")
		}
		select {
		case got <- cb:
		default:
		}
	})
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("callback server", "error", err)
		}
	}()
	defer srv.Close()

	ctrl, client, err := a.controller(ctx, false)
	if err != nil {
		return err
	}
	opened := false
	ctrl.Login(provider, returnURL, func(u string) error {
		opened = true
		fmt.Fprintln(a.Out, "Open this page to sign in:")
		fmt.Fprintln(a.Out, "  "+u)
		if a.OpenURL == nil {
			return nil
		}
		return a.OpenURL(u)
	})
	if !opened {
		return failuref("could not start login with %q", provider)
	}

	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	var cb callback
	select {
	case cb = <-got:
	case <-wctx.Done():
		return failuref("login: no answer from the provider: %w", wctx.Err())
	}
	if cb.secret == "" {
		return failuref("login was refused by the provider")
	}

	rctx, rcancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer rcancel()
	sess, err := client.CreateSession(rctx, cb.userID, cb.secret)
	if err != nil {
		return failure(err)
	}
	var expires *time.Time
	if !sess.Expire.IsZero() {
		expires = &sess.Expire
	}
	if err := a.store.Set(sess.Secret, cb.userID, expires); err != nil {
		return failure(fmt.Errorf("save session: %w", err))
	}

	ctrl, err = a.connect(ctx)
	if err != nil {
		return err
	}
	id := ctrl.Identity()
	ui.OK(a.Out, "logged in as "+displayName(id.Name, id.Email, id.ID))
	return nil
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.store.Get()
			if err != nil {
				return failure(err)
			}
			if tok == nil {
				ui.OK(a.Out, "not logged in")
				return nil
			}
			if tok.Source == "env" {
				ui.OK(a.Out, "token is provided by TADA_TOKEN env var (nothing to delete)")
				return nil
			}
			if err := a.endRemoteSession(cmd.Context()); err != nil {
				slog.Warn("remote logout failed", "error", err)
				fmt.Fprintln(a.Err, ui.Dim("server session not ended: "+err.Error()))
			}
			if err := a.store.Delete(); err != nil {
				return failure(fmt.Errorf("logout: %w", err))
			}
			ui.OK(a.Out, "logged out")
			return nil
		},
	}
}

// endRemoteSession deletes the server session behind the stored
// credentials. The local credentials go either way.
func (a *App) endRemoteSession(ctx context.Context) error {
	ctrl, _, err := a.controller(ctx, false)
	if err != nil {
		return err
	}
	engine.Drive(ctrl, ctrl.Init())
	if !ctrl.Authenticated() {
		return errors.New("session already invalid")
	}
	engine.Drive(ctrl, ctrl.Terminate())
	if n := ctrl.Notice(); n != nil {
		return n.Err
	}
	return nil
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credentials and whether the server accepts them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ti, err := a.store.Get()
			if err != nil {
				return failure(err)
			}
			if ti == nil {
				fmt.Fprintln(a.Out, ui.Dim("not logged in"))
				fmt.Fprintln(a.Out, "Run: tada auth login")
				return nil
			}
			fmt.Fprintf(a.Out, "source: %s\n", ti.Source)
			fmt.Fprintf(a.Out, "kind: %s\n", ti.Kind)
			if ti.UserID != "" {
				fmt.Fprintf(a.Out, "user: %s\n", ti.UserID)
			}
			if ti.ExpiresAt != nil {
				fmt.Fprintf(a.Out, "expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
			} else {
				fmt.Fprintln(a.Out, "expires: (unknown)")
			}
			fmt.Fprintln(a.Out, "env override: TADA_TOKEN")

			if a.cfg.Validate() != nil {
				fmt.Fprintln(a.Out, "server: (not configured)")
				return nil
			}
			client := appwrite.New(a.cfg, ti)
			rctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RequestTimeout)
			defer cancel()
			if id, err := client.GetAccount(rctx); err != nil {
				fmt.Fprintln(a.Out, "server: session rejected")
			} else {
				fmt.Fprintf(a.Out, "server: signed in as %s\n", displayName(id.Name, id.Email, id.ID))
			}
			return nil
		},
	}
}

func (a *App) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ti, err := a.store.Get()
			if err != nil {
				return failure(err)
			}
			if ti == nil {
				return usagef("%s", errNotLoggedIn)
			}
			if ti.Kind == auth.KindJWT {
				if claims, err := auth.Claims(ti.Token); err == nil {
					b, _ := json.MarshalIndent(claims, "", "  ")
					fmt.Fprintln(a.Out, "JWT payload:")
					fmt.Fprintln(a.Out, string(b))
				}
			}
			ctrl, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			id := ctrl.Identity()
			fmt.Fprintf(a.Out, "id: %s\n", id.ID)
			if id.Name != "" {
				fmt.Fprintf(a.Out, "name: %s\n", id.Name)
			}
			if id.Email != "" {
				fmt.Fprintf(a.Out, "email: %s\n", id.Email)
			}
			return nil
		},
	}
}

func displayName(name, email, id string) string {
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return email
	}
	return id
}

// openBrowser asks the desktop to open u.
func openBrowser(u string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}

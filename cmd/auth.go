package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/moodmusic/internal/server"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const loginTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow and stores the resulting account.
//
// Starts a local callback server, opens the browser for user authorization, exchanges the code for a
// token and resolves the account behind it.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	provider, err := r.Provider()
	if err != nil {
		return err
	}
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, provider, cmd.Duration("timeout"), !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	user, err := engine.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Logged in as %s (%s)", user.DisplayName, user.ID)
	r.writePlain("You can now run: moodmusic library refresh\n")
	return nil
}

// AuthStatus reports the stored account without contacting Spotify.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store()
	if err != nil {
		return err
	}

	user, err := store.Repos().Users.Current()
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: no stored login (run 'moodmusic auth login')", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, cmd.Bool("pretty"))
	}

	r.writePlain("✓ Logged in as %s (%s)\n", user.DisplayName, user.ID)
	if user.TokenExpiry != nil {
		r.writePlain("Token expires: %s\n", humanize.Time(*user.TokenExpiry))
	}
	if user.SyncedAt != nil {
		r.writePlain("Last synced:   %s\n", humanize.Time(*user.SyncedAt))
	} else {
		r.writePlain("Last synced:   never\n")
	}
	return nil
}

// doOAuth runs a temporary callback server until one authorization result arrives or timeout elapses.
func (r *Runner) doOAuth(ctx context.Context, auth server.Authorizer, timeout time.Duration, browser bool) (*oauth2.Token, error) {
	state := shared.GenerateID()
	handler := server.NewOAuthHandler(auth, state)

	router := server.NewRouter(r.logger, 0)
	server.Mount(router, handler)

	addr := r.config.Server.Addr()
	httpServer := &http.Server{Addr: addr, Handler: router}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	served := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", addr)
		served <- server.NewService(httpServer, 5*time.Second).Serve(ctx)
	}()

	authURL := auth.AuthURL(state)
	if browser {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			browser = false
		}
	}
	if !browser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}
	r.writePlain("→ Waiting for authorization (%v timeout)...\n", timeout)

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-served:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("callback server failed: %w", err)
		}
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrAuthFailed, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrAuthFailed, timeout)
	}

	cancel()
	if err := <-served; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("error shutting down callback server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

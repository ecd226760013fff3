package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/metrics"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/oauth2"
)

// RefreshResult summarizes a library refresh.
type RefreshResult struct {
	UserID    string    `json:"user_id"`
	Liked     int       `json:"liked"`
	Playlists int       `json:"playlists"`
	Changed   bool      `json:"changed"` // some playlist was discovered or has a new snapshot
	SyncedAt  time.Time `json:"synced_at"`
}

// Authenticate resolves the account behind a freshly exchanged token and stores both.
func (e *Engine) Authenticate(ctx context.Context, tok *oauth2.Token) (*models.User, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", shared.ErrAuthFailed)
	}

	remote, err := e.provider.Client(ctx, models.Credential{Token: tok}).CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve account: %w", shared.ErrAuthFailed, err)
	}

	user := &models.User{ID: remote.ID, DisplayName: remote.DisplayName}
	user.SetToken(tok)
	if err := e.store.InTx(ctx, func(r *repositories.Repos) error { return r.Users.Save(user) }); err != nil {
		return nil, err
	}

	e.logger.Info("authenticated", "user", user.ID, "name", user.DisplayName)
	return user, nil
}

// StoredCredential returns the credential of the most recently authenticated user.
func (e *Engine) StoredCredential() (models.Credential, error) {
	user, err := e.store.Repos().Users.Current()
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	cred := user.Credential()
	if err := cred.Validate(); err != nil {
		return models.Credential{}, err
	}
	return cred, nil
}

// RefreshLibrary pulls the user's liked tracks and followed playlists.
//
// Both listings are fetched concurrently. Liked flags are made to match the remote exactly, new playlists
// enter as untracked, and known playlists with a new snapshot are flagged as having pending updates.
func (e *Engine) RefreshLibrary(ctx context.Context, cred models.Credential, progress chan<- ProgressUpdate) (result *RefreshResult, err error) {
	defer func() {
		metrics.LibraryRefreshesTotal.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, fetchingUserUpdate())
	account, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}

	sendProgress(progress, fetchingLibraryUpdate())
	var (
		liked     []services.RemoteTrack
		playlists []services.RemotePlaylist
	)
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		tracks, err := client.SavedTracks(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch liked tracks: %w", err)
		}
		liked = tracks
		sendProgress(progress, fetchedLikedUpdate(len(tracks)))
		return nil
	})
	p.Go(func(ctx context.Context) error {
		pls, err := client.UserPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch playlists: %w", err)
		}
		playlists = pls
		sendProgress(progress, fetchedPlaylistsUpdate(len(pls)))
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sendProgress(progress, storingLibraryUpdate(len(liked), len(playlists)))

	state := &remoteState{tracks: liked}
	rows := make([]models.Playlist, len(playlists))
	for i, pl := range playlists {
		rows[i] = pl.Model()
	}

	result = &RefreshResult{UserID: account.ID, Liked: len(liked), Playlists: len(playlists), SyncedAt: time.Now().UTC()}
	err = e.store.InTx(ctx, func(r *repositories.Repos) error {
		if err := state.save(r); err != nil {
			return err
		}
		if err := r.Tracks.ReplaceLiked(state.ids()); err != nil {
			return err
		}
		changed, err := r.Playlists.Upsert(rows)
		if err != nil {
			return err
		}
		result.Changed = changed
		if err := saveAccount(r, account, cred); err != nil {
			return err
		}
		return r.Users.MarkSynced(account.ID, result.SyncedAt)
	})
	if err != nil {
		return nil, err
	}

	sendProgress(progress, storedLibraryUpdate(result))
	e.logger.Info("library refreshed", "user", account.ID, "liked", result.Liked, "playlists", result.Playlists, "changed", result.Changed)
	return result, nil
}

// saveAccount keeps the user row's display name current, creating it when the credential came from elsewhere.
func saveAccount(r *repositories.Repos, account *services.RemoteUser, cred models.Credential) error {
	user, err := r.Users.Get(account.ID)
	switch {
	case errors.Is(err, shared.ErrUserNotFound):
		user = &models.User{ID: account.ID}
		user.SetToken(cred.Token)
	case err != nil:
		return err
	case user.DisplayName == account.DisplayName:
		return nil
	}
	user.DisplayName = account.DisplayName
	return r.Users.Save(user)
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmusic/internal/metrics"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

const (
	defaultCommitRetries = 3
	defaultCommitBackoff = 50 * time.Millisecond
)

// EngineOpts tunes local commit retries.
type EngineOpts struct {
	CommitRetries int           // retries after the first failed commit; zero uses the default
	CommitBackoff time.Duration // initial retry interval; zero uses the default
}

// Engine coordinates remote playlist writes with local store transactions.
//
// Every operation validates against the store first, then talks to the remote service, then commits the
// local effect in one transaction. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	store    *repositories.Store
	provider services.ClientProvider
	logger   *log.Logger
	opts     EngineOpts
}

// PlaylistResult is a playlist after an operation together with the remote change it caused.
type PlaylistResult struct {
	Playlist *models.Playlist       `json:"playlist"`
	Changes  models.PlaylistChanges `json:"changes"`
}

// NewEngine creates an [Engine].
func NewEngine(store *repositories.Store, provider services.ClientProvider, logger *log.Logger, opts EngineOpts) *Engine {
	if opts.CommitRetries <= 0 {
		opts.CommitRetries = defaultCommitRetries
	}
	if opts.CommitBackoff <= 0 {
		opts.CommitBackoff = defaultCommitBackoff
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: store, provider: provider, logger: shared.WithLogger(logger, "component", "engine"), opts: opts}
}

// client validates the credential and binds it to a remote client.
func (e *Engine) client(ctx context.Context, cred models.Credential) (services.PlaylistClient, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if cred.OnRefresh == nil {
		cred.OnRefresh = e.tokenSaver(ctx, cred.UserID)
	}
	return e.provider.Client(ctx, cred), nil
}

// tokenSaver stores tokens refreshed on behalf of userID, so later calls start from the new token.
func (e *Engine) tokenSaver(ctx context.Context, userID string) func(*oauth2.Token) error {
	ctx = context.WithoutCancel(ctx)
	return func(tok *oauth2.Token) error {
		return e.store.InTx(ctx, func(r *repositories.Repos) error {
			user, err := r.Users.Get(userID)
			if err != nil {
				return err
			}
			user.SetToken(tok)
			return r.Users.Save(user)
		})
	}
}

// commit runs fn in a transaction after a remote write has succeeded.
//
// Failures are retried with exponential backoff. Validation and lookup errors are not retried.
// A commit that still fails leaves the remote ahead of the store and is reported as [shared.ErrLocalCommit].
func (e *Engine) commit(ctx context.Context, op string, fn func(*repositories.Repos) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.CommitBackoff

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := e.store.InTx(ctx, fn)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			e.logger.Warn("local commit failed", "op", op, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithMaxRetries(b, uint64(e.opts.CommitRetries)))
	if err == nil {
		return nil
	}

	metrics.LocalCommitFailuresTotal.WithLabelValues(op).Inc()
	e.logger.Error("remote write not recorded locally; playlist needs a sync", "op", op, "attempts", attempt, "error", err)
	return fmt.Errorf("%w: %s: %w", shared.ErrLocalCommit, op, err)
}

func permanent(err error) bool {
	return errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidInput) ||
		errors.Is(err, shared.ErrInvalidLabel)
}

// flagPending marks a playlist as diverged after a remote write stopped part way.
func (e *Engine) flagPending(ctx context.Context, op, playlistID string, cause error) {
	snapshot := ""
	var chunkErr *services.ChunkError
	if errors.As(cause, &chunkErr) {
		snapshot = chunkErr.SnapshotID
	}
	err := e.commit(ctx, op, func(r *repositories.Repos) error {
		return r.Playlists.Reconciled(playlistID, snapshot, true, false)
	})
	if err != nil {
		e.logger.Error("failed to flag playlist for sync", "playlist", playlistID, "error", err)
	}
}

// livePlaylist loads a playlist for an operation that cannot act on deleted playlists.
func (e *Engine) livePlaylist(id string) (*models.Playlist, error) {
	pl, err := e.store.Repos().Playlists.Get(id)
	if err != nil {
		return nil, err
	}
	if pl.Type == models.PlaylistDeleted {
		return nil, fmt.Errorf("%w: playlist %s is deleted; restore it first", shared.ErrInvalidTransition, id)
	}
	return pl, nil
}

// requireTracks fails with [shared.ErrTrackNotFound] when any id is unknown locally.
func requireTracks(r *repositories.Repos, ids []string) error {
	missing, err := r.Tracks.MissingIDs(ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", shared.ErrTrackNotFound, missing)
	}
	return nil
}

// boundLabel loads a label for a label playlist and checks no other playlist is bound to it.
func boundLabel(r *repositories.Repos, labelID int64, playlistID string) (*models.Label, error) {
	label, err := r.Labels.Get(labelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidLabel, err)
	}
	existing, err := r.Playlists.ByLabel(labelID)
	switch {
	case errors.Is(err, shared.ErrPlaylistNotFound):
		return label, nil
	case err != nil:
		return nil, err
	case existing.ID != playlistID:
		return nil, fmt.Errorf("%w: label %d is already bound to playlist %s", shared.ErrInvalidLabel, labelID, existing.ID)
	}
	return label, nil
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

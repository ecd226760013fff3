package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
)

// Playlists lists mirrored playlists, optionally filtered by type.
func (e *Engine) Playlists(types ...models.PlaylistType) ([]models.Playlist, error) {
	return e.store.Repos().Playlists.List(types...)
}

func (e *Engine) Playlist(id string) (*models.Playlist, error) {
	return e.store.Repos().Playlists.Get(id)
}

// PlaylistTracks returns a playlist's mirrored tracks in remote order.
func (e *Engine) PlaylistTracks(id string) ([]models.Track, error) {
	repos := e.store.Repos()
	if _, err := repos.Playlists.Get(id); err != nil {
		return nil, err
	}
	return repos.Tracks.ForPlaylist(id)
}

// Tracks lists the library, or only liked tracks.
func (e *Engine) Tracks(likedOnly bool) ([]models.Track, error) {
	return e.store.Repos().Tracks.List(likedOnly)
}

// CreatePlaylist creates a managed playlist remotely and records it locally.
//
// Label playlists default to the label's generated name and description and start with the label's tracks
// plus any explicit tracks, which are tagged with the label. If the tracks cannot all be pushed the
// playlist is still recorded, with the pushed prefix, flagged for sync.
func (e *Engine) CreatePlaylist(ctx context.Context, cred models.Credential, req models.NewPlaylist) (*PlaylistResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	repos := e.store.Repos()
	if err := requireTracks(repos, req.TrackIDs); err != nil {
		return nil, err
	}

	name, description := strings.TrimSpace(req.Name), req.Description
	tracks := shared.Unique(req.TrackIDs)
	if req.Type == models.PlaylistLabel {
		label, err := boundLabel(repos, *req.LabelID, "")
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = models.LabelPlaylistName(label)
		}
		if description == "" {
			description = models.LabelPlaylistDescription(label)
		}
		tagged, err := repos.Links.LabelTrackIDs(label.ID)
		if err != nil {
			return nil, err
		}
		tracks = shared.Unique(append(tagged, tracks...))
	}

	remote, err := client.CreatePlaylist(ctx, cred.UserID, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist %q: %w", name, err)
	}

	snapshot, added := remote.SnapshotID, tracks
	var pushErr error
	if len(tracks) > 0 {
		res, err := client.AddTracks(ctx, remote.ID, tracks)
		if err != nil {
			pushErr = err
			added, snapshot = appliedPrefix(tracks, err, snapshot)
		} else {
			snapshot = res.SnapshotID
		}
	}

	ownerID := remote.OwnerID
	if ownerID == "" {
		ownerID = cred.UserID
	}

	var out *models.Playlist
	err = e.commit(ctx, "create_playlist", func(r *repositories.Repos) error {
		pl := &models.Playlist{
			ID:          remote.ID,
			OwnerID:     ownerID,
			Name:        name,
			Description: description,
			SnapshotID:  snapshot,
			Type:        req.Type,
			LabelID:     req.LabelID,
		}
		if err := r.Playlists.Create(pl); err != nil {
			return err
		}
		if _, err := r.Links.AddPlaylistTracks(pl.ID, added); err != nil {
			return err
		}
		if req.LabelID != nil {
			if _, err := r.Links.AddLabelTracks(*req.LabelID, added); err != nil {
				return err
			}
		}
		if err := r.Playlists.Reconciled(pl.ID, "", pushErr != nil, true); err != nil {
			return err
		}
		out, err = r.Playlists.Get(pl.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pushErr != nil {
		return nil, fmt.Errorf("playlist %s created with %d of %d tracks: %w", remote.ID, len(added), len(tracks), pushErr)
	}

	e.logger.Info("playlist created", "playlist", out.ID, "type", out.Type, "tracks", len(added))
	return &PlaylistResult{
		Playlist: out,
		Changes:  models.PlaylistChanges{ID: out.ID, SnapshotID: snapshot, TrackCountDelta: len(added)},
	}, nil
}

// UpdatePlaylist applies a patch, driving the playlist type state machine.
//
//   - any → deleted unfollows (see [Engine.DeletePlaylist]); deleted → untracked follows again
//   - any → untracked drops the local associations
//   - any → label or mix pulls the remote body and removes duplicates; a label playlist then gains the
//     label's tracks it was missing and every member is tagged with the label
//   - name and description changes are sent to the remote service
//
// A deleted playlist accepts no other change until it is restored.
func (e *Engine) UpdatePlaylist(ctx context.Context, cred models.Credential, id string, patch models.PlaylistPatch) (*PlaylistResult, error) {
	repos := e.store.Repos()
	pl, err := repos.Playlists.Get(id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return &PlaylistResult{Playlist: pl, Changes: models.PlaylistChanges{ID: id, SnapshotID: pl.SnapshotID}}, nil
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown playlist type %q", shared.ErrInvalidInput, *patch.Type)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: playlist name must not be empty", shared.ErrInvalidInput)
	}

	target := *pl
	patch.Apply(&target)
	if patch.LabelID != nil && target.Type != models.PlaylistLabel {
		return nil, fmt.Errorf("%w: label_id is only valid for label playlists", shared.ErrInvalidLabel)
	}

	if pl.Type == models.PlaylistDeleted {
		switch {
		case target.Type == models.PlaylistDeleted && !patch.Details():
			return e.DeletePlaylist(ctx, cred, id)
		case target.Type == models.PlaylistUntracked:
			res, err := e.RestorePlaylist(ctx, cred, id)
			if err != nil || !patch.Details() {
				return res, err
			}
			return e.UpdatePlaylist(ctx, cred, id, models.PlaylistPatch{Name: patch.Name, Description: patch.Description})
		default:
			return nil, fmt.Errorf("%w: playlist %s is deleted; restore it first", shared.ErrInvalidTransition, id)
		}
	}
	if target.Type == models.PlaylistDeleted {
		return e.DeletePlaylist(ctx, cred, id)
	}

	var (
		label  *models.Label
		tagged []string
	)
	if target.Type == models.PlaylistLabel {
		if target.LabelID == nil {
			return nil, fmt.Errorf("%w: label playlists require a label", shared.ErrInvalidLabel)
		}
		if label, err = boundLabel(repos, *target.LabelID, id); err != nil {
			return nil, err
		}
		if tagged, err = repos.Links.LabelTrackIDs(label.ID); err != nil {
			return nil, err
		}
	}
	adopt := target.Type.Managed() && (pl.Type != target.Type || !sameLabel(pl.LabelID, target.LabelID))

	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	changes := models.PlaylistChanges{ID: id, SnapshotID: pl.SnapshotID}
	if patch.Details() {
		var name *string
		if patch.Name != nil {
			name = &target.Name
		}
		if err := client.UpdateDetails(ctx, id, name, patch.Description); err != nil {
			return nil, fmt.Errorf("failed to update details of playlist %s: %w", id, err)
		}
	}

	var (
		state   *remoteState
		pushed  []string
		pushErr error
	)
	if adopt {
		if state, err = e.pull(ctx, client, id, true); err != nil {
			return nil, err
		}
		changes = changes.Merge(state.changes)

		if missing := shared.Difference(tagged, state.ids()); len(missing) > 0 {
			res, err := client.AddTracks(ctx, id, missing)
			if err != nil {
				pushErr = err
				pushed, res.SnapshotID = appliedPrefix(missing, err, "")
			} else {
				pushed = missing
			}
			changes = changes.Merge(models.PlaylistChanges{SnapshotID: res.SnapshotID, TrackCountDelta: len(pushed)})
		}
	}

	var out *models.Playlist
	err = e.commit(ctx, "update_playlist", func(r *repositories.Repos) error {
		current := target
		if current.Type == models.PlaylistUntracked && pl.Type != models.PlaylistUntracked {
			if err := r.Links.ClearPlaylist(id); err != nil {
				return err
			}
		}

		if pl.Type == models.PlaylistLabel && current.Type == models.PlaylistLabel && !sameLabel(pl.LabelID, current.LabelID) {
			// The old label's tags described the playlist it no longer owns.
			old, err := r.Links.LabelTrackIDs(*pl.LabelID)
			if err != nil {
				return err
			}
			if _, err := r.Links.RemoveLabelTracks(*pl.LabelID, old); err != nil {
				return err
			}
		}

		if adopt {
			if err := state.save(r); err != nil {
				return err
			}
			members := append(state.ids(), pushed...)
			if err := r.Links.SetPlaylistTracks(id, members); err != nil {
				return err
			}
			if label != nil {
				if _, err := r.Links.AddLabelTracks(label.ID, members); err != nil {
					return err
				}
			}
			count, err := r.Links.CountPlaylistTracks(id)
			if err != nil {
				return err
			}
			current.TrackCount = count
			current.Updates = pushErr != nil
		}

		current.SnapshotID = changes.SnapshotID
		if err := r.Playlists.Update(&current); err != nil {
			return err
		}
		out = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pushErr != nil {
		return nil, fmt.Errorf("playlist %s is missing label tracks: %w", id, pushErr)
	}

	if pl.Type != out.Type {
		e.logger.Info("playlist type changed", "playlist", id, "from", pl.Type, "to", out.Type, "delta", changes.TrackCountDelta)
	}
	return &PlaylistResult{Playlist: out, Changes: changes}, nil
}

// DeletePlaylist unfollows a playlist and marks it deleted, dropping its associations. Deleting a deleted
// playlist only re-confirms the remote follow state.
func (e *Engine) DeletePlaylist(ctx context.Context, cred models.Credential, id string) (*PlaylistResult, error) {
	pl, err := e.store.Repos().Playlists.Get(id)
	if err != nil {
		return nil, err
	}
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	if err := client.SetFollowState(ctx, id, false); err != nil {
		return nil, fmt.Errorf("failed to unfollow playlist %s: %w", id, err)
	}

	var out *models.Playlist
	err = e.commit(ctx, "delete_playlist", func(r *repositories.Repos) error {
		current, err := r.Playlists.Get(id)
		if err != nil {
			return err
		}
		if current.Type == models.PlaylistDeleted {
			out = current
			return nil
		}
		if err := r.Links.ClearPlaylist(id); err != nil {
			return err
		}
		current.Type = models.PlaylistDeleted
		current.LabelID = nil
		current.TrackCount = 0
		current.Updates = false
		if err := r.Playlists.Update(current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PlaylistResult{Playlist: out, Changes: models.PlaylistChanges{ID: id, SnapshotID: pl.SnapshotID}}, nil
}

// RestorePlaylist follows a deleted playlist again and marks it untracked. Restoring an untracked playlist
// only re-confirms the remote follow state.
func (e *Engine) RestorePlaylist(ctx context.Context, cred models.Credential, id string) (*PlaylistResult, error) {
	pl, err := e.store.Repos().Playlists.Get(id)
	if err != nil {
		return nil, err
	}
	if pl.Type != models.PlaylistDeleted && pl.Type != models.PlaylistUntracked {
		return nil, fmt.Errorf("%w: cannot restore %s playlist %s", shared.ErrInvalidTransition, pl.Type, id)
	}
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	if err := client.SetFollowState(ctx, id, true); err != nil {
		return nil, fmt.Errorf("failed to follow playlist %s: %w", id, err)
	}

	var out *models.Playlist
	err = e.commit(ctx, "restore_playlist", func(r *repositories.Repos) error {
		current, err := r.Playlists.Get(id)
		if err != nil {
			return err
		}
		if current.Type == models.PlaylistDeleted {
			current.Type = models.PlaylistUntracked
			if err := r.Playlists.Update(current); err != nil {
				return err
			}
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &PlaylistResult{Playlist: out, Changes: models.PlaylistChanges{ID: id, SnapshotID: pl.SnapshotID}}, nil
}

func sameLabel(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// appliedPrefix returns the leading ids a failed chunked write managed to apply, and the snapshot of the
// last applied chunk, falling back to snapshot.
func appliedPrefix(ids []string, err error, snapshot string) ([]string, string) {
	var chunkErr *services.ChunkError
	if !errors.As(err, &chunkErr) {
		return nil, snapshot
	}
	n := chunkErr.Items
	if n < 0 {
		n = -n
	}
	n = min(n, len(ids))
	if chunkErr.SnapshotID != "" {
		snapshot = chunkErr.SnapshotID
	}
	return ids[:n], snapshot
}

package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/moodmusic/internal/metrics"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
)

// remoteState is a playlist as read from the remote service, after any duplicate removal.
type remoteState struct {
	meta    *services.RemotePlaylist
	tracks  []services.RemoteTrack
	changes models.PlaylistChanges
}

func (s *remoteState) ids() []string {
	ids := make([]string, len(s.tracks))
	for i, t := range s.tracks {
		ids[i] = t.ID
	}
	return shared.Unique(ids)
}

// save stores the pulled tracks and their albums.
func (s *remoteState) save(r *repositories.Repos) error {
	albums := make([]models.Album, 0, len(s.tracks))
	tracks := make([]models.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if a := t.AlbumModel(); a != nil {
			albums = append(albums, *a)
		}
		tracks = append(tracks, t.Model())
	}
	if err := r.Albums.Upsert(albums); err != nil {
		return err
	}
	return r.Tracks.Upsert(tracks)
}

// pull reads a playlist's remote body. With dedupe set, repeated occurrences are removed remotely first,
// presenting the snapshot that came with the listing.
func (e *Engine) pull(ctx context.Context, client services.PlaylistClient, id string, dedupe bool) (*remoteState, error) {
	meta, tracks, err := client.PlaylistTracks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist %s: %w", id, err)
	}

	state := &remoteState{
		meta:    meta,
		tracks:  tracks,
		changes: models.PlaylistChanges{ID: id, SnapshotID: meta.SnapshotID},
	}
	if !dedupe {
		return state, nil
	}

	dups := FindDuplicates(tracks)
	if dups.Empty() {
		return state, nil
	}

	res, err := client.RemovePositions(ctx, id, dups.Batches(services.MaxBatchSize), meta.SnapshotID)
	if err != nil {
		e.flagPending(ctx, "dedupe", id, err)
		return nil, fmt.Errorf("failed to remove duplicates from playlist %s: %w", id, err)
	}

	e.logger.Info("removed duplicates", "playlist", id, "tracks", len(dups.IDs), "removed", dups.RemovedCount)
	metrics.DuplicatesRemovedTotal.Add(float64(dups.RemovedCount))

	state.tracks = Distinct(tracks)
	state.changes = state.changes.Merge(models.PlaylistChanges{SnapshotID: res.SnapshotID, TrackCountDelta: -dups.RemovedCount})
	return state, nil
}

// SyncPlaylist pulls a playlist's remote body into the store.
//
// Managed playlists are deduplicated remotely first. Associations are mirrored exactly, label playlists
// re-tag their members (and untag tracks that left), and the pending-updates flag is cleared.
func (e *Engine) SyncPlaylist(ctx context.Context, cred models.Credential, id string) (*PlaylistResult, error) {
	return e.sync(ctx, cred, id, "sync_playlist", false)
}

// RemoveDuplicates removes repeated tracks from any live playlist, then mirrors it like [Engine.SyncPlaylist].
func (e *Engine) RemoveDuplicates(ctx context.Context, cred models.Credential, id string) (*PlaylistResult, error) {
	return e.sync(ctx, cred, id, "remove_duplicates", true)
}

func (e *Engine) sync(ctx context.Context, cred models.Credential, id, op string, dedupe bool) (*PlaylistResult, error) {
	pl, err := e.livePlaylist(id)
	if err != nil {
		return nil, err
	}
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	state, err := e.pull(ctx, client, id, dedupe || pl.Type.Managed())
	if err != nil {
		return nil, err
	}

	var out *models.Playlist
	err = e.commit(ctx, op, func(r *repositories.Repos) error {
		if err := state.save(r); err != nil {
			return err
		}
		ids := state.ids()
		if err := r.Links.SetPlaylistTracks(id, ids); err != nil {
			return err
		}

		current, err := r.Playlists.Get(id)
		if err != nil {
			return err
		}
		if current.Type == models.PlaylistLabel {
			if err := retag(r, *current.LabelID, ids); err != nil {
				return err
			}
		}

		count, err := r.Links.CountPlaylistTracks(id)
		if err != nil {
			return err
		}
		current.Name = state.meta.Name
		current.Description = state.meta.Description
		current.SnapshotID = state.changes.SnapshotID
		current.TrackCount = count
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

	e.logger.Debug("playlist synced", "playlist", id, "tracks", out.TrackCount, "snapshot", out.SnapshotID)
	return &PlaylistResult{Playlist: out, Changes: state.changes}, nil
}

// retag makes a label's track set equal the given members.
func retag(r *repositories.Repos, labelID int64, members []string) error {
	tagged, err := r.Links.LabelTrackIDs(labelID)
	if err != nil {
		return err
	}
	if _, err := r.Links.RemoveLabelTracks(labelID, shared.Difference(tagged, members)); err != nil {
		return err
	}
	_, err = r.Links.AddLabelTracks(labelID, members)
	return err
}

// RevertPlaylist overwrites a managed playlist's remote body with the local ordered membership.
func (e *Engine) RevertPlaylist(ctx context.Context, cred models.Credential, id string) (*PlaylistResult, error) {
	pl, err := e.livePlaylist(id)
	if err != nil {
		return nil, err
	}
	if !pl.Type.Managed() {
		return nil, fmt.Errorf("%w: only label and mix playlists can be reverted, %s is %s", shared.ErrInvalidTransition, id, pl.Type)
	}
	ids, err := e.store.Repos().Links.PlaylistTrackIDs(id)
	if err != nil {
		return nil, err
	}
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	res, err := client.ReplaceTracks(ctx, id, ids)
	if err != nil {
		e.flagPending(ctx, "revert_playlist", id, err)
		return nil, fmt.Errorf("failed to revert playlist %s: %w", id, err)
	}

	var out *models.Playlist
	err = e.commit(ctx, "revert_playlist", func(r *repositories.Repos) error {
		if err := r.Playlists.Reconciled(id, res.SnapshotID, false, true); err != nil {
			return err
		}
		out, err = r.Playlists.Get(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &PlaylistResult{Playlist: out, Changes: models.PlaylistChanges{ID: id, SnapshotID: res.SnapshotID}}, nil
}

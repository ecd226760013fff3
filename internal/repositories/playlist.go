package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/jmoiron/sqlx"
)

const playlistColumns = "id, owner_id, name, description, track_count, snapshot_id, updates, type, label_id, added_at"

// PlaylistRepository persists [models.Playlist] rows.
type PlaylistRepository struct {
	q sqlx.Ext
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	return r.getOne("SELECT "+playlistColumns+" FROM playlists WHERE id = ?", id)
}

// ByLabel retrieves the playlist bound to a label.
func (r *PlaylistRepository) ByLabel(labelID int64) (*models.Playlist, error) {
	return r.getOne("SELECT "+playlistColumns+" FROM playlists WHERE label_id = ?", labelID)
}

func (r *PlaylistRepository) getOne(query string, arg any) (*models.Playlist, error) {
	var playlist models.Playlist
	err := sqlx.Get(r.q, &playlist, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", shared.ErrPlaylistNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return &playlist, nil
}

// List returns playlists, optionally restricted to the given types, ordered by name.
func (r *PlaylistRepository) List(types ...models.PlaylistType) ([]models.Playlist, error) {
	var playlists []models.Playlist
	if len(types) == 0 {
		err := sqlx.Select(r.q, &playlists, "SELECT "+playlistColumns+" FROM playlists ORDER BY name COLLATE NOCASE, id")
		if err != nil {
			return nil, fmt.Errorf("failed to query playlists: %w", err)
		}
		return playlists, nil
	}

	query, args, err := in(r.q, "SELECT "+playlistColumns+" FROM playlists WHERE type IN (?) ORDER BY name COLLATE NOCASE, id", types)
	if err != nil {
		return nil, err
	}
	if err := sqlx.Select(r.q, &playlists, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	return playlists, nil
}

// Create inserts a new playlist row.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if playlist.AddedAt.IsZero() {
		playlist.AddedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO playlists (` + playlistColumns + `)
		VALUES (:id, :owner_id, :name, :description, :track_count, :snapshot_id, :updates, :type, :label_id, :added_at)
	`
	if _, err := sqlx.NamedExec(r.q, query, playlist); err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// Update writes every mutable field of playlist.
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE playlists
		SET name = :name, description = :description, track_count = :track_count, snapshot_id = :snapshot_id,
			updates = :updates, type = :type, label_id = :label_id
		WHERE id = :id
	`
	res, err := sqlx.NamedExec(r.q, query, playlist)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlist.ID)
	}
	return nil
}

// Upsert inserts remotely discovered playlists or refreshes existing rows.
//
// Existing rows only change when the incoming snapshot differs from the stored one; such rows are
// flagged with pending updates. Managed playlists keep their locally derived track count.
// Reports whether any row was inserted or changed.
func (r *PlaylistRepository) Upsert(playlists []models.Playlist) (bool, error) {
	query := `
		INSERT INTO playlists (` + playlistColumns + `)
		VALUES (:id, :owner_id, :name, :description, :track_count, :snapshot_id, :updates, :type, :label_id, :added_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			snapshot_id = excluded.snapshot_id,
			track_count = CASE
				WHEN playlists.type IN ('label', 'mix') THEN playlists.track_count
				ELSE excluded.track_count
			END,
			updates = 1
		WHERE playlists.snapshot_id <> excluded.snapshot_id
	`

	now := time.Now().UTC()
	changed := false
	for i := range playlists {
		pl := playlists[i]
		if pl.Type == "" {
			pl.Type = models.PlaylistUntracked
		}
		if pl.AddedAt.IsZero() {
			pl.AddedAt = now
		}
		if err := pl.Validate(); err != nil {
			return changed, fmt.Errorf("validation failed: %w", err)
		}

		res, err := sqlx.NamedExec(r.q, query, &pl)
		if err != nil {
			return changed, fmt.Errorf("failed to upsert playlist %s: %w", pl.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed = true
		}
	}
	return changed, nil
}

// Reconciled records the outcome of a remote write: the new snapshot (when known),
// whether local changes are still pending, and the recounted membership when counted is set.
func (r *PlaylistRepository) Reconciled(id, snapshotID string, pending, counted bool) error {
	query := `
		UPDATE playlists
		SET snapshot_id = CASE WHEN ? = '' THEN snapshot_id ELSE ? END,
			updates = ?,
			track_count = CASE WHEN ? THEN (SELECT COUNT(*) FROM tracks_playlists WHERE playlist_id = playlists.id) ELSE track_count END
		WHERE id = ?
	`
	res, err := r.q.Exec(query, snapshotID, snapshotID, pending, counted, id)
	if err != nil {
		return fmt.Errorf("failed to update playlist state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return nil
}

// DetachLabels turns every playlist bound to one of labelIDs into a mix, clearing its label reference.
func (r *PlaylistRepository) DetachLabels(labelIDs []int64) (int64, error) {
	n, err := execIn(r.q, "UPDATE playlists SET type = 'mix', label_id = NULL WHERE label_id IN (?)", labelIDs)
	if err != nil {
		return n, fmt.Errorf("failed to detach label playlists: %w", err)
	}
	return n, nil
}

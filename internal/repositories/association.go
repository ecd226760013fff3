package repositories

import (
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/jmoiron/sqlx"
)

// AssociationRepository manages the Track–Playlist and Track–Label link tables.
type AssociationRepository struct {
	q sqlx.Ext
}

// PlaylistTrackIDs returns the ids of a playlist's tracks in mirrored order.
func (r *AssociationRepository) PlaylistTrackIDs(playlistID string) ([]string, error) {
	var ids []string
	query := `
		SELECT track_id FROM tracks_playlists
		WHERE playlist_id = ?
		ORDER BY position IS NULL, position, added_at, track_id
	`
	if err := sqlx.Select(r.q, &ids, query, playlistID); err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	return ids, nil
}

// CountPlaylistTracks returns the number of tracks linked to a playlist.
func (r *AssociationRepository) CountPlaylistTracks(playlistID string) (int, error) {
	var n int
	if err := sqlx.Get(r.q, &n, "SELECT COUNT(*) FROM tracks_playlists WHERE playlist_id = ?", playlistID); err != nil {
		return 0, fmt.Errorf("failed to count playlist tracks: %w", err)
	}
	return n, nil
}

// AddPlaylistTracks appends tracks that are not yet linked to the playlist, positioned after the current last track.
// Returns how many links were created.
func (r *AssociationRepository) AddPlaylistTracks(playlistID string, trackIDs []string) (int, error) {
	var last int
	if err := sqlx.Get(r.q, &last, "SELECT COALESCE(MAX(position), -1) FROM tracks_playlists WHERE playlist_id = ?", playlistID); err != nil {
		return 0, fmt.Errorf("failed to read last position: %w", err)
	}

	query := `
		INSERT INTO tracks_playlists (track_id, playlist_id, position, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id, playlist_id) DO NOTHING
	`
	now := time.Now().UTC()
	added := 0
	for _, id := range shared.Unique(trackIDs) {
		res, err := r.q.Exec(query, id, playlistID, last+1, now)
		if err != nil {
			return added, fmt.Errorf("failed to link track %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			last++
			added++
		}
	}
	return added, nil
}

// SetPlaylistTracks makes the playlist's links mirror trackIDs exactly, in order.
//
// A track listed more than once keeps its first position.
func (r *AssociationRepository) SetPlaylistTracks(playlistID string, trackIDs []string) error {
	wanted := shared.Unique(trackIDs)

	current, err := r.PlaylistTrackIDs(playlistID)
	if err != nil {
		return err
	}
	if stale := shared.Difference(current, wanted); len(stale) > 0 {
		if _, err := r.RemovePlaylistTracks(playlistID, stale); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO tracks_playlists (track_id, playlist_id, position, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id, playlist_id) DO UPDATE SET position = excluded.position
	`
	now := time.Now().UTC()
	for pos, id := range wanted {
		if _, err := r.q.Exec(query, id, playlistID, pos, now); err != nil {
			return fmt.Errorf("failed to link track %s: %w", id, err)
		}
	}
	return nil
}

// RemovePlaylistTracks unlinks the given tracks from a playlist and returns how many links were removed.
func (r *AssociationRepository) RemovePlaylistTracks(playlistID string, trackIDs []string) (int, error) {
	n, err := execIn(r.q, "DELETE FROM tracks_playlists WHERE playlist_id = ? AND track_id IN (?)", shared.Unique(trackIDs), playlistID)
	if err != nil {
		return int(n), fmt.Errorf("failed to unlink playlist tracks: %w", err)
	}
	return int(n), nil
}

// ClearPlaylist removes every link of a playlist.
func (r *AssociationRepository) ClearPlaylist(playlistID string) error {
	if _, err := r.q.Exec("DELETE FROM tracks_playlists WHERE playlist_id = ?", playlistID); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	return nil
}

// LabelTrackIDs returns the ids of the tracks carrying a label, oldest tag first.
func (r *AssociationRepository) LabelTrackIDs(labelID int64) ([]string, error) {
	var ids []string
	if err := sqlx.Select(r.q, &ids, "SELECT track_id FROM tracks_labels WHERE label_id = ? ORDER BY added_at, track_id", labelID); err != nil {
		return nil, fmt.Errorf("failed to query label tracks: %w", err)
	}
	return ids, nil
}

// AddLabelTracks tags tracks with a label, ignoring tracks already tagged. Returns how many tags were created.
func (r *AssociationRepository) AddLabelTracks(labelID int64, trackIDs []string) (int, error) {
	query := "INSERT INTO tracks_labels (track_id, label_id, added_at) VALUES (?, ?, ?) ON CONFLICT(track_id, label_id) DO NOTHING"
	now := time.Now().UTC()
	added := 0
	for _, id := range shared.Unique(trackIDs) {
		res, err := r.q.Exec(query, id, labelID, now)
		if err != nil {
			return added, fmt.Errorf("failed to tag track %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// RemoveLabelTracks untags tracks and returns how many tags were removed.
func (r *AssociationRepository) RemoveLabelTracks(labelID int64, trackIDs []string) (int, error) {
	n, err := execIn(r.q, "DELETE FROM tracks_labels WHERE label_id = ? AND track_id IN (?)", shared.Unique(trackIDs), labelID)
	if err != nil {
		return int(n), fmt.Errorf("failed to untag tracks: %w", err)
	}
	return int(n), nil
}

// PlaylistsForTrack returns the ids of the playlists a track is linked to.
func (r *AssociationRepository) PlaylistsForTrack(trackID string) ([]string, error) {
	var ids []string
	if err := sqlx.Select(r.q, &ids, "SELECT playlist_id FROM tracks_playlists WHERE track_id = ? ORDER BY playlist_id", trackID); err != nil {
		return nil, fmt.Errorf("failed to query track playlists: %w", err)
	}
	return ids, nil
}

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

const trackColumns = "t.id AS id, t.name AS name, t.artist AS artist, t.album_id AS album_id, t.rating AS rating, t.liked AS liked, t.added_at AS added_at"

// TrackRepository persists [models.Track] rows.
type TrackRepository struct {
	q sqlx.Ext
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	var track models.Track
	err := sqlx.Get(r.q, &track, "SELECT "+trackColumns+" FROM tracks t WHERE t.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	return &track, nil
}

// List returns all tracks, or only liked ones, ordered by when they were first seen.
func (r *TrackRepository) List(likedOnly bool) ([]models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks t"
	if likedOnly {
		query += " WHERE t.liked = 1"
	}
	query += " ORDER BY t.added_at, t.id"

	var tracks []models.Track
	if err := sqlx.Select(r.q, &tracks, query); err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	return tracks, nil
}

// ForPlaylist returns a playlist's tracks in mirrored order.
func (r *TrackRepository) ForPlaylist(playlistID string) ([]models.Track, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks t
		JOIN tracks_playlists tp ON tp.track_id = t.id
		WHERE tp.playlist_id = ?
		ORDER BY tp.position IS NULL, tp.position, tp.added_at, t.id
	`

	var tracks []models.Track
	if err := sqlx.Select(r.q, &tracks, query, playlistID); err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	return tracks, nil
}

// ForLabel returns the tracks carrying a label.
func (r *TrackRepository) ForLabel(labelID int64) ([]models.Track, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks t
		JOIN tracks_labels tl ON tl.track_id = t.id
		WHERE tl.label_id = ?
		ORDER BY tl.added_at, t.id
	`

	var tracks []models.Track
	if err := sqlx.Select(r.q, &tracks, query, labelID); err != nil {
		return nil, fmt.Errorf("failed to query label tracks: %w", err)
	}
	return tracks, nil
}

// MissingIDs returns the ids, in input order, that have no local track row.
func (r *TrackRepository) MissingIDs(ids []string) ([]string, error) {
	found, err := selectIn[string](r.q, "SELECT id FROM tracks WHERE id IN (?)", shared.Unique(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracks: %w", err)
	}
	return shared.Difference(ids, found), nil
}

// Upsert inserts tracks or refreshes their remote metadata. Rating and liked are local state and are kept.
func (r *TrackRepository) Upsert(tracks []models.Track) error {
	query := `
		INSERT INTO tracks (id, name, artist, album_id, rating, liked, added_at)
		VALUES (:id, :name, :artist, :album_id, :rating, :liked, :added_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			artist = excluded.artist,
			album_id = COALESCE(excluded.album_id, tracks.album_id)
	`

	now := time.Now().UTC()
	for i := range tracks {
		track := tracks[i]
		if err := track.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if track.AddedAt.IsZero() {
			track.AddedAt = now
		}
		if _, err := sqlx.NamedExec(r.q, query, &track); err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", track.ID, err)
		}
	}
	return nil
}

// ReplaceLiked makes exactly the given tracks liked.
func (r *TrackRepository) ReplaceLiked(ids []string) error {
	if _, err := r.q.Exec("UPDATE tracks SET liked = 0 WHERE liked = 1"); err != nil {
		return fmt.Errorf("failed to reset liked tracks: %w", err)
	}
	if _, err := execIn(r.q, "UPDATE tracks SET liked = 1 WHERE id IN (?)", shared.Unique(ids)); err != nil {
		return fmt.Errorf("failed to mark liked tracks: %w", err)
	}
	return nil
}

// Rate sets a track's local rating.
func (r *TrackRepository) Rate(id string, rating int) error {
	if rating < 0 {
		return fmt.Errorf("%w: rating must not be negative", shared.ErrInvalidInput)
	}
	res, err := r.q.Exec("UPDATE tracks SET rating = ? WHERE id = ?", rating, id)
	if err != nil {
		return fmt.Errorf("failed to rate track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return nil
}

// AlbumRepository persists [models.Album] rows.
type AlbumRepository struct {
	q sqlx.Ext
}

// Get retrieves an album by ID
func (r *AlbumRepository) Get(id string) (*models.Album, error) {
	var album models.Album
	err := sqlx.Get(r.q, &album, "SELECT id, name, image_small, image_medium, image_large FROM albums WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: album %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query album: %w", err)
	}
	return &album, nil
}

// Upsert inserts albums or refreshes their name and artwork.
func (r *AlbumRepository) Upsert(albums []models.Album) error {
	query := `
		INSERT INTO albums (id, name, image_small, image_medium, image_large)
		VALUES (:id, :name, :image_small, :image_medium, :image_large)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			image_small = excluded.image_small,
			image_medium = excluded.image_medium,
			image_large = excluded.image_large
	`

	for i := range albums {
		if err := albums[i].Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if _, err := sqlx.NamedExec(r.q, query, &albums[i]); err != nil {
			return fmt.Errorf("failed to upsert album %s: %w", albums[i].ID, err)
		}
	}
	return nil
}

package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
)

// Track is a library item identified by its remote id.
type Track struct {
	ID      string    `db:"id" json:"id"`
	Name    string    `db:"name" json:"name"`
	Artist  string    `db:"artist" json:"artist"`
	AlbumID *string   `db:"album_id" json:"album_id,omitempty"`
	Rating  int       `db:"rating" json:"rating"`
	Liked   bool      `db:"liked" json:"liked"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

func (t *Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}
	if t.Rating < 0 {
		return fmt.Errorf("%w: track rating must not be negative", shared.ErrInvalidInput)
	}
	return nil
}

// Album is referenced by tracks and created the first time one of its tracks is seen.
type Album struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	ImageSmall  string `db:"image_small" json:"image_small"`
	ImageMedium string `db:"image_medium" json:"image_medium"`
	ImageLarge  string `db:"image_large" json:"image_large"`
}

func (a *Album) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: album id is required", shared.ErrInvalidInput)
	}
	return nil
}

// TrackPlaylist is a playlist membership row. A nil Position means unordered.
type TrackPlaylist struct {
	TrackID    string    `db:"track_id" json:"track_id"`
	PlaylistID string    `db:"playlist_id" json:"playlist_id"`
	Position   *int      `db:"position" json:"position,omitempty"`
	AddedAt    time.Time `db:"added_at" json:"added_at"`
}

// TrackLabel records that a track carries a label.
type TrackLabel struct {
	TrackID string    `db:"track_id" json:"track_id"`
	LabelID int64     `db:"label_id" json:"label_id"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

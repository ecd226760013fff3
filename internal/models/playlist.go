package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
)

// Playlist mirrors a remote playlist.
//
// LabelID is set iff Type is [PlaylistLabel].
type Playlist struct {
	ID          string       `db:"id" json:"id"`
	OwnerID     string       `db:"owner_id" json:"owner_id"`
	Name        string       `db:"name" json:"name"`
	Description string       `db:"description" json:"description"`
	TrackCount  int          `db:"track_count" json:"track_count"`
	SnapshotID  string       `db:"snapshot_id" json:"snapshot_id"`
	Updates     bool         `db:"updates" json:"updates"`
	Type        PlaylistType `db:"type" json:"type"`
	LabelID     *int64       `db:"label_id" json:"label_id,omitempty"`
	AddedAt     time.Time    `db:"added_at" json:"added_at"`
}

func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrInvalidInput)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown playlist type %q", shared.ErrInvalidInput, p.Type)
	}
	if (p.Type == PlaylistLabel) != (p.LabelID != nil) {
		return fmt.Errorf("%w: label_id must be set exactly when type is label", shared.ErrInvalidLabel)
	}
	if p.TrackCount < 0 {
		return fmt.Errorf("%w: track count must not be negative", shared.ErrInvalidInput)
	}
	return nil
}

// PlaylistPatch is a partial playlist update. Nil fields are left untouched.
type PlaylistPatch struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Type        *PlaylistType `json:"type,omitempty"`
	LabelID     *int64        `json:"label_id,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PlaylistPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil && p.LabelID == nil
}

// Details reports whether the patch touches remote-visible details.
func (p PlaylistPatch) Details() bool {
	return p.Name != nil || p.Description != nil
}

// Apply merges the patch into pl. Moving away from the label type clears the label reference.
func (p PlaylistPatch) Apply(pl *Playlist) {
	if p.Name != nil {
		pl.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		pl.Description = *p.Description
	}
	if p.Type != nil {
		pl.Type = *p.Type
	}
	if p.LabelID != nil {
		id := *p.LabelID
		pl.LabelID = &id
	}
	if pl.Type != PlaylistLabel {
		pl.LabelID = nil
	}
}

// NewPlaylist is the caller's request to create a managed playlist.
type NewPlaylist struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        PlaylistType `json:"type"`
	LabelID     *int64       `json:"label_id,omitempty"`
	TrackIDs    []string     `json:"track_ids,omitempty"`
}

func (n *NewPlaylist) Validate() error {
	switch n.Type {
	case PlaylistLabel:
		if n.LabelID == nil {
			return fmt.Errorf("%w: label playlists require a label", shared.ErrInvalidLabel)
		}
	case PlaylistMix:
		if n.LabelID != nil {
			return fmt.Errorf("%w: mix playlists cannot reference a label", shared.ErrInvalidLabel)
		}
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("%w: mix playlists require a name", shared.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: playlists can only be created as label or mix, got %q", shared.ErrInvalidInput, n.Type)
	}
	return nil
}

// PlaylistTracks names a playlist and the tracks to add to or remove from it.
type PlaylistTracks struct {
	PlaylistID string   `json:"playlist_id"`
	TrackIDs   []string `json:"track_ids"`
}

// LabelPlaylistName is the remote name given to a playlist generated for a label.
func LabelPlaylistName(l *Label) string {
	return fmt.Sprintf("< %s >", l.Name)
}

// LabelPlaylistDescription is the remote description given to a playlist generated for a label.
func LabelPlaylistDescription(l *Label) string {
	return fmt.Sprintf("Playlist generated by MoodMusic, associated with %s label: %s", l.Type, LabelPlaylistName(l))
}

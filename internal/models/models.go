// package models defines the data model for the moodmusic library mirror
package models

import (
	"fmt"

	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

// Validator is implemented by every entity that can check its own invariants before it is persisted.
type Validator interface {
	Validate() error
}

// PlaylistType describes how a playlist is managed locally.
type PlaylistType string

const (
	PlaylistUntracked PlaylistType = "untracked" // discovered remotely, not managed
	PlaylistLabel     PlaylistType = "label"     // membership mirrors a label's tracks
	PlaylistMix       PlaylistType = "mix"       // managed, free-form membership
	PlaylistDeleted   PlaylistType = "deleted"   // unfollowed remotely, row kept for restore
)

// Valid reports whether t is a known playlist type.
func (t PlaylistType) Valid() bool {
	switch t {
	case PlaylistUntracked, PlaylistLabel, PlaylistMix, PlaylistDeleted:
		return true
	}
	return false
}

// Managed reports whether the local mirror owns the playlist's membership (label and mix).
func (t PlaylistType) Managed() bool {
	return t == PlaylistLabel || t == PlaylistMix
}

// LabelType distinguishes genre labels, which may nest, from moods.
type LabelType string

const (
	LabelGenre LabelType = "genre"
	LabelMood  LabelType = "mood"
)

func (t LabelType) Valid() bool {
	return t == LabelGenre || t == LabelMood
}

// Credential is the bearer credential presented on behalf of a user.
type Credential struct {
	UserID string
	Token  *oauth2.Token
	// OnRefresh, when set, receives every token obtained by refreshing Token.
	OnRefresh func(*oauth2.Token) error
}

func (c Credential) Validate() error {
	if c.UserID == "" || c.Token == nil || c.Token.AccessToken == "" {
		return fmt.Errorf("%w: credential requires a user id and access token", shared.ErrNotAuthenticated)
	}
	return nil
}

// PlaylistChanges describes the effect of a remote mutation on a playlist.
type PlaylistChanges struct {
	ID              string `json:"id"`
	SnapshotID      string `json:"snapshot_id"`
	TrackCountDelta int    `json:"track_count_delta"`
}

// Merge folds a later change into c; the later snapshot wins and deltas add up.
func (c PlaylistChanges) Merge(next PlaylistChanges) PlaylistChanges {
	out := c
	if next.SnapshotID != "" {
		out.SnapshotID = next.SnapshotID
	}
	out.TrackCountDelta += next.TrackCountDelta
	return out
}

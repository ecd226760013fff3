package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/dustin/go-humanize"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string {
	if i.playlist.Updates {
		return i.playlist.Name + " " + styles.warn.Render("(out of sync)")
	}
	return i.playlist.Name
}

func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%s • %s", styles.playlistType(i.playlist.Type), humanize.Comma(int64(i.playlist.TrackCount))+" tracks")
	if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track models.Track
}

func (i trackItem) FilterValue() string { return i.track.Name }
func (i trackItem) Title() string {
	if i.track.Liked {
		return i.track.Name + " ♥"
	}
	return i.track.Name
}
func (i trackItem) Description() string { return i.track.Artist }

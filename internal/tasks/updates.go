package tasks

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchUser Phase = iota
	FetchLiked
	FetchPlaylists
	StoreLibrary
	BulkWrite
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchUser:
		return "fetch_user"
	case FetchLiked:
		return "fetch_liked"
	case FetchPlaylists:
		return "fetch_playlists"
	case StoreLibrary:
		return "store_library"
	case BulkWrite:
		return "bulk_write"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func fetchingUserUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUser,
		Step:    0,
		Total:   1,
		Message: "Fetching account from Spotify...",
	}
}

func fetchingLibraryUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLiked,
		Step:    0,
		Total:   2,
		Message: "Fetching liked tracks and playlists...",
	}
}

func fetchedLikedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLiked,
		Step:    1,
		Total:   2,
		Message: fmt.Sprintf("Fetched %s liked tracks", humanize.Comma(int64(count))),
		Data:    count,
	}
}

func fetchedPlaylistsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    2,
		Total:   2,
		Message: fmt.Sprintf("Fetched %s playlists", humanize.Comma(int64(count))),
		Data:    count,
	}
}

func storingLibraryUpdate(tracks, playlists int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreLibrary,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Storing %s tracks and %s playlists...", humanize.Comma(int64(tracks)), humanize.Comma(int64(playlists))),
	}
}

func storedLibraryUpdate(result *RefreshResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreLibrary,
		Step:    1,
		Total:   1,
		Message: "Library stored",
		Data:    result,
	}
}

func bulkWriteUpdate(step, total int, o Outcome) ProgressUpdate {
	msg := fmt.Sprintf("Playlist %s: %+d tracks", o.PlaylistID, o.Changes.TrackCountDelta)
	if o.Err != nil {
		msg = fmt.Sprintf("Playlist %s failed: %v", o.PlaylistID, o.Err)
	}
	return ProgressUpdate{
		Phase:   BulkWrite,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    o,
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Exporting playlist: %s", name),
	}
}

func exportCompletedUpdate(step, total int, name string, files int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Exported %s (%d files)", name, files),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Failed to export %s: %v", name, err),
	}
}

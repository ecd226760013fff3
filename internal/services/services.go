// package services defines the remote playlist client used by the reconciliation engine
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
)

const (
	// MaxBatchSize is the most items a single remote write may carry.
	MaxBatchSize = 100
	// PageSize is the limit used for every listing endpoint.
	PageSize = 50
)

// PlaylistClient performs playlist reads and chunked writes against the remote service on behalf of one user.
//
// Every list-accepting write is split into chunks of at most [MaxBatchSize] items. Chunks are issued
// sequentially and the last chunk's snapshot is returned. A failing chunk aborts the operation with a
// [*ChunkError]; chunks already applied are not rolled back.
type PlaylistClient interface {
	// AddTracks appends tracks to a playlist.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) (Result, error)

	// RemoveTracks removes every occurrence of the given tracks. When expectedSnapshot is set it is sent
	// with the first chunk and later chunks chain on the snapshot returned by the previous one.
	RemoveTracks(ctx context.Context, playlistID string, trackIDs []string, expectedSnapshot string) (Result, error)

	// RemovePositions removes exact occurrences, one remote call per batch, chaining snapshots between batches.
	RemovePositions(ctx context.Context, playlistID string, batches [][]PositionedTrack, expectedSnapshot string) (Result, error)

	// ReplaceTracks makes the remote playlist body exactly trackIDs, in order.
	ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) (Result, error)

	CreatePlaylist(ctx context.Context, ownerID, name, description string) (*RemotePlaylist, error)

	// SetFollowState follows or unfollows a playlist. Unfollowing an owned playlist is how it is deleted.
	SetFollowState(ctx context.Context, playlistID string, following bool) error

	// UpdateDetails renames or re-describes a playlist; nil fields are left untouched.
	UpdateDetails(ctx context.Context, playlistID string, name, description *string) error

	// PlaylistTracks returns a playlist's metadata and its full ordered track list.
	PlaylistTracks(ctx context.Context, playlistID string) (*RemotePlaylist, []RemoteTrack, error)

	SavedTracks(ctx context.Context) ([]RemoteTrack, error)
	UserPlaylists(ctx context.Context) ([]RemotePlaylist, error)
	CurrentUser(ctx context.Context) (*RemoteUser, error)
}

// ClientProvider binds a [models.Credential] to a [PlaylistClient].
type ClientProvider interface {
	Client(ctx context.Context, cred models.Credential) PlaylistClient
}

// Result is the outcome of a chunked write.
type Result struct {
	SnapshotID string // returned by the last chunk
	Applied    int    // signed item count: positive for adds, negative for removals
	Chunks     int    // number of remote calls that succeeded
}

// PositionedTrack addresses specific occurrences of a track within a playlist.
type PositionedTrack struct {
	ID        string
	Positions []int
}

// RemoteAlbum is an album as reported by the remote service.
type RemoteAlbum struct {
	ID          string
	Name        string
	ImageSmall  string
	ImageMedium string
	ImageLarge  string
}

// RemoteTrack is a track as reported by the remote service. Position is its index in the listing it came from.
type RemoteTrack struct {
	ID       string
	Name     string
	Artist   string
	Album    RemoteAlbum
	AddedAt  time.Time
	Position int
}

// Model converts the track for the local store.
func (t RemoteTrack) Model() models.Track {
	track := models.Track{ID: t.ID, Name: t.Name, Artist: t.Artist, AddedAt: t.AddedAt}
	if t.Album.ID != "" {
		id := t.Album.ID
		track.AlbumID = &id
	}
	return track
}

// AlbumModel converts the track's album, or returns nil when the track has none.
func (t RemoteTrack) AlbumModel() *models.Album {
	if t.Album.ID == "" {
		return nil
	}
	return &models.Album{
		ID:          t.Album.ID,
		Name:        t.Album.Name,
		ImageSmall:  t.Album.ImageSmall,
		ImageMedium: t.Album.ImageMedium,
		ImageLarge:  t.Album.ImageLarge,
	}
}

// RemotePlaylist is playlist metadata as reported by the remote service.
type RemotePlaylist struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	SnapshotID  string
	TrackCount  int
}

// Model converts a discovered playlist; it enters the store untracked.
func (p RemotePlaylist) Model() models.Playlist {
	return models.Playlist{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: p.Description,
		SnapshotID:  p.SnapshotID,
		TrackCount:  p.TrackCount,
		Type:        models.PlaylistUntracked,
	}
}

// RemoteUser is the authenticated account.
type RemoteUser struct {
	ID          string
	DisplayName string
}

// ChunkError reports a chunked write that stopped part way.
//
// Applied chunks were written remotely; SnapshotID is the token returned by the last of them
// and Items is their signed item count.
type ChunkError struct {
	Op         string
	PlaylistID string
	Applied    int
	Total      int
	Items      int
	SnapshotID string
	Err        error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s on playlist %s stopped after %d/%d chunks (last snapshot %q): %v",
		e.Op, e.PlaylistID, e.Applied, e.Total, e.SnapshotID, e.Err)
}

func (e *ChunkError) Unwrap() []error {
	return []error{shared.ErrRemoteRequest, e.Err}
}

// Partial reports the writes that landed before the failure.
func (e *ChunkError) Partial() Result {
	return Result{SnapshotID: e.SnapshotID, Applied: e.Items, Chunks: e.Applied}
}

// Package tasks keeps the local library mirror and Spotify consistent.
//
// # Duplicate Resolver
//
// [FindDuplicates] scans an ordered playlist listing and records every repeated occurrence after the
// first. [DuplicateSet.Batches] turns the result into positional removals that stay correct when applied
// one batch after another.
//
// # Reconciliation Engine
//
// [Engine] runs every operation in three steps:
//
//  1. Validate against the local store (unknown playlists, labels or tracks, invalid transitions).
//     Nothing remote happens when validation fails.
//  2. Perform the remote writes through a [services.PlaylistClient].
//  3. Commit the local effect in one transaction, retrying with exponential backoff.
//
// A commit that keeps failing after a successful remote write is logged, counted, and returned as
// [shared.ErrLocalCommit]. A chunked remote write that stops part way is committed for the prefix that
// landed and the playlist is flagged with pending updates so a later sync can repair it.
//
// # Playlist Types
//
// Playlists move between untracked, label, mix and deleted through [Engine.UpdatePlaylist]:
//
//	untracked ──► label | mix     pull remote body, remove duplicates, push missing label tracks
//	label | mix ──► untracked     drop local associations
//	any ──► deleted               unfollow remotely
//	deleted ──► untracked         follow again
//
// Label playlists always contain exactly the tracks carrying their label, so tagging and untagging
// through [Engine.LabelTracks] and [Engine.UnlabelTracks] also write to the label's playlist.
//
// # Library Refresh
//
// [Engine.RefreshLibrary] fetches liked tracks and followed playlists concurrently, and [Poller] runs it
// on an interval under a supervisor.
//
// # Progress Reporting
//
// Long-running operations accept a channel of [ProgressUpdate]. Updates are sent with select and
// default so a slow reader never blocks an operation.
package tasks

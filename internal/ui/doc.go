// Package ui implements an interactive terminal browser for the mirrored library using bubbletea's Elm architecture.
//
// The TUI has five views:
//  1. [PlaylistListView] : Browse local playlists with their type, track count and sync state
//  2. [TrackListView] : Inspect a playlist's recorded members
//  3. [ConfirmView] : Confirm a destructive action (revert, dedupe)
//  4. [WorkingView] : Follow progress of a sync, revert, dedupe or library refresh
//  5. [ResultView] : Show the new snapshot and track count delta, or the error
//
// The [Model] receives messages via the [Msg] union type. Library refresh progress flows through a
// channel from the engine so the view updates without blocking.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) plus s/r/d for sync, revert
// and dedupe on the selected playlist and R to refresh the whole library.
package ui

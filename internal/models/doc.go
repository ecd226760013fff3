// Package models defines the domain entities mirrored between the local store and the remote playlist service.
//
// Entities:
//   - [Track], [Album] : library items observed through liked tracks or playlist contents
//   - [Playlist] : a remote playlist and how it is managed locally ([PlaylistType])
//   - [Label] : a user-defined genre or mood tag; genres may nest through ParentID
//   - [TrackPlaylist], [TrackLabel] : association rows
//   - [User] : the single account whose library is mirrored
//
// Partial updates are expressed as typed patches ([PlaylistPatch], [LabelPatch]) applied field by field,
// and remote mutations are summarized by a [PlaylistChanges] descriptor.
package models

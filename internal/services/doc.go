// Package services implements the remote playlist client for the Spotify Web API.
//
// # Playlist Client
//
// [PlaylistClient] is the only view of the remote service the reconciliation engine has.
// [SpotifyProvider] owns the OAuth2 configuration, a shared rate limiter and circuit breaker,
// and hands out a [SpotifyClient] per credential. The [oauth2.Client] refreshes expired tokens
// using the stored refresh token.
//
// # Chunked Writes
//
// Request bodies carry at most [MaxBatchSize] items, so every list-accepting write is split into
// chunks issued one after another:
//   - AddTracks appends; chunks never present a snapshot
//   - RemoveTracks presents the caller's snapshot on the first chunk, then chains on the returned token
//   - RemovePositions always chains, since later positions depend on earlier removals
//   - ReplaceTracks replaces with the first chunk and appends the rest
//
// The last chunk's snapshot is authoritative. A failing chunk stops the operation with a [*ChunkError]
// describing how far it got; nothing is rolled back and nothing is retried.
//
// # Listings
//
// Listing endpoints are read with limit=50. The first page reports the total, and the remaining
// pages are fetched concurrently and reassembled in order.
//
// # Error Handling
//
// Errors match sentinels from the shared package:
//   - [shared.ErrRemoteRequest] : transport failure or non-2xx response
//   - [shared.ErrStaleSnapshot] : a presented snapshot was rejected (409, or 400 naming the snapshot)
//   - [shared.ErrMissingSnapshot] : a write succeeded but returned no snapshot
//   - [shared.ErrServiceUnavailable] : the circuit breaker is open
//
// Client errors such as stale snapshots do not count against the circuit breaker.
package services

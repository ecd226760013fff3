// Package server exposes the reconciliation engine as a JSON HTTP API.
//
// # Routes
//
// Playlists, labels and tracks are read from the local mirror. Writes go through the engine, which
// talks to Spotify first and then commits locally; every write response carries the playlist's new
// snapshot and track count delta.
//
//	GET    /playlists[?type=label&type=mix]
//	POST   /playlists
//	GET    /playlists/{id}
//	PATCH  /playlists/{id}
//	DELETE /playlists/{id}
//	GET    /playlists/{id}/tracks
//	POST   /playlists/{id}/restore|sync|revert|dedupe
//	POST   /bulk/tracks
//	DELETE /bulk/tracks
//	GET    /tracks[?liked=true]
//	GET    /labels
//	POST   /labels
//	GET    /labels/{id}
//	PATCH  /labels/{id}
//	DELETE /labels/{id}
//	GET    /labels/{id}/tracks
//	POST   /labels/{id}/tracks
//	DELETE /labels/{id}/tracks
//	POST   /library/refresh
//	GET    /login, /callback
//	GET    /healthz, /metrics
//
// Errors use the envelope {"error": {"code", "message", "fields"}}. Validation failures are 422 and
// name the offending fields, stale snapshots are 409, remote failures are 502.
//
// # Middleware
//
// [NewRouter] builds a chi router with request IDs, access logging, Prometheus metrics, panic
// recovery and optional per-IP rate limiting.
//
// # OAuth
//
// The server issues state tokens at /login and completes the flow at /callback. [OAuthHandler] is
// the one-shot variant used by the command-line login, which runs a temporary server and waits for
// a single callback.
//
// # Supervision
//
// [Service] adapts an *http.Server to a suture service with graceful shutdown.
package server

// Package repositories implements the local store: SQLite persistence for the mirrored library.
//
// A [Store] owns the connection pool and hands out [Repos], a bundle of per-entity repositories bound either
// to the pool (reads) or to a single write transaction ([Store.InTx]). Write transactions are serialized, so
// one logical reconciliation lands completely or not at all and readers never observe half of it.
//
// Key Implementations:
//   - [TrackRepository], [AlbumRepository] : library items, upserted as they are observed remotely
//   - [PlaylistRepository] : playlist rows, including snapshot-aware bulk upsert
//   - [LabelRepository] : labels and their genre hierarchy
//   - [AssociationRepository] : idempotent Track–Playlist and Track–Label rows
//   - [UserRepository] : the mirrored account and its OAuth token
//
// Cascades are declared as foreign keys in the schema. The one cascade the schema can't express on its own,
// converting a label's playlist when the label is deleted, is done by [LabelRepository.Delete].
package repositories

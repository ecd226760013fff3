// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/jmoiron/sqlx"
)

// batchSize bounds the number of bound parameters in a single IN (...) query.
const batchSize = 500

// Store is the handle to the local mirror. Reads may run concurrently; writes go through [Store.InTx] one at a time.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewStore wraps an open database. The schema must already be migrated.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open opens the database at path, applies pending migrations and returns a [Store].
func Open(path string) (*Store, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewStore(db), nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Repos returns repositories bound to the connection pool.
//
// Must not be used from inside an [Store.InTx] callback; use the callback's [Repos] instead.
func (s *Store) Repos() *Repos {
	return bind(s.db)
}

// InTx runs fn inside one write transaction and commits if fn returns nil.
//
// The transaction is not bound to ctx cancellation: once a remote write has happened the local
// commit must be allowed to finish.
func (s *Store) InTx(ctx context.Context, fn func(*Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(bind(tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Repos bundles the repositories sharing one connection or transaction.
type Repos struct {
	Tracks    *TrackRepository
	Albums    *AlbumRepository
	Playlists *PlaylistRepository
	Labels    *LabelRepository
	Links     *AssociationRepository
	Users     *UserRepository
}

func bind(q sqlx.Ext) *Repos {
	return &Repos{
		Tracks:    &TrackRepository{q: q},
		Albums:    &AlbumRepository{q: q},
		Playlists: &PlaylistRepository{q: q},
		Labels:    &LabelRepository{q: q},
		Links:     &AssociationRepository{q: q},
		Users:     &UserRepository{q: q},
	}
}

// in expands slice arguments of query with [sqlx.In] and rebinds it for the driver.
func in(q sqlx.Ext, query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand query: %w", err)
	}
	return q.Rebind(query), args, nil
}

// selectIn runs a query with a trailing IN (?) once per batch of ids and concatenates the rows.
func selectIn[R, T any](q sqlx.Ext, query string, ids []T, lead ...any) ([]R, error) {
	var out []R
	for _, batch := range shared.Chunk(ids, batchSize) {
		args := append(append([]any{}, lead...), batch)
		expanded, expandedArgs, err := in(q, query, args...)
		if err != nil {
			return nil, err
		}
		var rows []R
		if err := sqlx.Select(q, &rows, expanded, expandedArgs...); err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// execIn runs a statement with a trailing IN (?) once per batch of ids, prefixing each call with lead args.
func execIn[T any](q sqlx.Ext, query string, ids []T, lead ...any) (int64, error) {
	var affected int64
	for _, batch := range shared.Chunk(ids, batchSize) {
		args := append(append([]any{}, lead...), batch)
		expanded, expandedArgs, err := in(q, query, args...)
		if err != nil {
			return affected, err
		}
		res, err := q.Exec(expanded, expandedArgs...)
		if err != nil {
			return affected, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return affected, fmt.Errorf("failed to get affected rows: %w", err)
		}
		affected += n
	}
	return affected, nil
}

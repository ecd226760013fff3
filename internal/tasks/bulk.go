package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/sourcegraph/conc/iter"
)

// bulkWorkers bounds how many playlists are written to concurrently.
const bulkWorkers = 4

// Outcome is the result of a bulk write for one playlist. Outcomes are independent: one playlist
// failing does not affect the others.
type Outcome struct {
	PlaylistID string                 `json:"playlist_id"`
	Changes    models.PlaylistChanges `json:"changes"`
	Err        error                  `json:"-"`
}

type bulkJob struct {
	req      models.PlaylistTracks
	playlist *models.Playlist
	ids      []string // tracks that will actually change
	applied  []string
	snapshot string
	remote   bool // a remote write was attempted
	err      error
}

// BulkAddTracks appends tracks to several managed playlists in parallel.
//
// Tracks must exist locally; tracks already in a playlist are skipped. A playlist named again later in
// reqs is rejected with [shared.ErrInvalidInput]. All successful and partially
// applied writes are committed together; partially applied playlists are flagged for sync.
func (e *Engine) BulkAddTracks(ctx context.Context, cred models.Credential, reqs []models.PlaylistTracks, progress chan<- ProgressUpdate) ([]Outcome, error) {
	return e.bulk(ctx, cred, reqs, true, progress)
}

// BulkRemoveTracks removes tracks from several managed playlists in parallel, presenting each playlist's
// stored snapshot. Only tracks the mirror records as members are removed.
func (e *Engine) BulkRemoveTracks(ctx context.Context, cred models.Credential, reqs []models.PlaylistTracks, progress chan<- ProgressUpdate) ([]Outcome, error) {
	return e.bulk(ctx, cred, reqs, false, progress)
}

func (e *Engine) bulk(ctx context.Context, cred models.Credential, reqs []models.PlaylistTracks, add bool, progress chan<- ProgressUpdate) ([]Outcome, error) {
	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	op := "bulk_remove_tracks"
	if add {
		op = "bulk_add_tracks"
	}

	repos := e.store.Repos()
	jobs := make([]bulkJob, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for i, req := range reqs {
		jobs[i].req = req
		// Jobs run concurrently against the same mirror, so a second write to a playlist would push
		// the same tracks again.
		if seen[req.PlaylistID] {
			jobs[i].err = fmt.Errorf("%w: playlist %s appears more than once", shared.ErrInvalidInput, req.PlaylistID)
			continue
		}
		seen[req.PlaylistID] = true
		jobs[i].err = e.prepareBulk(repos, &jobs[i], add)
	}

	var (
		mu   sync.Mutex
		done int
	)
	iter.Iterator[bulkJob]{MaxGoroutines: bulkWorkers}.ForEach(jobs, func(j *bulkJob) {
		if j.err == nil && len(j.ids) > 0 {
			j.remote = true
			var err error
			if add {
				res, rerr := client.AddTracks(ctx, j.playlist.ID, j.ids)
				j.snapshot, err = res.SnapshotID, rerr
			} else {
				res, rerr := client.RemoveTracks(ctx, j.playlist.ID, j.ids, j.playlist.SnapshotID)
				j.snapshot, err = res.SnapshotID, rerr
			}
			if err != nil {
				j.applied, j.snapshot = appliedPrefix(j.ids, err, "")
				j.err = err
			} else {
				j.applied = j.ids
			}
		}

		mu.Lock()
		done++
		sendProgress(progress, bulkWriteUpdate(done, len(jobs), j.outcome(add)))
		mu.Unlock()
	})

	if needsCommit(jobs) {
		err := e.commit(ctx, op, func(r *repositories.Repos) error {
			for i := range jobs {
				if err := jobs[i].record(r, add); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	outcomes := make([]Outcome, len(jobs))
	failed := 0
	for i := range jobs {
		outcomes[i] = jobs[i].outcome(add)
		if outcomes[i].Err != nil {
			failed++
		}
	}
	e.logger.Info("bulk write finished", "op", op, "playlists", len(jobs), "failed", failed)
	return outcomes, nil
}

// prepareBulk validates one request and works out which tracks it changes.
func (e *Engine) prepareBulk(r *repositories.Repos, j *bulkJob, add bool) error {
	if len(j.req.TrackIDs) == 0 {
		return fmt.Errorf("%w: no tracks given for playlist %s", shared.ErrInvalidInput, j.req.PlaylistID)
	}
	pl, err := e.livePlaylist(j.req.PlaylistID)
	if err != nil {
		return err
	}
	if !pl.Type.Managed() {
		return fmt.Errorf("%w: playlist %s is %s; only label and mix playlists take bulk writes", shared.ErrInvalidTransition, pl.ID, pl.Type)
	}
	j.playlist = pl

	requested := shared.Unique(j.req.TrackIDs)
	members, err := r.Links.PlaylistTrackIDs(pl.ID)
	if err != nil {
		return err
	}
	if add {
		if err := requireTracks(r, requested); err != nil {
			return err
		}
		j.ids = shared.Difference(requested, members)
	} else {
		j.ids = shared.Intersect(requested, members)
	}
	return nil
}

// record commits the applied part of a job and updates the playlist's snapshot and count.
func (j *bulkJob) record(r *repositories.Repos, add bool) error {
	if !j.remote {
		return nil
	}
	id := j.playlist.ID
	if add {
		if _, err := r.Links.AddPlaylistTracks(id, j.applied); err != nil {
			return err
		}
		if j.playlist.LabelID != nil {
			if _, err := r.Links.AddLabelTracks(*j.playlist.LabelID, j.applied); err != nil {
				return err
			}
		}
	} else {
		if _, err := r.Links.RemovePlaylistTracks(id, j.applied); err != nil {
			return err
		}
		if j.playlist.LabelID != nil {
			if _, err := r.Links.RemoveLabelTracks(*j.playlist.LabelID, j.applied); err != nil {
				return err
			}
		}
	}
	return r.Playlists.Reconciled(id, j.snapshot, j.err != nil, true)
}

func (j *bulkJob) outcome(add bool) Outcome {
	o := Outcome{PlaylistID: j.req.PlaylistID, Err: j.err}
	o.Changes.ID = j.req.PlaylistID
	o.Changes.SnapshotID = j.snapshot
	if o.Changes.SnapshotID == "" && j.playlist != nil {
		o.Changes.SnapshotID = j.playlist.SnapshotID
	}
	o.Changes.TrackCountDelta = len(j.applied)
	if !add {
		o.Changes.TrackCountDelta = -len(j.applied)
	}
	return o
}

func needsCommit(jobs []bulkJob) bool {
	for i := range jobs {
		if jobs[i].remote {
			return true
		}
	}
	return false
}

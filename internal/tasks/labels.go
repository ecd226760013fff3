package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/shared"
)

// LabelResult reports a tagging operation. Changes is set when the label's playlist was written.
type LabelResult struct {
	Label   *models.Label           `json:"label"`
	Tracks  int                     `json:"tracks"`
	Changes *models.PlaylistChanges `json:"changes,omitempty"`
}

func (e *Engine) Labels() ([]models.Label, error) {
	return e.store.Repos().Labels.List()
}

func (e *Engine) Label(id int64) (*models.Label, error) {
	return e.store.Repos().Labels.Get(id)
}

// TracksForLabel returns the tracks tagged with a label.
func (e *Engine) TracksForLabel(id int64) ([]models.Track, error) {
	repos := e.store.Repos()
	if _, err := repos.Labels.Get(id); err != nil {
		return nil, err
	}
	return repos.Tracks.ForLabel(id)
}

// CreateLabel stores a new label. Subgenres must name an existing genre as parent.
func (e *Engine) CreateLabel(ctx context.Context, label *models.Label) (*models.Label, error) {
	if err := label.Validate(); err != nil {
		return nil, err
	}
	err := e.store.InTx(ctx, func(r *repositories.Repos) error {
		if err := uniqueName(r, label); err != nil {
			return err
		}
		if err := validateParent(r, label); err != nil {
			return err
		}
		return r.Labels.Create(label)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("label created", "label", label.ID, "name", label.Name, "type", label.Type)
	return label, nil
}

// UpdateLabel applies a patch. When the label's name or type changes, its playlist is renamed remotely
// to the generated name and description.
func (e *Engine) UpdateLabel(ctx context.Context, cred models.Credential, id int64, patch models.LabelPatch) (*models.Label, error) {
	repos := e.store.Repos()
	label, err := repos.Labels.Get(id)
	if err != nil {
		return nil, err
	}
	before := *label
	patch.Apply(label)
	if err := label.Validate(); err != nil {
		return nil, err
	}
	if label.Name != before.Name {
		if err := uniqueName(repos, label); err != nil {
			return nil, err
		}
	}
	if err := validateParent(repos, label); err != nil {
		return nil, err
	}
	if label.Type != models.LabelGenre {
		children, err := repos.Labels.Children(id)
		if err != nil {
			return nil, err
		}
		if len(children) > 0 {
			return nil, fmt.Errorf("%w: label %d has subgenres and must stay a genre", shared.ErrInvalidLabel, id)
		}
	}

	pl, err := repos.Playlists.ByLabel(id)
	if err != nil && !errors.Is(err, shared.ErrPlaylistNotFound) {
		return nil, err
	}
	rename := pl != nil && (label.Name != before.Name || label.Type != before.Type)
	if !rename {
		if err := e.store.InTx(ctx, func(r *repositories.Repos) error { return r.Labels.Update(label) }); err != nil {
			return nil, err
		}
		return label, nil
	}

	client, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	name, description := models.LabelPlaylistName(label), models.LabelPlaylistDescription(label)
	if err := client.UpdateDetails(ctx, pl.ID, &name, &description); err != nil {
		return nil, fmt.Errorf("failed to rename playlist %s for label %d: %w", pl.ID, id, err)
	}

	err = e.commit(ctx, "update_label", func(r *repositories.Repos) error {
		if err := r.Labels.Update(label); err != nil {
			return err
		}
		renamed := *pl
		renamed.Name, renamed.Description = name, description
		return r.Playlists.Update(&renamed)
	})
	if err != nil {
		return nil, err
	}
	return label, nil
}

// DeleteLabel removes a label and its subgenres. Their playlists become mixes; the remote playlists are
// left as they are.
func (e *Engine) DeleteLabel(ctx context.Context, id int64) error {
	err := e.store.InTx(ctx, func(r *repositories.Repos) error { return r.Labels.Delete(id) })
	if err != nil {
		return err
	}
	e.logger.Info("label deleted", "label", id)
	return nil
}

// LabelTracks tags tracks with a label. Tracks missing from the label's playlist are pushed to it so
// the playlist keeps matching the label; tracks that could not be pushed are not tagged.
func (e *Engine) LabelTracks(ctx context.Context, cred models.Credential, req models.LabelTracks) (*LabelResult, error) {
	label, pl, ids, err := e.prepareTagging(req, true)
	if err != nil {
		return nil, err
	}

	if pl == nil {
		n := 0
		err := e.store.InTx(ctx, func(r *repositories.Repos) error {
			n, err = r.Links.AddLabelTracks(label.ID, ids)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &LabelResult{Label: label, Tracks: n}, nil
	}

	members, err := e.store.Repos().Links.PlaylistTrackIDs(pl.ID)
	if err != nil {
		return nil, err
	}
	push := shared.Difference(ids, members)

	changes := models.PlaylistChanges{ID: pl.ID, SnapshotID: pl.SnapshotID}
	pushed := push
	var pushErr error
	if len(push) > 0 {
		client, err := e.client(ctx, cred)
		if err != nil {
			return nil, err
		}
		res, err := client.AddTracks(ctx, pl.ID, push)
		if err != nil {
			pushErr = err
			pushed, res.SnapshotID = appliedPrefix(push, err, "")
		}
		changes = changes.Merge(models.PlaylistChanges{SnapshotID: res.SnapshotID, TrackCountDelta: len(pushed)})
	}
	tagged := shared.Difference(ids, shared.Difference(push, pushed))

	n := 0
	err = e.commit(ctx, "label_tracks", func(r *repositories.Repos) error {
		if n, err = r.Links.AddLabelTracks(label.ID, tagged); err != nil {
			return err
		}
		if _, err := r.Links.AddPlaylistTracks(pl.ID, pushed); err != nil {
			return err
		}
		return r.Playlists.Reconciled(pl.ID, changes.SnapshotID, pushErr != nil, true)
	})
	if err != nil {
		return nil, err
	}
	if pushErr != nil {
		return nil, fmt.Errorf("tagged %d of %d tracks with label %d: %w", len(tagged), len(ids), label.ID, pushErr)
	}
	return &LabelResult{Label: label, Tracks: n, Changes: &changes}, nil
}

// UnlabelTracks removes a label from tracks and removes them from the label's playlist.
func (e *Engine) UnlabelTracks(ctx context.Context, cred models.Credential, req models.LabelTracks) (*LabelResult, error) {
	label, pl, ids, err := e.prepareTagging(req, false)
	if err != nil {
		return nil, err
	}

	if pl == nil {
		n := 0
		err := e.store.InTx(ctx, func(r *repositories.Repos) error {
			n, err = r.Links.RemoveLabelTracks(label.ID, ids)
			return err
		})
		if err != nil {
			return nil, err
		}
		return &LabelResult{Label: label, Tracks: n}, nil
	}

	members, err := e.store.Repos().Links.PlaylistTrackIDs(pl.ID)
	if err != nil {
		return nil, err
	}
	drop := shared.Intersect(ids, members)

	changes := models.PlaylistChanges{ID: pl.ID, SnapshotID: pl.SnapshotID}
	dropped := drop
	var dropErr error
	if len(drop) > 0 {
		client, err := e.client(ctx, cred)
		if err != nil {
			return nil, err
		}
		res, err := client.RemoveTracks(ctx, pl.ID, drop, pl.SnapshotID)
		if err != nil {
			dropErr = err
			dropped, res.SnapshotID = appliedPrefix(drop, err, "")
		}
		changes = changes.Merge(models.PlaylistChanges{SnapshotID: res.SnapshotID, TrackCountDelta: -len(dropped)})
	}
	untagged := shared.Difference(ids, shared.Difference(drop, dropped))

	n := 0
	err = e.commit(ctx, "unlabel_tracks", func(r *repositories.Repos) error {
		if n, err = r.Links.RemoveLabelTracks(label.ID, untagged); err != nil {
			return err
		}
		if _, err := r.Links.RemovePlaylistTracks(pl.ID, dropped); err != nil {
			return err
		}
		return r.Playlists.Reconciled(pl.ID, changes.SnapshotID, dropErr != nil, true)
	})
	if err != nil {
		return nil, err
	}
	if dropErr != nil {
		return nil, fmt.Errorf("untagged %d of %d tracks from label %d: %w", len(untagged), len(ids), label.ID, dropErr)
	}
	return &LabelResult{Label: label, Tracks: n, Changes: &changes}, nil
}

// prepareTagging validates a tagging request and loads the label's playlist, if it has one.
func (e *Engine) prepareTagging(req models.LabelTracks, add bool) (*models.Label, *models.Playlist, []string, error) {
	if len(req.TrackIDs) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no tracks given", shared.ErrInvalidInput)
	}
	repos := e.store.Repos()
	label, err := repos.Labels.Get(req.LabelID)
	if err != nil {
		return nil, nil, nil, err
	}
	ids := shared.Unique(req.TrackIDs)
	if add {
		if err := requireTracks(repos, ids); err != nil {
			return nil, nil, nil, err
		}
	}
	pl, err := repos.Playlists.ByLabel(label.ID)
	if errors.Is(err, shared.ErrPlaylistNotFound) {
		return label, nil, ids, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return label, pl, ids, nil
}

func uniqueName(r *repositories.Repos, label *models.Label) error {
	existing, err := r.Labels.GetByName(label.Name)
	if errors.Is(err, shared.ErrLabelNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != label.ID {
		return fmt.Errorf("%w: a label named %q already exists", shared.ErrInvalidInput, label.Name)
	}
	return nil
}

// validateParent checks that a subgenre's parent exists, is a genre and is not one of its descendants.
func validateParent(r *repositories.Repos, label *models.Label) error {
	if label.ParentID == nil {
		return nil
	}
	parent, err := r.Labels.Get(*label.ParentID)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidLabel, err)
	}
	if parent.Type != models.LabelGenre {
		return fmt.Errorf("%w: parent %d is a %s, not a genre", shared.ErrInvalidLabel, parent.ID, parent.Type)
	}
	if label.ID == 0 {
		return nil
	}
	subtree, err := r.Labels.Subtree(label.ID)
	if err != nil {
		return err
	}
	if slices.Contains(subtree, parent.ID) {
		return fmt.Errorf("%w: label %d cannot be nested under its own subgenre %d", shared.ErrInvalidLabel, label.ID, parent.ID)
	}
	return nil
}

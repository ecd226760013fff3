package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/moodmusic/internal/formatter"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

type playlistFunc func(*tasks.Engine, context.Context, models.Credential, string) (*tasks.PlaylistResult, error)

var pastTense = map[string]string{
	"create":  "Created",
	"update":  "Updated",
	"delete":  "Deleted",
	"restore": "Restored",
	"sync":    "Synced",
	"revert":  "Reverted",
	"dedupe":  "Deduplicated",
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// PlaylistsList lists mirrored playlists, optionally filtered by type.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	var types []models.PlaylistType
	for _, t := range cmd.StringSlice("type") {
		pt := models.PlaylistType(strings.ToLower(t))
		if !pt.Valid() {
			return fmt.Errorf("%w: unknown playlist type %q", shared.ErrInvalidArgument, t)
		}
		types = append(types, pt)
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	playlists, err := engine.Playlists(types...)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}
	if len(playlists) == 0 {
		return r.writePlain("No playlists mirrored yet. Run 'moodmusic library refresh'.\n")
	}
	return formatter.PlaylistTable(r.output, playlists)
}

// PlaylistsShow prints a playlist and its recorded tracks.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	playlist, err := engine.Playlist(id)
	if err != nil {
		return err
	}
	tracks, err := engine.PlaylistTracks(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"playlist": playlist, "tracks": tracks}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(playlist.Name)
	if playlist.Description != "" {
		r.writePlain("%s\n", playlist.Description)
	}
	r.writePlain("ID: %s  Type: %s  Tracks: %s\n", playlist.ID, playlist.Type, humanize.Comma(int64(playlist.TrackCount)))
	if playlist.Updates {
		r.writePlain("⚠ Remote changes pending; run 'moodmusic playlists sync %s'\n", playlist.ID)
	}
	r.writePlain("\n")
	return formatter.TrackTable(r.output, tracks)
}

// PlaylistsCreate creates a label or mix playlist remotely and records it.
func (r *Runner) PlaylistsCreate(ctx context.Context, cmd *cli.Command) error {
	req := models.NewPlaylist{
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
		Type:        models.PlaylistType(strings.ToLower(cmd.String("type"))),
		TrackIDs:    cmd.StringSlice("track"),
	}
	if cmd.IsSet("label") {
		id := cmd.Int64("label")
		req.LabelID = &id
	}

	engine, cred, err := r.session()
	if err != nil {
		return err
	}
	result, err := engine.CreatePlaylist(ctx, cred, req)
	if err != nil {
		return err
	}
	return r.writeResult(cmd, "create", result)
}

// PlaylistsUpdate applies the flags that were given as a partial update.
func (r *Runner) PlaylistsUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	var patch models.PlaylistPatch
	if cmd.IsSet("name") {
		name := cmd.String("name")
		patch.Name = &name
	}
	if cmd.IsSet("description") {
		desc := cmd.String("description")
		patch.Description = &desc
	}
	if cmd.IsSet("type") {
		typ := models.PlaylistType(strings.ToLower(cmd.String("type")))
		patch.Type = &typ
	}
	if cmd.IsSet("label") {
		label := cmd.Int64("label")
		patch.LabelID = &label
	}
	if patch.Empty() {
		return fmt.Errorf("%w: nothing to update; pass --name, --description, --type or --label", shared.ErrMissingArgument)
	}

	engine, cred, err := r.session()
	if err != nil {
		return err
	}
	result, err := engine.UpdatePlaylist(ctx, cred, id, patch)
	if err != nil {
		return err
	}
	return r.writeResult(cmd, "update", result)
}

// playlistOp adapts a single-playlist engine operation into a command action.
func (r *Runner) playlistOp(name string, op playlistFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := requireArg(cmd, "id")
		if err != nil {
			return err
		}

		engine, cred, err := r.session()
		if err != nil {
			return err
		}

		r.logger.Debug("playlist operation", "op", name, "playlist", id)
		result, err := op(engine, ctx, cred, id)
		if err != nil {
			return err
		}
		return r.writeResult(cmd, name, result)
	}
}

func (r *Runner) writeResult(cmd *cli.Command, op string, result *tasks.PlaylistResult) error {
	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	pl := result.Playlist
	r.writePlain("✓ %s playlist %s (%s)\n", pastTense[op], pl.Name, pl.ID)
	r.writePlain("  Type:     %s\n", pl.Type)
	r.writePlain("  Tracks:   %s (%+d)\n", humanize.Comma(int64(pl.TrackCount)), result.Changes.TrackCountDelta)
	if result.Changes.SnapshotID != "" {
		r.writePlain("  Snapshot: %s\n", result.Changes.SnapshotID)
	}
	return nil
}

// PlaylistsAdd adds the same tracks to every named playlist.
func (r *Runner) PlaylistsAdd(ctx context.Context, cmd *cli.Command) error {
	return r.bulk(ctx, cmd, "Adding tracks", (*tasks.Engine).BulkAddTracks)
}

// PlaylistsRemove removes the same tracks from every named playlist.
func (r *Runner) PlaylistsRemove(ctx context.Context, cmd *cli.Command) error {
	return r.bulk(ctx, cmd, "Removing tracks", (*tasks.Engine).BulkRemoveTracks)
}

type bulkFunc func(*tasks.Engine, context.Context, models.Credential, []models.PlaylistTracks, chan<- tasks.ProgressUpdate) ([]tasks.Outcome, error)

func (r *Runner) bulk(ctx context.Context, cmd *cli.Command, description string, op bulkFunc) error {
	trackIDs := cmd.StringSlice("track")
	var reqs []models.PlaylistTracks
	for _, id := range cmd.StringSlice("playlist") {
		reqs = append(reqs, models.PlaylistTracks{PlaylistID: id, TrackIDs: trackIDs})
	}

	engine, cred, err := r.session()
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, len(reqs)+1)
	done := r.showProgress(description, progress)
	outcomes, err := op(engine, ctx, cred, reqs, progress)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	var failed []error
	if cmd.Bool("json") {
		type outcomeJSON struct {
			tasks.Outcome
			Error string `json:"error,omitempty"`
		}
		out := make([]outcomeJSON, len(outcomes))
		for i, o := range outcomes {
			out[i] = outcomeJSON{Outcome: o}
			if o.Err != nil {
				out[i].Error = o.Err.Error()
				failed = append(failed, o.Err)
			}
		}
		if err := r.writeJSON(out, cmd.Bool("pretty")); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Err != nil {
				r.writePlain("✗ %s: %v\n", o.PlaylistID, o.Err)
				failed = append(failed, o.Err)
				continue
			}
			r.writePlain("✓ %s: %+d tracks (snapshot %s)\n", o.PlaylistID, o.Changes.TrackCountDelta, o.Changes.SnapshotID)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d playlists failed: %w", len(failed), len(outcomes), errors.Join(failed...))
	}
	return nil
}

// PlaylistsExport writes mirrored playlists to disk with a bounded worker pool.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:     strings.ToLower(cmd.String("format")),
		OutputDir:  cmd.String("output"),
		NumWorkers: cmd.Int("workers"),
		Covers:     cmd.Bool("covers"),
	}

	progress := make(chan tasks.ProgressUpdate, 32)
	done := r.showProgress("Exporting playlists", progress)
	result, err := engine.ExportPlaylists(ctx, progress, cmd.StringSlice("playlist"), opts)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %d of %d playlists as %s to %s\n",
		result.SuccessfulExports, result.TotalPlaylists, result.Format, result.OutputDirectory)
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("  ✗ %s: %s\n", res.PlaylistName, res.ErrorMessage)
		}
	}
	if result.ManifestPath != "" {
		r.writePlain("  Manifest: %s\n", result.ManifestPath)
	}
	return nil
}

// TracksList lists mirrored tracks.
func (r *Runner) TracksList(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}
	tracks, err := engine.Tracks(cmd.Bool("liked"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}
	return formatter.TrackTable(r.output, tracks)
}

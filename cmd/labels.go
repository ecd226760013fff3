package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/moodmusic/internal/formatter"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/urfave/cli/v3"
)

func labelArg(cmd *cli.Command) (int64, error) {
	raw, err := requireArg(cmd, "id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: label id %q is not a number", shared.ErrInvalidArgument, raw)
	}
	return id, nil
}

// LabelsList lists labels with subgenres under their parents.
func (r *Runner) LabelsList(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}
	labels, err := engine.Labels()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(labels, cmd.Bool("pretty"))
	}
	return formatter.LabelTable(r.output, labels)
}

// LabelsShow prints a label and the tracks tagged with it.
func (r *Runner) LabelsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := labelArg(cmd)
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	label, err := engine.Label(id)
	if err != nil {
		return err
	}
	tracks, err := engine.TracksForLabel(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"label": label, "tracks": tracks}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (%s)", label.Name, label.Type))
	r.writePlain("\n")
	return formatter.TrackTable(r.output, tracks)
}

// LabelsCreate creates a genre or mood label. Labels are local until a playlist is created for them.
func (r *Runner) LabelsCreate(ctx context.Context, cmd *cli.Command) error {
	label := &models.Label{
		Name:  cmd.String("name"),
		Type:  models.LabelType(strings.ToLower(cmd.String("type"))),
		Color: cmd.String("color"),
	}
	if cmd.IsSet("parent") {
		parent := cmd.Int64("parent")
		label.ParentID = &parent
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	created, err := engine.CreateLabel(ctx, label)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(created, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Created %s label %s (%d)\n", created.Type, created.Name, created.ID)
}

// LabelsUpdate applies a partial label update. Renaming a label with a playlist renames the playlist too.
func (r *Runner) LabelsUpdate(ctx context.Context, cmd *cli.Command) error {
	id, err := labelArg(cmd)
	if err != nil {
		return err
	}

	var patch models.LabelPatch
	if cmd.IsSet("name") {
		name := cmd.String("name")
		patch.Name = &name
	}
	if cmd.IsSet("type") {
		typ := models.LabelType(strings.ToLower(cmd.String("type")))
		patch.Type = &typ
	}
	if cmd.IsSet("color") {
		color := cmd.String("color")
		patch.Color = &color
	}
	if cmd.IsSet("parent") {
		parent := cmd.Int64("parent")
		patch.ParentID = &parent
	}
	patch.ClearParent = cmd.Bool("clear-parent")

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	// Only needed when the label has a playlist; the engine reports a missing login in that case.
	cred, _ := engine.StoredCredential()

	updated, err := engine.UpdateLabel(ctx, cred, id, patch)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(updated, cmd.Bool("pretty"))
	}
	return r.writePlain("✓ Updated %s label %s (%d)\n", updated.Type, updated.Name, updated.ID)
}

// LabelsDelete removes a label. Its playlist, if any, is kept as a mix.
func (r *Runner) LabelsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := labelArg(cmd)
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	if err := engine.DeleteLabel(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted label %d\n", id)
}

// LabelsTag tags tracks with a label, adding them to the label's playlist when it has one.
func (r *Runner) LabelsTag(ctx context.Context, cmd *cli.Command) error {
	return r.tagging(ctx, cmd, "Tagged", (*tasks.Engine).LabelTracks)
}

// LabelsUntag removes a label from tracks, removing them from the label's playlist when it has one.
func (r *Runner) LabelsUntag(ctx context.Context, cmd *cli.Command) error {
	return r.tagging(ctx, cmd, "Untagged", (*tasks.Engine).UnlabelTracks)
}

type taggingFunc func(*tasks.Engine, context.Context, models.Credential, models.LabelTracks) (*tasks.LabelResult, error)

func (r *Runner) tagging(ctx context.Context, cmd *cli.Command, verb string, op taggingFunc) error {
	id, err := labelArg(cmd)
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	cred, _ := engine.StoredCredential()

	result, err := op(engine, ctx, cred, models.LabelTracks{LabelID: id, TrackIDs: cmd.StringSlice("track")})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.writePlain("✓ %s %d tracks with %s\n", verb, result.Tracks, result.Label.Name)
	if result.Changes != nil {
		r.writePlain("  Playlist %s: %+d tracks (snapshot %s)\n", result.Changes.ID, result.Changes.TrackCountDelta, result.Changes.SnapshotID)
	}
	return nil
}

package main

import (
	"context"

	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// LibraryRefresh mirrors the stored user's liked tracks and followed playlists.
func (r *Runner) LibraryRefresh(ctx context.Context, cmd *cli.Command) error {
	engine, cred, err := r.session()
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := r.showProgress("Refreshing library", progress)
	result, err := engine.RefreshLibrary(ctx, cred, progress)
	close(progress)
	<-done

	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}

	r.writePlain("✓ Library refreshed for %s\n", result.UserID)
	r.writePlain("  Liked tracks: %s\n", humanize.Comma(int64(result.Liked)))
	r.writePlain("  Playlists:    %s\n", humanize.Comma(int64(result.Playlists)))
	if result.Changed {
		r.writePlain("  Some playlists changed remotely; see 'moodmusic playlists list'\n")
	}
	return nil
}

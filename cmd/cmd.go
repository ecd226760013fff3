// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/urfave/cli/v3"
)

func outputFlags(extra ...cli.Flag) []cli.Flag {
	return append(extra,
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	)
}

func trackFlag(required bool) *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:     "track",
		Aliases:  []string{"t"},
		Usage:    "Track ID (repeatable)",
		Required: required,
	}
}

// setupCommand handles database setup and migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles Spotify login.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize with Spotify using OAuth2 and store the account",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: loginTimeout,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the stored account",
				Flags:  outputFlags(),
				Action: r.AuthStatus,
			},
		},
	}
}

// libraryCommand mirrors the remote library.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "library",
		Usage: "Mirror the Spotify library",
		Commands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Fetch liked tracks and followed playlists",
				Flags:  outputFlags(),
				Action: r.LibraryRefresh,
			},
		},
	}
}

// playlistsCommand handles playlist operations.
func playlistsCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Mirrored playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List mirrored playlists",
				Flags: outputFlags(
					&cli.StringSliceFlag{
						Name:  "type",
						Usage: "Filter by type: untracked, label, mix, deleted (repeatable)",
					},
				),
				Action: r.PlaylistsList,
			},
			{
				Name:      "show",
				Usage:     "Show a playlist and its tracks",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.PlaylistsShow,
			},
			{
				Name:  "create",
				Usage: "Create a label or mix playlist",
				Flags: outputFlags(
					&cli.StringFlag{
						Name:  "type",
						Usage: "Playlist type: label or mix",
						Value: "mix",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist name (mix only)",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Playlist description",
					},
					&cli.Int64Flag{
						Name:  "label",
						Usage: "Label ID (label playlists only)",
					},
					trackFlag(false),
				),
				Action: r.PlaylistsCreate,
			},
			{
				Name:      "update",
				Usage:     "Rename, re-describe or retype a playlist",
				Arguments: idArg,
				Flags: outputFlags(
					&cli.StringFlag{
						Name:  "name",
						Usage: "New name",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "New description",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "New type: untracked, label, mix",
					},
					&cli.Int64Flag{
						Name:  "label",
						Usage: "Label ID when switching to a label playlist",
					},
				),
				Action: r.PlaylistsUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Unfollow a playlist, keeping it for restore",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.playlistOp("delete", (*tasks.Engine).DeletePlaylist),
			},
			{
				Name:      "restore",
				Usage:     "Follow a deleted playlist again",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.playlistOp("restore", (*tasks.Engine).RestorePlaylist),
			},
			{
				Name:      "sync",
				Usage:     "Pull remote membership into the mirror",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.playlistOp("sync", (*tasks.Engine).SyncPlaylist),
			},
			{
				Name:      "revert",
				Usage:     "Overwrite remote membership with the mirror",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.playlistOp("revert", (*tasks.Engine).RevertPlaylist),
			},
			{
				Name:      "dedupe",
				Usage:     "Remove duplicate tracks, keeping first occurrences",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.playlistOp("dedupe", (*tasks.Engine).RemoveDuplicates),
			},
			{
				Name:  "add",
				Usage: "Add tracks to one or more playlists",
				Flags: outputFlags(
					&cli.StringSliceFlag{
						Name:     "playlist",
						Aliases:  []string{"p"},
						Usage:    "Playlist ID (repeatable)",
						Required: true,
					},
					trackFlag(true),
				),
				Action: r.PlaylistsAdd,
			},
			{
				Name:  "remove",
				Usage: "Remove tracks from one or more playlists",
				Flags: outputFlags(
					&cli.StringSliceFlag{
						Name:     "playlist",
						Aliases:  []string{"p"},
						Usage:    "Playlist ID (repeatable)",
						Required: true,
					},
					trackFlag(true),
				),
				Action: r.PlaylistsRemove,
			},
			{
				Name:  "export",
				Usage: "Export mirrored playlists to files",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "playlist",
						Aliases: []string{"p"},
						Usage:   "Playlist ID (repeatable; default: every live playlist)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown, txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: moodmusic_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "covers",
						Usage: "Download cover art for markdown exports",
					},
				},
				Action: r.PlaylistsExport,
			},
		},
	}
}

// tracksCommand lists mirrored tracks.
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "Mirrored track operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List mirrored tracks",
				Flags: outputFlags(
					&cli.BoolFlag{
						Name:  "liked",
						Usage: "Only liked tracks",
					},
				),
				Action: r.TracksList,
			},
		},
	}
}

// labelsCommand handles label operations.
func labelsCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:    "labels",
		Aliases: []string{"lb"},
		Usage:   "Genre and mood label operations",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List labels",
				Flags:  outputFlags(),
				Action: r.LabelsList,
			},
			{
				Name:      "show",
				Usage:     "Show a label and its tracks",
				Arguments: idArg,
				Flags:     outputFlags(),
				Action:    r.LabelsShow,
			},
			{
				Name:  "create",
				Usage: "Create a label",
				Flags: outputFlags(
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Label name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Label type: genre or mood",
						Value: "genre",
					},
					&cli.StringFlag{
						Name:  "color",
						Usage: "Hex color, e.g. #1db954",
					},
					&cli.Int64Flag{
						Name:  "parent",
						Usage: "Parent genre ID",
					},
				),
				Action: r.LabelsCreate,
			},
			{
				Name:      "update",
				Usage:     "Update a label; renames propagate to its playlist",
				Arguments: idArg,
				Flags: outputFlags(
					&cli.StringFlag{
						Name:  "name",
						Usage: "New name",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "New type: genre or mood",
					},
					&cli.StringFlag{
						Name:  "color",
						Usage: "New hex color",
					},
					&cli.Int64Flag{
						Name:  "parent",
						Usage: "New parent genre ID",
					},
					&cli.BoolFlag{
						Name:  "clear-parent",
						Usage: "Detach from the parent genre",
					},
				),
				Action: r.LabelsUpdate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a label; its playlist becomes a mix",
				Arguments: idArg,
				Action:    r.LabelsDelete,
			},
			{
				Name:      "tag",
				Usage:     "Tag tracks with a label",
				Arguments: idArg,
				Flags:     outputFlags(trackFlag(true)),
				Action:    r.LabelsTag,
			},
			{
				Name:      "untag",
				Usage:     "Remove a label from tracks",
				Arguments: idArg,
				Flags:     outputFlags(trackFlag(true)),
				Action:    r.LabelsUntag,
			},
		},
	}
}

// serveCommand runs the HTTP API and background library poller.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and poll the library in the background",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-poll",
				Usage: "Disable background library refreshes",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive playlist management.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI to browse and reconcile playlists",
		Action:  r.TUI,
	}
}

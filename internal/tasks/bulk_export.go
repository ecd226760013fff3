package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/moodmusic/internal/formatter"
	"github.com/desertthunder/moodmusic/internal/models"
)

// ExportOpts contains configuration for bulk playlist exports.
type ExportOpts struct {
	Format     string // Export format: json, csv, markdown, txt
	OutputDir  string // Base output directory (default: moodmusic_export_{epoch})
	NumWorkers int    // Concurrent workers (default: 4)
	Covers     bool   // Download album art for markdown exports
}

// ExportResult summarizes a bulk export; it is also written as the manifest.
type ExportResult struct {
	TotalPlaylists    int                    `json:"total_playlists"`
	SuccessfulExports int                    `json:"successful_exports"`
	FailedExports     int                    `json:"failed_exports"`
	OutputDirectory   string                 `json:"output_directory"`
	ManifestPath      string                 `json:"-"`
	Format            string                 `json:"format"`
	ExportedAt        time.Time              `json:"exported_at"`
	Results           []PlaylistExportResult `json:"results"`
}

// PlaylistExportResult is the outcome of exporting one playlist.
type PlaylistExportResult struct {
	PlaylistID   string   `json:"playlist_id"`
	PlaylistName string   `json:"playlist_name"`
	Success      bool     `json:"success"`
	Files        []string `json:"files"`
	Error        error    `json:"-"`
	ErrorMessage string   `json:"error,omitempty"`
}

type exportJob struct {
	PlaylistID string
	Export     *formatter.PlaylistExport
}

// ExportPlaylists writes mirrored playlists to files using a worker pool. An empty ids exports every
// playlist that is not deleted. Failures are recorded per playlist and a manifest summarizes the run.
func (e *Engine) ExportPlaylists(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts ExportOpts) (*ExportResult, error) {
	if len(ids) == 0 {
		pls, err := e.Playlists(models.PlaylistUntracked, models.PlaylistLabel, models.PlaylistMix)
		if err != nil {
			return nil, err
		}
		for _, p := range pls {
			ids = append(ids, p.ID)
		}
	}

	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("moodmusic_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{
		TotalPlaylists:  len(ids),
		OutputDirectory: opts.OutputDir,
		Format:          opts.Format,
		ExportedAt:      time.Now().UTC(),
		Results:         make([]PlaylistExportResult, 0, len(ids)),
	}

	jobs := make(chan exportJob, len(ids))
	results := make(chan PlaylistExportResult, len(ids))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if ctx.Err() != nil {
				return
			}
			export, err := e.loadExport(id)
			if err != nil {
				results <- PlaylistExportResult{
					PlaylistID:   id,
					PlaylistName: fmt.Sprintf("Unknown (%s)", id),
					Error:        fmt.Errorf("failed to load playlist: %w", err),
				}
				continue
			}
			sendProgress(prog, exportingPlaylistUpdate(i+1, len(ids), export.Playlist.Name))
			jobs <- exportJob{PlaylistID: id, Export: export}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		if res.Error != nil {
			res.ErrorMessage = res.Error.Error()
		}
		result.Results = append(result.Results, res)

		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.PlaylistName, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(ids), res.PlaylistName, res.Error))
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// loadExport gathers a playlist, its tracks, their albums and its label from the store.
func (e *Engine) loadExport(id string) (*formatter.PlaylistExport, error) {
	repos := e.store.Repos()
	pl, err := repos.Playlists.Get(id)
	if err != nil {
		return nil, err
	}
	tracks, err := repos.Tracks.ForPlaylist(id)
	if err != nil {
		return nil, err
	}

	export := &formatter.PlaylistExport{Playlist: *pl, Tracks: tracks, Albums: map[string]models.Album{}}
	for _, t := range tracks {
		if t.AlbumID == nil {
			continue
		}
		if _, ok := export.Albums[*t.AlbumID]; ok {
			continue
		}
		album, err := repos.Albums.Get(*t.AlbumID)
		if err != nil {
			return nil, err
		}
		export.Albums[album.ID] = *album
	}
	if pl.LabelID != nil {
		if export.Label, err = repos.Labels.Get(*pl.LabelID); err != nil {
			return nil, err
		}
	}
	return export, nil
}

// exportWorker is a worker goroutine that exports playlists from the jobs channel.
func (e *Engine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan exportJob,
	results chan<- PlaylistExportResult,
	opts ExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			return
		}
		results <- exportSinglePlaylist(job, opts)
	}
}

// exportSinglePlaylist exports a single playlist to the appropriate format.
func exportSinglePlaylist(j exportJob, opts ExportOpts) PlaylistExportResult {
	result := PlaylistExportResult{
		PlaylistID:   j.PlaylistID,
		PlaylistName: j.Export.Playlist.Name,
		Files:        []string{},
	}

	switch opts.Format {
	case "csv":
		csvRes, err := formatter.WriteCSVExport(j.Export, filepath.Join(opts.OutputDir, j.PlaylistID))
		if err != nil {
			result.Error = fmt.Errorf("CSV export failed: %w", err)
			return result
		}
		result.Files = []string{csvRes.TracksFile, csvRes.MetadataFile}

	case "markdown":
		imageURL := ""
		if opts.Covers {
			imageURL = j.Export.CoverURL()
		}
		mdRes, err := formatter.WriteMarkdownExport(j.Export, filepath.Join(opts.OutputDir, j.PlaylistID), imageURL)
		if err != nil {
			result.Error = fmt.Errorf("markdown export failed: %w", err)
			return result
		}
		result.Files = mdRes.Files

	case "txt":
		path, err := formatter.WriteTextExport(j.Export, filepath.Join(opts.OutputDir, j.PlaylistID+"_tracks.txt"))
		if err != nil {
			result.Error = fmt.Errorf("text export failed: %w", err)
			return result
		}
		result.Files = []string{path}

	case "json":
		path, err := formatter.WriteJSONExport(j.Export, filepath.Join(opts.OutputDir, j.PlaylistID+".json"))
		if err != nil {
			result.Error = err
			return result
		}
		result.Files = []string{path}

	default:
		result.Error = fmt.Errorf("unsupported export format %q", opts.Format)
		return result
	}

	result.Success = true
	return result
}

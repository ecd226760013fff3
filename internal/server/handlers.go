package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/desertthunder/moodmusic/internal/tasks"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.writeError(w, r, fmt.Errorf("%w: login is not configured", shared.ErrServiceUnavailable))
		return
	}
	http.Redirect(w, r, s.auth.AuthURL(s.states.issue()), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.writeError(w, r, fmt.Errorf("%w: login is not configured", shared.ErrServiceUnavailable))
		return
	}

	code, err := callbackCode(s.states, r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.engine.Authenticate(r.Context(), tok)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user logged in", "user", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// credential resolves the stored login, writing 401 when there is none.
func (s *Server) credential(w http.ResponseWriter, r *http.Request) (models.Credential, bool) {
	cred, err := s.engine.StoredCredential()
	if err != nil {
		s.writeError(w, r, err)
		return models.Credential{}, false
	}
	return cred, true
}

func labelID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: label id %q", shared.ErrInvalidInput, raw)
	}
	return id, nil
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	var types []models.PlaylistType
	for _, raw := range r.URL.Query()["type"] {
		t := models.PlaylistType(raw)
		if !t.Valid() {
			s.writeError(w, r, fmt.Errorf("%w: unknown playlist type %q", shared.ErrInvalidInput, raw))
			return
		}
		types = append(types, t)
	}

	playlists, err := s.engine.Playlists(types...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	pl, err := s.engine.Playlist(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.engine.PlaylistTracks(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}

	res, err := s.engine.CreatePlaylist(r.Context(), cred, req.model())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req updatePlaylistRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.UpdatePlaylist(r.Context(), cred, id, req.model())
	})
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.DeletePlaylist(r.Context(), cred, id)
	})
}

func (s *Server) handleRestorePlaylist(w http.ResponseWriter, r *http.Request) {
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.RestorePlaylist(r.Context(), cred, id)
	})
}

func (s *Server) handleSyncPlaylist(w http.ResponseWriter, r *http.Request) {
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.SyncPlaylist(r.Context(), cred, id)
	})
}

func (s *Server) handleRevertPlaylist(w http.ResponseWriter, r *http.Request) {
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.RevertPlaylist(r.Context(), cred, id)
	})
}

func (s *Server) handleDedupePlaylist(w http.ResponseWriter, r *http.Request) {
	s.playlistOp(w, r, func(cred models.Credential, id string) (*tasks.PlaylistResult, error) {
		return s.engine.RemoveDuplicates(r.Context(), cred, id)
	})
}

// playlistOp runs a credentialed single-playlist operation and writes its result.
func (s *Server) playlistOp(w http.ResponseWriter, r *http.Request, op func(models.Credential, string) (*tasks.PlaylistResult, error)) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}
	res, err := op(cred, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, s.engine.BulkAddTracks)
}

func (s *Server) handleBulkRemove(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, s.engine.BulkRemoveTracks)
}

type bulkFunc func(ctx context.Context, cred models.Credential, reqs []models.PlaylistTracks, progress chan<- tasks.ProgressUpdate) ([]tasks.Outcome, error)

func (s *Server) bulk(w http.ResponseWriter, r *http.Request, run bulkFunc) {
	var req bulkTracksRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}

	outcomes, err := run(r.Context(), cred, req.model(), nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]outcomeResponse, len(outcomes))
	for i, o := range outcomes {
		resp[i] = outcomeResponse{PlaylistID: o.PlaylistID, Changes: o.Changes, Status: http.StatusOK}
		if o.Err != nil {
			status, code := statusFor(o.Err)
			resp[i].Status = status
			resp[i].Error = &ErrorDetail{Code: code, Message: o.Err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": resp})
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	liked := false
	if raw := r.URL.Query().Get("liked"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: liked=%q", shared.ErrInvalidInput, raw))
			return
		}
		liked = v
	}

	tracks, err := s.engine.Tracks(liked)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.engine.Labels()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	id, err := labelID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	label, err := s.engine.Label(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var req createLabelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	label, err := s.engine.CreateLabel(r.Context(), req.model())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, label)
}

func (s *Server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	id, err := labelID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateLabelRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Only a rename of a label with a playlist reaches the remote service, so the engine decides
	// whether a missing login matters.
	cred, _ := s.engine.StoredCredential()
	label, err := s.engine.UpdateLabel(r.Context(), cred, id, req.model())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	id, err := labelID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.DeleteLabel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLabelTracks(w http.ResponseWriter, r *http.Request) {
	id, err := labelID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tracks, err := s.engine.TracksForLabel(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleTagTracks(w http.ResponseWriter, r *http.Request) {
	s.tagging(w, r, s.engine.LabelTracks)
}

func (s *Server) handleUntagTracks(w http.ResponseWriter, r *http.Request) {
	s.tagging(w, r, s.engine.UnlabelTracks)
}

type taggingFunc func(ctx context.Context, cred models.Credential, req models.LabelTracks) (*tasks.LabelResult, error)

func (s *Server) tagging(w http.ResponseWriter, r *http.Request, run taggingFunc) {
	id, err := labelID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req labelTracksRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	// A label without a playlist is tagged locally, so a missing login is only fatal once the engine needs it.
	cred, _ := s.engine.StoredCredential()
	res, err := run(r.Context(), cred, models.LabelTracks{LabelID: id, TrackIDs: req.TrackIDs})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefreshLibrary(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.credential(w, r)
	if !ok {
		return
	}
	res, err := s.engine.RefreshLibrary(r.Context(), cred, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

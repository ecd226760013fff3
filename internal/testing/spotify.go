package testing

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const fakeMaxItems = 100

// FakePlaylist is the fake service's record of one playlist.
type FakePlaylist struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Tracks      []string
	Version     int
	Following   bool
}

// Snapshot is the playlist's current snapshot token.
func (p *FakePlaylist) Snapshot() string {
	return fmt.Sprintf("%s-v%d", p.ID, p.Version)
}

// Call records one request received by [FakeSpotify].
type Call struct {
	Method     string
	Path       string
	Items      int    // uris or tracks in the request body
	SnapshotID string // snapshot presented in the request body
	Positions  map[string][]int
}

type failure struct {
	method, path string
	skip         int
	status       int
	message      string
}

// FakeSpotify is an in-memory Spotify Web API served over httptest.
//
// Every write bumps the playlist's snapshot, bodies over 100 items are rejected, removals honour a presented
// snapshot and positional removal, and every request is recorded.
type FakeSpotify struct {
	*httptest.Server

	UserID string

	mu           sync.Mutex
	omitSnapshot bool
	playlists    map[string]*FakePlaylist
	order        []string
	liked        []string
	calls        []Call
	failures     []*failure
	nextID       int
}

// NewFakeSpotify starts a fake API that is closed when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{UserID: "me", playlists: map[string]*FakePlaylist{}}

	r := chi.NewRouter()
	r.Get("/me", f.handleMe)
	r.Get("/me/tracks", f.handleSavedTracks)
	r.Get("/me/playlists", f.handleUserPlaylists)
	r.Post("/users/{owner}/playlists", f.handleCreate)
	r.Get("/playlists/{id}", f.handleGetPlaylist)
	r.Put("/playlists/{id}", f.handleDetails)
	r.Get("/playlists/{id}/tracks", f.handleListTracks)
	r.Post("/playlists/{id}/tracks", f.handleAdd)
	r.Put("/playlists/{id}/tracks", f.handleReplace)
	r.Delete("/playlists/{id}/tracks", f.handleRemove)
	r.Put("/playlists/{id}/followers", f.handleFollow(true))
	r.Delete("/playlists/{id}/followers", f.handleFollow(false))

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

// SeedPlaylist registers a followed playlist owned by the fake user.
func (f *FakeSpotify) SeedPlaylist(id, name string, tracks ...string) *FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &FakePlaylist{ID: id, OwnerID: f.UserID, Name: name, Tracks: slices.Clone(tracks), Version: 1, Following: true}
	f.playlists[id] = p
	f.order = append(f.order, id)
	return p
}

// Like sets the user's saved tracks.
func (f *FakeSpotify) Like(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked = slices.Clone(ids)
}

// OmitSnapshot makes write responses leave out snapshot_id.
func (f *FakeSpotify) OmitSnapshot(omit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitSnapshot = omit
}

// Playlist returns a copy of the playlist's current state, or nil.
func (f *FakeSpotify) Playlist(id string) *FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.playlists[id]
	if !ok {
		return nil
	}
	cp := *p
	cp.Tracks = slices.Clone(p.Tracks)
	return &cp
}

// Calls returns the recorded requests matching method whose path ends with suffix. An empty method matches all.
func (f *FakeSpotify) Calls(method, suffix string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if (method == "" || c.Method == method) && strings.HasSuffix(c.Path, suffix) {
			out = append(out, c)
		}
	}
	return out
}

// Writes returns the recorded requests that are not reads.
func (f *FakeSpotify) Writes() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded requests.
func (f *FakeSpotify) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// FailAfter makes the request matching method and path fail once with status after skip matching requests succeeded.
func (f *FakeSpotify) FailAfter(method, path string, skip, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{method: method, path: path, skip: skip, status: status, message: "injected failure"})
}

type fakeBody struct {
	URIs        []string `json:"uris"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	SnapshotID  string   `json:"snapshot_id"`
	Tracks      []struct {
		URI       string `json:"uri"`
		Positions []int  `json:"positions"`
	} `json:"tracks"`
}

// begin records the call and applies injected failures. It returns the decoded body, or false when a response was written.
func (f *FakeSpotify) begin(w http.ResponseWriter, r *http.Request) (fakeBody, bool) {
	var body fakeBody
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &body); err != nil {
				writeError(w, http.StatusBadRequest, "malformed body")
				return body, false
			}
		}
	}

	call := Call{Method: r.Method, Path: r.URL.Path, Items: len(body.URIs) + len(body.Tracks), SnapshotID: body.SnapshotID}
	for _, t := range body.Tracks {
		if len(t.Positions) > 0 {
			if call.Positions == nil {
				call.Positions = map[string][]int{}
			}
			call.Positions[trackID(t.URI)] = t.Positions
		}
	}
	f.calls = append(f.calls, call)

	for i, fl := range f.failures {
		if fl.method != r.Method || fl.path != r.URL.Path {
			continue
		}
		if fl.skip > 0 {
			fl.skip--
			continue
		}
		f.failures = append(f.failures[:i], f.failures[i+1:]...)
		writeError(w, fl.status, fl.message)
		return body, false
	}

	if call.Items > fakeMaxItems {
		writeError(w, http.StatusBadRequest, "too many items in request")
		return body, false
	}
	return body, true
}

func (f *FakeSpotify) playlist(w http.ResponseWriter, r *http.Request) (*FakePlaylist, bool) {
	p, ok := f.playlists[chi.URLParam(r, "id")]
	if !ok {
		writeError(w, http.StatusNotFound, "playlist not found")
	}
	return p, ok
}

func (f *FakeSpotify) writeSnapshot(w http.ResponseWriter, status int, p *FakePlaylist) {
	p.Version++
	resp := map[string]string{}
	if !f.omitSnapshot {
		resp["snapshot_id"] = p.Snapshot()
	}
	writeJSON(w, status, resp)
}

func (f *FakeSpotify) handleMe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.begin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": f.UserID, "display_name": "Test User"})
}

func (f *FakeSpotify) handleSavedTracks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.begin(w, r); !ok {
		return
	}
	writePage(w, r, trackItems(f.liked))
}

func (f *FakeSpotify) handleUserPlaylists(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.begin(w, r); !ok {
		return
	}

	var items []any
	for _, id := range f.order {
		if p := f.playlists[id]; p.Following {
			items = append(items, playlistJSON(p))
		}
	}
	writePage(w, r, items)
}

func (f *FakeSpotify) handleCreate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.begin(w, r)
	if !ok {
		return
	}

	f.nextID++
	p := &FakePlaylist{
		ID:        fmt.Sprintf("created-%d", f.nextID),
		OwnerID:   chi.URLParam(r, "owner"),
		Version:   1,
		Following: true,
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.Description != nil {
		p.Description = *body.Description
	}
	f.playlists[p.ID] = p
	f.order = append(f.order, p.ID)

	resp := playlistJSON(p)
	if f.omitSnapshot {
		delete(resp, "snapshot_id")
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (f *FakeSpotify) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.begin(w, r); !ok {
		return
	}
	if p, ok := f.playlist(w, r); ok {
		writeJSON(w, http.StatusOK, playlistJSON(p))
	}
}

func (f *FakeSpotify) handleDetails(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.begin(w, r)
	if !ok {
		return
	}
	p, ok := f.playlist(w, r)
	if !ok {
		return
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.Description != nil {
		p.Description = *body.Description
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeSpotify) handleListTracks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.begin(w, r); !ok {
		return
	}
	if p, ok := f.playlist(w, r); ok {
		writePage(w, r, trackItems(p.Tracks))
	}
}

func (f *FakeSpotify) handleAdd(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.begin(w, r)
	if !ok {
		return
	}
	p, ok := f.playlist(w, r)
	if !ok {
		return
	}
	for _, uri := range body.URIs {
		p.Tracks = append(p.Tracks, trackID(uri))
	}
	f.writeSnapshot(w, http.StatusCreated, p)
}

func (f *FakeSpotify) handleReplace(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.begin(w, r)
	if !ok {
		return
	}
	p, ok := f.playlist(w, r)
	if !ok {
		return
	}
	p.Tracks = make([]string, 0, len(body.URIs))
	for _, uri := range body.URIs {
		p.Tracks = append(p.Tracks, trackID(uri))
	}
	f.writeSnapshot(w, http.StatusOK, p)
}

func (f *FakeSpotify) handleRemove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.begin(w, r)
	if !ok {
		return
	}
	p, ok := f.playlist(w, r)
	if !ok {
		return
	}
	if body.SnapshotID != "" && body.SnapshotID != p.Snapshot() {
		writeError(w, http.StatusConflict, "snapshot_id does not match the current playlist version")
		return
	}

	drop := map[int]bool{}
	for _, t := range body.Tracks {
		id := trackID(t.URI)
		if len(t.Positions) == 0 {
			for i, existing := range p.Tracks {
				if existing == id {
					drop[i] = true
				}
			}
			continue
		}
		for _, pos := range t.Positions {
			if pos < 0 || pos >= len(p.Tracks) || p.Tracks[pos] != id {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("track %s is not at position %d", id, pos))
				return
			}
			drop[pos] = true
		}
	}

	kept := make([]string, 0, len(p.Tracks))
	for i, id := range p.Tracks {
		if !drop[i] {
			kept = append(kept, id)
		}
	}
	p.Tracks = kept
	f.writeSnapshot(w, http.StatusOK, p)
}

func (f *FakeSpotify) handleFollow(following bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.begin(w, r); !ok {
			return
		}
		if p, ok := f.playlist(w, r); ok {
			p.Following = following
			w.WriteHeader(http.StatusOK)
		}
	}
}

func trackID(uri string) string {
	return strings.TrimPrefix(uri, "spotify:track:")
}

func trackItems(ids []string) []any {
	items := make([]any, len(ids))
	for i, id := range ids {
		items[i] = map[string]any{
			"added_at": "2024-01-02T03:04:05Z",
			"track": map[string]any{
				"id":      id,
				"name":    "Track " + id,
				"artists": []map[string]string{{"id": "ar-" + id, "name": "Artist " + id}},
				"album": map[string]any{
					"id":   "al-" + id,
					"name": "Album " + id,
					"images": []map[string]any{
						{"url": "https://img.example/" + id + "/640", "height": 640, "width": 640},
						{"url": "https://img.example/" + id + "/300", "height": 300, "width": 300},
						{"url": "https://img.example/" + id + "/64", "height": 64, "width": 64},
					},
				},
			},
		}
	}
	return items
}

func playlistJSON(p *FakePlaylist) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"snapshot_id": p.Snapshot(),
		"owner":       map[string]string{"id": p.OwnerID},
		"tracks":      map[string]int{"total": len(p.Tracks)},
	}
}

func writePage(w http.ResponseWriter, r *http.Request, items []any) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		writeError(w, http.StatusBadRequest, "limit must be at most 50")
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	start := min(offset, len(items))
	end := min(start+limit, len(items))
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items[start:end],
		"total":  len(items),
		"limit":  limit,
		"offset": offset,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}

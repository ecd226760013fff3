package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"github.com/desertthunder/moodmusic/internal/services"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/desertthunder/moodmusic/internal/tasks"
	tu "github.com/desertthunder/moodmusic/internal/testing"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// stubAuth hands out a fixed token for the code "good".
type stubAuth struct {
	codes []string
}

func (a *stubAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state)
}

func (a *stubAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	a.codes = append(a.codes, code)
	if code != "good" {
		return nil, shared.ErrAuthFailed
	}
	return &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}, nil
}

type testServer struct {
	*httptest.Server
	fake   *tu.FakeSpotify
	store  *repositories.Store
	engine *tasks.Engine
	auth   *stubAuth
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	fake := tu.NewFakeSpotify(t)
	provider, err := services.NewSpotifyProvider(shared.SpotifyConfig{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		BaseURL:      fake.URL,
	}, services.SpotifyOpts{})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	store := tu.NewTestStore(t)
	logger := shared.NewLogger(io.Discard)
	engine := tasks.NewEngine(store, provider, logger, tasks.EngineOpts{})
	auth := &stubAuth{}
	opts.Logger = logger

	srv := httptest.NewServer(New(engine, auth, opts).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, fake: fake, store: store, engine: engine, auth: auth}
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	if _, err := ts.engine.Authenticate(context.Background(), &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}); err != nil {
		t.Fatalf("failed to log in: %v", err)
	}
}

// do sends a request with an optional JSON body and decodes the response into out when it is non-nil.
func (ts *testServer) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("failed to decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func seedMix(t *testing.T, ts *testServer, id string, tracks ...string) {
	t.Helper()

	remote := ts.fake.SeedPlaylist(id, "Playlist "+id, tracks...)
	tu.SeedTracks(t, ts.store, tracks...)
	repos := ts.store.Repos()
	pl := &models.Playlist{ID: id, OwnerID: "me", Name: remote.Name, SnapshotID: remote.Snapshot(), Type: models.PlaylistMix}
	if err := repos.Playlists.Create(pl); err != nil {
		t.Fatal(err)
	}
	if err := repos.Links.SetPlaylistTracks(id, tracks); err != nil {
		t.Fatal(err)
	}
	if err := repos.Playlists.Reconciled(id, "", false, true); err != nil {
		t.Fatal(err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	var body map[string]string
	resp := ts.do(t, http.MethodGet, "/healthz", nil, &body)
	expectStatus(t, resp, http.StatusOK)
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	t.Run("metrics", func(t *testing.T) {
		ts.do(t, http.MethodGet, "/healthz", nil, nil)
		resp, err := ts.Client().Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(raw), `moodmusic_http_requests_total{method="GET",route="/healthz",status="200"}`) {
			t.Error("expected request counter for /healthz in metrics output")
		}
	})

	t.Run("caller request id is echoed", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
		req.Header.Set("X-Request-ID", "abc123")
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("X-Request-ID"); got != "abc123" {
			t.Errorf("X-Request-ID = %q", got)
		}
	})
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RequestsPerMinute: 2})

	expectStatus(t, ts.do(t, http.MethodGet, "/healthz", nil, nil), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, "/healthz", nil, nil), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, "/healthz", nil, nil), http.StatusTooManyRequests)
}

func TestPlaylistRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})

	t.Run("writes require a login", func(t *testing.T) {
		var body ErrorBody
		resp := ts.do(t, http.MethodPost, "/playlists", map[string]any{"type": "mix"}, &body)
		expectStatus(t, resp, http.StatusUnauthorized)
		if body.Error.Code != "NOT_AUTHENTICATED" {
			t.Errorf("code = %q", body.Error.Code)
		}
	})

	ts.login(t)
	ts.fake.SeedPlaylist("P1", "Discovered", "A", "B")

	var refresh tasks.RefreshResult
	expectStatus(t, ts.do(t, http.MethodPost, "/library/refresh", nil, &refresh), http.StatusOK)
	if refresh.Playlists != 1 || refresh.UserID != "me" {
		t.Errorf("unexpected refresh result: %+v", refresh)
	}

	t.Run("list and filter", func(t *testing.T) {
		var all []models.Playlist
		expectStatus(t, ts.do(t, http.MethodGet, "/playlists", nil, &all), http.StatusOK)
		if len(all) != 1 || all[0].Type != models.PlaylistUntracked {
			t.Fatalf("unexpected playlists: %+v", all)
		}

		var mixes []models.Playlist
		expectStatus(t, ts.do(t, http.MethodGet, "/playlists?type=mix", nil, &mixes), http.StatusOK)
		if len(mixes) != 0 {
			t.Errorf("expected no mixes, got %+v", mixes)
		}

		expectStatus(t, ts.do(t, http.MethodGet, "/playlists?type=bogus", nil, nil), http.StatusUnprocessableEntity)
	})

	t.Run("get unknown playlist", func(t *testing.T) {
		var body ErrorBody
		expectStatus(t, ts.do(t, http.MethodGet, "/playlists/nope", nil, &body), http.StatusNotFound)
		if body.Error.Code != "NOT_FOUND" {
			t.Errorf("code = %q", body.Error.Code)
		}
	})

	t.Run("create mix", func(t *testing.T) {
		var res tasks.PlaylistResult
		resp := ts.do(t, http.MethodPost, "/playlists", map[string]any{"name": "Road trip", "type": "mix"}, &res)
		expectStatus(t, resp, http.StatusCreated)
		if res.Playlist == nil || res.Playlist.Type != models.PlaylistMix || res.Changes.SnapshotID == "" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("create validation", func(t *testing.T) {
		tests := []struct {
			name  string
			body  map[string]any
			field string
		}{
			{"missing type", map[string]any{"name": "x"}, "type"},
			{"unknown type", map[string]any{"type": "untracked"}, "type"},
			{"label without label id", map[string]any{"type": "label"}, "label_id"},
			{"mix with label id", map[string]any{"type": "mix", "label_id": 1}, "label_id"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var body ErrorBody
				expectStatus(t, ts.do(t, http.MethodPost, "/playlists", tt.body, &body), http.StatusUnprocessableEntity)
				if body.Error.Code != "INVALID_INPUT" {
					t.Errorf("code = %q", body.Error.Code)
				}
				if _, ok := body.Error.Fields[tt.field]; !ok {
					t.Errorf("expected field %q in %v", tt.field, body.Error.Fields)
				}
			})
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/playlists", strings.NewReader("{"))
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		expectStatus(t, resp, http.StatusUnprocessableEntity)
	})

	t.Run("sync then track listing", func(t *testing.T) {
		var res tasks.PlaylistResult
		expectStatus(t, ts.do(t, http.MethodPost, "/playlists/P1/sync", nil, &res), http.StatusOK)

		var tracks []models.Track
		expectStatus(t, ts.do(t, http.MethodGet, "/playlists/P1/tracks", nil, &tracks), http.StatusOK)
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks after sync, got %d", len(tracks))
		}
	})

	t.Run("update, delete and restore", func(t *testing.T) {
		var res tasks.PlaylistResult
		expectStatus(t, ts.do(t, http.MethodPatch, "/playlists/P1", map[string]any{"type": "mix", "name": "Kept"}, &res), http.StatusOK)
		if res.Playlist.Type != models.PlaylistMix || res.Playlist.Name != "Kept" {
			t.Errorf("unexpected playlist: %+v", res.Playlist)
		}

		expectStatus(t, ts.do(t, http.MethodDelete, "/playlists/P1", nil, &res), http.StatusOK)
		if res.Playlist.Type != models.PlaylistDeleted {
			t.Errorf("expected deleted, got %s", res.Playlist.Type)
		}

		var body ErrorBody
		expectStatus(t, ts.do(t, http.MethodPost, "/playlists/P1/sync", nil, &body), http.StatusConflict)
		if body.Error.Code != "INVALID_TRANSITION" {
			t.Errorf("code = %q", body.Error.Code)
		}

		expectStatus(t, ts.do(t, http.MethodPost, "/playlists/P1/restore", nil, &res), http.StatusOK)
		if res.Playlist.Type != models.PlaylistUntracked {
			t.Errorf("expected untracked after restore, got %s", res.Playlist.Type)
		}
	})

	t.Run("invalid patch", func(t *testing.T) {
		var body ErrorBody
		expectStatus(t, ts.do(t, http.MethodPatch, "/playlists/P1", map[string]any{"type": "bogus"}, &body), http.StatusUnprocessableEntity)
		if body.Error.Fields["type"] == "" {
			t.Errorf("expected type field error, got %+v", body.Error)
		}
	})
}

func TestDedupeAndRevertRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.login(t)
	seedMix(t, ts, "M", "A", "B")

	remote := ts.fake.Playlist("M")
	ts.fake.SeedPlaylist("M", remote.Name, "A", "B", "A")

	var res tasks.PlaylistResult
	expectStatus(t, ts.do(t, http.MethodPost, "/playlists/M/dedupe", nil, &res), http.StatusOK)
	if res.Changes.TrackCountDelta != -1 {
		t.Errorf("expected one duplicate removed, got %+v", res.Changes)
	}

	ts.fake.SeedPlaylist("M", remote.Name, "C")
	expectStatus(t, ts.do(t, http.MethodPost, "/playlists/M/revert", nil, &res), http.StatusOK)
	if got := ts.fake.Playlist("M").Tracks; len(got) != 2 {
		t.Errorf("expected remote to be reverted to the local members, got %v", got)
	}
}

func TestBulkRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.login(t)
	seedMix(t, ts, "M1", "A")
	seedMix(t, ts, "M2", "B")
	tu.SeedTracks(t, ts.store, "C")

	var out struct {
		Outcomes []outcomeResponse `json:"outcomes"`
	}
	body := map[string]any{"playlists": []map[string]any{
		{"playlist_id": "M1", "track_ids": []string{"C"}},
		{"playlist_id": "missing", "track_ids": []string{"C"}},
	}}
	expectStatus(t, ts.do(t, http.MethodPost, "/bulk/tracks", body, &out), http.StatusOK)
	if len(out.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", out.Outcomes)
	}
	for _, o := range out.Outcomes {
		switch o.PlaylistID {
		case "M1":
			if o.Status != http.StatusOK || o.Changes.TrackCountDelta != 1 || o.Error != nil {
				t.Errorf("unexpected M1 outcome: %+v", o)
			}
		case "missing":
			if o.Status != http.StatusNotFound || o.Error == nil || o.Error.Code != "NOT_FOUND" {
				t.Errorf("unexpected missing outcome: %+v", o)
			}
		}
	}

	remove := map[string]any{"playlists": []map[string]any{{"playlist_id": "M2", "track_ids": []string{"B"}}}}
	expectStatus(t, ts.do(t, http.MethodDelete, "/bulk/tracks", remove, &out), http.StatusOK)
	if len(out.Outcomes) != 1 || out.Outcomes[0].Changes.TrackCountDelta != -1 {
		t.Errorf("unexpected remove outcome: %+v", out.Outcomes)
	}

	t.Run("validation", func(t *testing.T) {
		var errBody ErrorBody
		bad := map[string]any{"playlists": []map[string]any{{"playlist_id": "M1", "track_ids": []string{}}}}
		expectStatus(t, ts.do(t, http.MethodPost, "/bulk/tracks", bad, &errBody), http.StatusUnprocessableEntity)
		if _, ok := errBody.Error.Fields["playlists[0].track_ids"]; !ok {
			t.Errorf("expected nested field error, got %v", errBody.Error.Fields)
		}
	})
}

func TestTrackRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.login(t)
	ts.fake.Like("A")
	ts.fake.SeedPlaylist("P", "P", "B")
	expectStatus(t, ts.do(t, http.MethodPost, "/library/refresh", nil, nil), http.StatusOK)
	tu.SeedTracks(t, ts.store, "B")

	var liked []models.Track
	expectStatus(t, ts.do(t, http.MethodGet, "/tracks?liked=true", nil, &liked), http.StatusOK)
	if len(liked) != 1 || liked[0].ID != "A" {
		t.Errorf("unexpected liked tracks: %+v", liked)
	}

	var all []models.Track
	expectStatus(t, ts.do(t, http.MethodGet, "/tracks", nil, &all), http.StatusOK)
	if len(all) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(all))
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/tracks?liked=maybe", nil, nil), http.StatusUnprocessableEntity)
}

func TestLabelRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	tu.SeedTracks(t, ts.store, "A", "B")

	var genre models.Label
	expectStatus(t, ts.do(t, http.MethodPost, "/labels", map[string]any{"name": "Rock", "type": "genre", "color": "#ff0000"}, &genre), http.StatusCreated)
	if genre.ID == 0 || genre.Name != "Rock" {
		t.Fatalf("unexpected label: %+v", genre)
	}

	var sub models.Label
	expectStatus(t, ts.do(t, http.MethodPost, "/labels", map[string]any{"name": "Shoegaze", "type": "genre", "parent_id": genre.ID}, &sub), http.StatusCreated)

	t.Run("create validation", func(t *testing.T) {
		tests := []struct {
			name  string
			body  map[string]any
			field string
		}{
			{"missing name", map[string]any{"type": "mood"}, "name"},
			{"bad color", map[string]any{"name": "Calm", "type": "mood", "color": "blue"}, "color"},
			{"mood with parent", map[string]any{"name": "Calm", "type": "mood", "parent_id": genre.ID}, "parent_id"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var body ErrorBody
				expectStatus(t, ts.do(t, http.MethodPost, "/labels", tt.body, &body), http.StatusUnprocessableEntity)
				if _, ok := body.Error.Fields[tt.field]; !ok {
					t.Errorf("expected field %q in %v", tt.field, body.Error.Fields)
				}
			})
		}

		var body ErrorBody
		expectStatus(t, ts.do(t, http.MethodPost, "/labels", map[string]any{"name": "Rock", "type": "genre"}, &body), http.StatusUnprocessableEntity)
		if body.Error.Code != "INVALID_INPUT" {
			t.Errorf("duplicate name code = %q", body.Error.Code)
		}
	})

	t.Run("tag without a playlist needs no login", func(t *testing.T) {
		var res tasks.LabelResult
		expectStatus(t, ts.do(t, http.MethodPost, "/labels/"+itoa(genre.ID)+"/tracks", map[string]any{"track_ids": []string{"A", "B"}}, &res), http.StatusOK)
		if res.Tracks != 2 || res.Changes != nil {
			t.Errorf("unexpected tagging result: %+v", res)
		}

		var tracks []models.Track
		expectStatus(t, ts.do(t, http.MethodGet, "/labels/"+itoa(genre.ID)+"/tracks", nil, &tracks), http.StatusOK)
		if len(tracks) != 2 {
			t.Errorf("expected 2 tagged tracks, got %d", len(tracks))
		}

		expectStatus(t, ts.do(t, http.MethodDelete, "/labels/"+itoa(genre.ID)+"/tracks", map[string]any{"track_ids": []string{"A"}}, &res), http.StatusOK)
		if res.Tracks != 1 {
			t.Errorf("expected 1 untagged track, got %+v", res)
		}
	})

	t.Run("update", func(t *testing.T) {
		var label models.Label
		expectStatus(t, ts.do(t, http.MethodPatch, "/labels/"+itoa(genre.ID), map[string]any{"name": "Rock & Roll", "color": "#00ff00"}, &label), http.StatusOK)
		if label.Name != "Rock & Roll" || label.Color != "#00ff00" {
			t.Errorf("unexpected label: %+v", label)
		}

		var body ErrorBody
		expectStatus(t, ts.do(t, http.MethodPatch, "/labels/"+itoa(genre.ID), map[string]any{"type": "mood"}, &body), http.StatusUnprocessableEntity)
		if body.Error.Code != "INVALID_LABEL" {
			t.Errorf("genre with subgenres turned mood: code = %q", body.Error.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		expectStatus(t, ts.do(t, http.MethodGet, "/labels/abc", nil, nil), http.StatusUnprocessableEntity)
		expectStatus(t, ts.do(t, http.MethodGet, "/labels/9999", nil, nil), http.StatusNotFound)
	})

	t.Run("delete cascades to subgenres", func(t *testing.T) {
		expectStatus(t, ts.do(t, http.MethodDelete, "/labels/"+itoa(genre.ID), nil, nil), http.StatusNoContent)
		expectStatus(t, ts.do(t, http.MethodGet, "/labels/"+itoa(sub.ID), nil, nil), http.StatusNotFound)

		var labels []models.Label
		expectStatus(t, ts.do(t, http.MethodGet, "/labels", nil, &labels), http.StatusOK)
		if len(labels) != 0 {
			t.Errorf("expected no labels, got %+v", labels)
		}
	})
}

func TestLoginRoutes(t *testing.T) {
	ts := newTestServer(t, Options{})
	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := client.Get(ts.URL + "/login")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	expectStatus(t, resp, http.StatusFound)

	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatalf("expected state in redirect %q", loc)
	}

	t.Run("unknown state", func(t *testing.T) {
		expectStatus(t, ts.do(t, http.MethodGet, "/callback?state=forged&code=good", nil, nil), http.StatusUnauthorized)
		if len(ts.auth.codes) != 0 {
			t.Error("code must not be exchanged for an unknown state")
		}
	})

	var user models.User
	expectStatus(t, ts.do(t, http.MethodGet, "/callback?state="+state+"&code=good", nil, &user), http.StatusOK)
	if user.ID != "me" {
		t.Errorf("unexpected user: %+v", user)
	}
	if _, err := ts.engine.StoredCredential(); err != nil {
		t.Errorf("expected a stored credential after login: %v", err)
	}

	t.Run("state is single use", func(t *testing.T) {
		expectStatus(t, ts.do(t, http.MethodGet, "/callback?state="+state+"&code=good", nil, nil), http.StatusUnauthorized)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrPlaylistNotFound, http.StatusNotFound, "NOT_FOUND"},
		{&services.APIError{Status: http.StatusConflict}, http.StatusConflict, "STALE_SNAPSHOT"},
		{shared.ErrMissingSnapshot, http.StatusBadGateway, "REMOTE_REQUEST_FAILED"},
		{errors.Join(shared.ErrLocalCommit, shared.ErrNotFound), http.StatusInternalServerError, "LOCAL_COMMIT_FAILED"},
		{&ValidationError{Fields: map[string]string{"name": "required"}}, http.StatusUnprocessableEntity, "INVALID_INPUT"},
		{shared.ErrServiceUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{io.EOF, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("statusFor(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

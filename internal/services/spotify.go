// Spotify Web API implementation of [PlaylistClient]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodmusic/internal/metrics"
	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"github.com/sourcegraph/conc/iter"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	trackURIPrefix = "spotify:track:"

	// maxPageFetchers bounds concurrent follow-up page requests per listing.
	maxPageFetchers = 4
)

// Scopes requested during authorization.
var Scopes = []string{
	"user-read-private",
	"user-library-read",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	Album   spotifyAlbum    `json:"album"`
}

// spotifyItem is an entry of a playlist or saved-tracks listing. Track is nil for unavailable items.
type spotifyItem struct {
	AddedAt string        `json:"added_at"`
	Track   *spotifyTrack `json:"track"`
}

type spotifyOwner struct {
	ID string `json:"id"`
}

type spotifyTotal struct {
	Total int `json:"total"`
}

type spotifyPlaylist struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	SnapshotID  string       `json:"snapshot_id"`
	Owner       spotifyOwner `json:"owner"`
	Tracks      spotifyTotal `json:"tracks"`
}

type spotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type urisBody struct {
	URIs []string `json:"uris"`
}

type trackRef struct {
	URI       string `json:"uri"`
	Positions []int  `json:"positions,omitempty"`
}

type removeBody struct {
	Tracks     []trackRef `json:"tracks"`
	SnapshotID string     `json:"snapshot_id,omitempty"`
}

type detailsBody struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type createBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type followBody struct {
	Public bool `json:"public"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx response from the Spotify API.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Stale reports whether the response rejected a presented snapshot.
func (e *APIError) Stale() bool {
	if e.Status == http.StatusConflict {
		return true
	}
	return e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "snapshot")
}

func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrRemoteRequest}
	if e.Stale() {
		errs = append(errs, shared.ErrStaleSnapshot)
	}
	if e.Status == http.StatusUnauthorized {
		errs = append(errs, shared.ErrNotAuthenticated)
	}
	return errs
}

// clientFault reports whether err is a rejection caused by the request itself rather than by the service.
func clientFault(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

// SpotifyOpts tunes a [SpotifyProvider]. Zero values select defaults.
type SpotifyOpts struct {
	RateLimit  float64 // requests per second shared by every client; 0 disables pacing
	Burst      int
	HTTPClient *http.Client // base transport beneath the OAuth2 client
	Logger     *log.Logger
}

// SpotifyProvider builds per-user [PlaylistClient]s sharing one OAuth2 configuration, rate limiter and circuit breaker.
type SpotifyProvider struct {
	config  *oauth2.Config
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	base    *http.Client
	logger  *log.Logger
}

// NewSpotifyProvider creates a provider from the configured Spotify credentials.
func NewSpotifyProvider(cfg shared.SpotifyConfig, opts SpotifyOpts) (*SpotifyProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("component", "spotify")

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}

	p := &SpotifyProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
		base:    base,
		logger:  logger,
	}

	p.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "spotify",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err)
		},
	})
	return p, nil
}

// OAuthConfig exposes the OAuth2 configuration used for the authorization code flow.
func (p *SpotifyProvider) OAuthConfig() *oauth2.Config {
	return p.config
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (p *SpotifyProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (p *SpotifyProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.config.Exchange(context.WithValue(ctx, oauth2.HTTPClient, p.base), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return tok, nil
}

// Client returns a [PlaylistClient] authenticated as cred. Expired tokens are refreshed transparently
// and handed to cred.OnRefresh.
func (p *SpotifyProvider) Client(ctx context.Context, cred models.Credential) PlaylistClient {
	ctx = context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, p.base)
	logger := p.logger.With("user", cred.UserID)

	src := p.config.TokenSource(ctx, cred.Token)
	if cred.OnRefresh != nil {
		src = &savingTokenSource{src: src, last: cred.Token.AccessToken, save: cred.OnRefresh, logger: logger}
	}
	return &SpotifyClient{
		provider: p,
		http:     oauth2.NewClient(ctx, src),
		logger:   logger,
	}
}

// savingTokenSource passes on every token whose access token differs from the last one seen.
type savingTokenSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	last   string
	save   func(*oauth2.Token) error
	logger *log.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			s.logger.Warn("failed to store refreshed token", "err", err)
		} else {
			s.logger.Debug("stored refreshed token", "expiry", tok.Expiry)
		}
	}
	return tok, nil
}

// SpotifyClient implements [PlaylistClient] for one user.
type SpotifyClient struct {
	provider *SpotifyProvider
	http     *http.Client
	logger   *log.Logger
}

// do performs an authenticated request and decodes a JSON response into result when it is non-nil.
func (c *SpotifyClient) do(ctx context.Context, op, method, path string, body, result any) error {
	started := time.Now()
	err := c.roundTrip(ctx, method, path, body, result)
	metrics.ObserveRemote(op, started, err)
	if errors.Is(err, shared.ErrStaleSnapshot) {
		metrics.StaleSnapshotsTotal.Inc()
	}
	c.logger.Debug("spotify request", "op", op, "method", method, "path", path, "duration", time.Since(started), "err", err)
	return err
}

func (c *SpotifyClient) roundTrip(ctx context.Context, method, path string, body, result any) error {
	if err := c.provider.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", shared.ErrRemoteRequest, err)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	data, err := c.provider.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.provider.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrRemoteRequest, method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrRemoteRequest, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			var errBody spotifyErrorBody
			if json.Unmarshal(data, &errBody) == nil && errBody.Error.Message != "" {
				apiErr.Message = errBody.Error.Message
			}
			return nil, apiErr
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w: %v", shared.ErrServiceUnavailable, shared.ErrRemoteRequest, err)
	}
	if err != nil {
		return err
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrRemoteRequest, err)
		}
	}
	return nil
}

// chunked issues one write per chunk of n items, in order.
//
// send receives the chunk index and the snapshot to present, and returns the signed item count and the returned
// snapshot. The first chunk presents expected; later chunks present the previous chunk's snapshot when chain is set.
func chunked(op, playlistID string, n int, expected string, chain bool, send func(i int, snapshot string) (int, string, error)) (Result, error) {
	var res Result
	for i := range n {
		snapshot := ""
		if i == 0 {
			snapshot = expected
		} else if chain {
			snapshot = res.SnapshotID
		}

		count, next, err := send(i, snapshot)
		if err != nil {
			return res, &ChunkError{Op: op, PlaylistID: playlistID, Applied: res.Chunks, Total: n, Items: res.Applied, SnapshotID: res.SnapshotID, Err: err}
		}

		res.Applied += count
		res.Chunks++
		if next == "" {
			return res, &ChunkError{
				Op: op, PlaylistID: playlistID, Applied: res.Chunks, Total: n, Items: res.Applied, SnapshotID: res.SnapshotID,
				Err: shared.ErrMissingSnapshot,
			}
		}
		res.SnapshotID = next
	}
	return res, nil
}

func trackURIs(ids []string) []string {
	uris := make([]string, len(ids))
	for i, id := range ids {
		uris[i] = trackURIPrefix + id
	}
	return uris
}

func tracksPath(playlistID string) string {
	return "/playlists/" + url.PathEscape(playlistID) + "/tracks"
}

func (c *SpotifyClient) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (Result, error) {
	chunks := shared.Chunk(trackIDs, MaxBatchSize)
	return chunked("add_tracks", playlistID, len(chunks), "", false, func(i int, _ string) (int, string, error) {
		var resp snapshotResponse
		err := c.do(ctx, "add_tracks", http.MethodPost, tracksPath(playlistID), urisBody{URIs: trackURIs(chunks[i])}, &resp)
		return len(chunks[i]), resp.SnapshotID, err
	})
}

func (c *SpotifyClient) RemoveTracks(ctx context.Context, playlistID string, trackIDs []string, expectedSnapshot string) (Result, error) {
	chunks := shared.Chunk(trackIDs, MaxBatchSize)
	return chunked("remove_tracks", playlistID, len(chunks), expectedSnapshot, expectedSnapshot != "", func(i int, snapshot string) (int, string, error) {
		refs := make([]trackRef, len(chunks[i]))
		for j, id := range chunks[i] {
			refs[j] = trackRef{URI: trackURIPrefix + id}
		}
		var resp snapshotResponse
		err := c.do(ctx, "remove_tracks", http.MethodDelete, tracksPath(playlistID), removeBody{Tracks: refs, SnapshotID: snapshot}, &resp)
		return -len(chunks[i]), resp.SnapshotID, err
	})
}

func (c *SpotifyClient) RemovePositions(ctx context.Context, playlistID string, batches [][]PositionedTrack, expectedSnapshot string) (Result, error) {
	return chunked("remove_positions", playlistID, len(batches), expectedSnapshot, true, func(i int, snapshot string) (int, string, error) {
		if len(batches[i]) > MaxBatchSize {
			return 0, "", fmt.Errorf("%w: batch of %d tracks exceeds %d", shared.ErrInvalidInput, len(batches[i]), MaxBatchSize)
		}
		refs := make([]trackRef, len(batches[i]))
		removed := 0
		for j, pt := range batches[i] {
			refs[j] = trackRef{URI: trackURIPrefix + pt.ID, Positions: pt.Positions}
			removed += len(pt.Positions)
		}
		var resp snapshotResponse
		err := c.do(ctx, "remove_positions", http.MethodDelete, tracksPath(playlistID), removeBody{Tracks: refs, SnapshotID: snapshot}, &resp)
		return -removed, resp.SnapshotID, err
	})
}

func (c *SpotifyClient) ReplaceTracks(ctx context.Context, playlistID string, trackIDs []string) (Result, error) {
	chunks := shared.Chunk(trackIDs, MaxBatchSize)
	if len(chunks) == 0 {
		chunks = [][]string{{}}
	}
	return chunked("replace_tracks", playlistID, len(chunks), "", false, func(i int, _ string) (int, string, error) {
		method := http.MethodPost
		if i == 0 {
			method = http.MethodPut
		}
		var resp snapshotResponse
		err := c.do(ctx, "replace_tracks", method, tracksPath(playlistID), urisBody{URIs: trackURIs(chunks[i])}, &resp)
		return len(chunks[i]), resp.SnapshotID, err
	})
}

func (c *SpotifyClient) CreatePlaylist(ctx context.Context, ownerID, name, description string) (*RemotePlaylist, error) {
	var sp spotifyPlaylist
	path := "/users/" + url.PathEscape(ownerID) + "/playlists"
	if err := c.do(ctx, "create_playlist", http.MethodPost, path, createBody{Name: name, Description: description}, &sp); err != nil {
		return nil, err
	}
	if sp.ID == "" {
		return nil, fmt.Errorf("%w: create response has no playlist id", shared.ErrRemoteRequest)
	}
	if sp.SnapshotID == "" {
		return nil, fmt.Errorf("%w: create_playlist %s", shared.ErrMissingSnapshot, sp.ID)
	}
	return remotePlaylist(sp), nil
}

func (c *SpotifyClient) SetFollowState(ctx context.Context, playlistID string, following bool) error {
	path := "/playlists/" + url.PathEscape(playlistID) + "/followers"
	if following {
		return c.do(ctx, "follow_playlist", http.MethodPut, path, followBody{Public: false}, nil)
	}
	return c.do(ctx, "unfollow_playlist", http.MethodDelete, path, nil, nil)
}

func (c *SpotifyClient) UpdateDetails(ctx context.Context, playlistID string, name, description *string) error {
	if name == nil && description == nil {
		return nil
	}
	path := "/playlists/" + url.PathEscape(playlistID)
	return c.do(ctx, "update_details", http.MethodPut, path, detailsBody{Name: name, Description: description}, nil)
}

func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string) (*RemotePlaylist, []RemoteTrack, error) {
	var sp spotifyPlaylist
	path := "/playlists/" + url.PathEscape(playlistID) + "?fields=" + url.QueryEscape("id,name,description,snapshot_id,owner(id),tracks(total)")
	if err := c.do(ctx, "get_playlist", http.MethodGet, path, nil, &sp); err != nil {
		return nil, nil, err
	}

	items, err := paginate[spotifyItem](ctx, c, "playlist_tracks", tracksPath(playlistID))
	if err != nil {
		return nil, nil, err
	}
	return remotePlaylist(sp), remoteTracks(items), nil
}

func (c *SpotifyClient) SavedTracks(ctx context.Context) ([]RemoteTrack, error) {
	items, err := paginate[spotifyItem](ctx, c, "saved_tracks", "/me/tracks")
	if err != nil {
		return nil, err
	}
	return remoteTracks(items), nil
}

func (c *SpotifyClient) UserPlaylists(ctx context.Context) ([]RemotePlaylist, error) {
	items, err := paginate[spotifyPlaylist](ctx, c, "user_playlists", "/me/playlists")
	if err != nil {
		return nil, err
	}
	playlists := make([]RemotePlaylist, 0, len(items))
	for _, sp := range items {
		playlists = append(playlists, *remotePlaylist(sp))
	}
	return playlists, nil
}

func (c *SpotifyClient) CurrentUser(ctx context.Context) (*RemoteUser, error) {
	var u spotifyUser
	if err := c.do(ctx, "current_user", http.MethodGet, "/me", nil, &u); err != nil {
		return nil, err
	}
	return &RemoteUser{ID: u.ID, DisplayName: u.DisplayName}, nil
}

// paginate fetches the first page of a listing, then the remaining ceil(total/limit)-1 pages in parallel,
// and returns every item in listing order.
func paginate[T any](ctx context.Context, c *SpotifyClient, op, path string) ([]T, error) {
	fetch := func(offset int) (page[T], error) {
		var p page[T]
		err := c.do(ctx, op, http.MethodGet, pagePath(path, offset), nil, &p)
		return p, err
	}

	first, err := fetch(0)
	if err != nil {
		return nil, err
	}

	pages := int(math.Ceil(float64(first.Total) / PageSize))
	if pages <= 1 {
		return first.Items, nil
	}

	offsets := make([]int, pages-1)
	for i := range offsets {
		offsets[i] = (i + 1) * PageSize
	}

	rest, err := iter.Mapper[int, []T]{MaxGoroutines: maxPageFetchers}.MapErr(offsets, func(offset *int) ([]T, error) {
		p, err := fetch(*offset)
		return p.Items, err
	})
	if err != nil {
		return nil, err
	}

	items := first.Items
	for _, chunk := range rest {
		items = append(items, chunk...)
	}
	return items, nil
}

func pagePath(path string, offset int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%slimit=%d&offset=%d", path, sep, PageSize, offset)
}

func remotePlaylist(sp spotifyPlaylist) *RemotePlaylist {
	return &RemotePlaylist{
		ID:          sp.ID,
		OwnerID:     sp.Owner.ID,
		Name:        sp.Name,
		Description: sp.Description,
		SnapshotID:  sp.SnapshotID,
		TrackCount:  sp.Tracks.Total,
	}
}

// remoteTracks converts listing items, keeping each item's index as its position.
// Unavailable items are skipped but still occupy their position.
func remoteTracks(items []spotifyItem) []RemoteTrack {
	tracks := make([]RemoteTrack, 0, len(items))
	for i, item := range items {
		if item.Track == nil || item.Track.ID == "" {
			continue
		}
		t := RemoteTrack{
			ID:       item.Track.ID,
			Name:     item.Track.Name,
			Position: i,
			Album: RemoteAlbum{
				ID:   item.Track.Album.ID,
				Name: item.Track.Album.Name,
			},
		}
		if len(item.Track.Artists) > 0 {
			names := make([]string, len(item.Track.Artists))
			for j, a := range item.Track.Artists {
				names[j] = a.Name
			}
			t.Artist = strings.Join(names, ", ")
		}
		// Spotify orders album images largest first.
		images := item.Track.Album.Images
		if len(images) > 0 {
			t.Album.ImageLarge = images[0].URL
		}
		if len(images) > 1 {
			t.Album.ImageMedium = images[1].URL
		}
		if len(images) > 2 {
			t.Album.ImageSmall = images[2].URL
		}
		if added, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
			t.AddedAt = added.UTC()
		}
		tracks = append(tracks, t)
	}
	return tracks
}

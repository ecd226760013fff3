// package testing contains shared testing utilities
package testing

import (
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/repositories"
	"golang.org/x/oauth2"
)

// NewTestStore opens an in-memory store with migrations applied and closes it when the test ends.
func NewTestStore(t *testing.T) *repositories.Store {
	t.Helper()

	store, err := repositories.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Credential is a bearer credential accepted by [FakeSpotify].
func Credential() models.Credential {
	return models.Credential{UserID: "me", Token: &oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"}}
}

// SeedTracks stores tracks with the given ids.
func SeedTracks(t *testing.T, store *repositories.Store, ids ...string) {
	t.Helper()

	tracks := make([]models.Track, len(ids))
	for i, id := range ids {
		tracks[i] = models.Track{ID: id, Name: "Track " + id, Artist: "Artist " + id}
	}
	if err := store.Repos().Tracks.Upsert(tracks); err != nil {
		t.Fatalf("failed to seed tracks: %v", err)
	}
}

// SeedLabel stores a label carrying the given tracks, which must already exist.
func SeedLabel(t *testing.T, store *repositories.Store, name string, typ models.LabelType, trackIDs ...string) *models.Label {
	t.Helper()

	repos := store.Repos()
	label := &models.Label{Name: name, Type: typ}
	if err := repos.Labels.Create(label); err != nil {
		t.Fatalf("failed to seed label: %v", err)
	}
	if _, err := repos.Links.AddLabelTracks(label.ID, trackIDs); err != nil {
		t.Fatalf("failed to tag tracks: %v", err)
	}
	return label
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

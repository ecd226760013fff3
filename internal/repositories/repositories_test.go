package repositories

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/desertthunder/moodmusic/internal/models"
	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

// setupTestStore creates an in-memory store with migrations applied
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

func seedTracks(t *testing.T, repos *Repos, ids ...string) {
	t.Helper()
	tracks := make([]models.Track, len(ids))
	for i, id := range ids {
		tracks[i] = models.Track{ID: id, Name: "Track " + id, Artist: "Artist"}
	}
	if err := repos.Tracks.Upsert(tracks); err != nil {
		t.Fatalf("failed to seed tracks: %v", err)
	}
}

func TestTrackRepository(t *testing.T) {
	t.Run("Upsert keeps local state", func(t *testing.T) {
		repos := setupTestStore(t).Repos()

		if err := repos.Albums.Upsert([]models.Album{{ID: "al1", Name: "Loveless"}}); err != nil {
			t.Fatalf("failed to upsert album: %v", err)
		}
		if err := repos.Tracks.Upsert([]models.Track{{ID: "t1", Name: "Soon", AlbumID: ptr("al1")}}); err != nil {
			t.Fatalf("failed to upsert track: %v", err)
		}
		if err := repos.Tracks.Rate("t1", 4); err != nil {
			t.Fatalf("failed to rate track: %v", err)
		}
		if err := repos.Tracks.Upsert([]models.Track{{ID: "t1", Name: "Soon (Remastered)"}}); err != nil {
			t.Fatalf("failed to re-upsert track: %v", err)
		}

		track, err := repos.Tracks.Get("t1")
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if track.Name != "Soon (Remastered)" {
			t.Errorf("expected refreshed name, got %q", track.Name)
		}
		if track.Rating != 4 {
			t.Errorf("expected rating to survive upsert, got %d", track.Rating)
		}
		if track.AlbumID == nil || *track.AlbumID != "al1" {
			t.Errorf("expected album reference to survive upsert, got %v", track.AlbumID)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if _, err := repos.Tracks.Get("nope"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
		if _, err := repos.Tracks.Get("nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReplaceLiked", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		seedTracks(t, repos, "a", "b", "c")

		if err := repos.Tracks.ReplaceLiked([]string{"a", "b"}); err != nil {
			t.Fatal(err)
		}
		if err := repos.Tracks.ReplaceLiked([]string{"b", "c"}); err != nil {
			t.Fatal(err)
		}

		liked, err := repos.Tracks.List(true)
		if err != nil {
			t.Fatal(err)
		}
		got := make([]string, 0, len(liked))
		for _, tr := range liked {
			got = append(got, tr.ID)
		}
		if !reflect.DeepEqual(got, []string{"b", "c"}) {
			t.Errorf("expected liked [b c], got %v", got)
		}
	})

	t.Run("MissingIDs", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		seedTracks(t, repos, "a", "c")

		missing, err := repos.Tracks.MissingIDs([]string{"a", "b", "c", "d"})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(missing, []string{"b", "d"}) {
			t.Errorf("expected [b d], got %v", missing)
		}
	})

	t.Run("Rate rejects negative", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		seedTracks(t, repos, "a")
		if err := repos.Tracks.Rate("a", -1); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repos := setupTestStore(t).Repos()

		pl := &models.Playlist{ID: "p1", OwnerID: "me", Name: "Road trip", Type: models.PlaylistMix, SnapshotID: "s1"}
		if err := repos.Playlists.Create(pl); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		got, err := repos.Playlists.Get("p1")
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if got.Name != "Road trip" || got.Type != models.PlaylistMix || got.SnapshotID != "s1" {
			t.Errorf("unexpected playlist: %+v", got)
		}
		if got.AddedAt.IsZero() {
			t.Error("added_at should be set")
		}
	})

	t.Run("Create rejects label without label id", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		err := repos.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistLabel})
		if !errors.Is(err, shared.ErrInvalidLabel) {
			t.Errorf("expected ErrInvalidLabel, got %v", err)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if _, err := repos.Playlists.Get("missing"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Upsert only flags changed snapshots", func(t *testing.T) {
		repos := setupTestStore(t).Repos()

		changed, err := repos.Playlists.Upsert([]models.Playlist{
			{ID: "p1", Name: "One", SnapshotID: "s1", TrackCount: 3},
			{ID: "p2", Name: "Two", SnapshotID: "s1", TrackCount: 5},
		})
		if err != nil {
			t.Fatal(err)
		}
		if !changed {
			t.Error("expected inserts to count as changes")
		}

		changed, err = repos.Playlists.Upsert([]models.Playlist{{ID: "p1", Name: "One", SnapshotID: "s1", TrackCount: 3}})
		if err != nil {
			t.Fatal(err)
		}
		if changed {
			t.Error("unchanged snapshot should not report changes")
		}

		if _, err := repos.Playlists.Upsert([]models.Playlist{{ID: "p2", Name: "Two!", SnapshotID: "s2", TrackCount: 7}}); err != nil {
			t.Fatal(err)
		}
		p2, _ := repos.Playlists.Get("p2")
		if !p2.Updates || p2.SnapshotID != "s2" || p2.Name != "Two!" || p2.TrackCount != 7 {
			t.Errorf("expected refreshed and flagged playlist, got %+v", p2)
		}
		if p2.Type != models.PlaylistUntracked {
			t.Errorf("discovered playlists should be untracked, got %s", p2.Type)
		}
	})

	t.Run("Upsert keeps managed track count and type", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if err := repos.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistMix, SnapshotID: "s1", TrackCount: 2}); err != nil {
			t.Fatal(err)
		}
		if _, err := repos.Playlists.Upsert([]models.Playlist{{ID: "p1", SnapshotID: "s9", TrackCount: 40}}); err != nil {
			t.Fatal(err)
		}
		p1, _ := repos.Playlists.Get("p1")
		if p1.TrackCount != 2 || p1.Type != models.PlaylistMix || !p1.Updates {
			t.Errorf("expected managed count and type to be kept, got %+v", p1)
		}
	})

	t.Run("List filters by type", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		for _, pl := range []models.Playlist{
			{ID: "a", Name: "b-side", Type: models.PlaylistMix},
			{ID: "b", Name: "A-side", Type: models.PlaylistMix},
			{ID: "c", Name: "gone", Type: models.PlaylistDeleted},
		} {
			if err := repos.Playlists.Create(&pl); err != nil {
				t.Fatal(err)
			}
		}

		mixes, err := repos.Playlists.List(models.PlaylistMix)
		if err != nil {
			t.Fatal(err)
		}
		if len(mixes) != 2 || mixes[0].ID != "b" {
			t.Errorf("expected two mixes ordered by name, got %+v", mixes)
		}

		all, err := repos.Playlists.List()
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 playlists, got %d", len(all))
		}
	})

	t.Run("Reconciled", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		seedTracks(t, repos, "a", "b")
		if err := repos.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistMix, SnapshotID: "s1", Updates: true}); err != nil {
			t.Fatal(err)
		}
		if _, err := repos.Links.AddPlaylistTracks("p1", []string{"a", "b"}); err != nil {
			t.Fatal(err)
		}

		if err := repos.Playlists.Reconciled("p1", "", false, true); err != nil {
			t.Fatal(err)
		}
		p1, _ := repos.Playlists.Get("p1")
		if p1.SnapshotID != "s1" || p1.Updates || p1.TrackCount != 2 {
			t.Errorf("unexpected state after reconcile: %+v", p1)
		}

		if err := repos.Playlists.Reconciled("p1", "s2", true, false); err != nil {
			t.Fatal(err)
		}
		p1, _ = repos.Playlists.Get("p1")
		if p1.SnapshotID != "s2" || !p1.Updates {
			t.Errorf("unexpected state after second reconcile: %+v", p1)
		}

		if err := repos.Playlists.Reconciled("missing", "s", false, false); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestLabelRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repos := setupTestStore(t).Repos()

		label := &models.Label{Name: "Shoegaze", Type: models.LabelGenre, Color: "#aa00ff"}
		if err := repos.Labels.Create(label); err != nil {
			t.Fatalf("failed to create label: %v", err)
		}
		if label.ID == 0 {
			t.Fatal("label ID should be set after creation")
		}

		got, err := repos.Labels.Get(label.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "Shoegaze" || got.Color != "#aa00ff" {
			t.Errorf("unexpected label: %+v", got)
		}

		byName, err := repos.Labels.GetByName("Shoegaze")
		if err != nil || byName.ID != label.ID {
			t.Errorf("GetByName() = %+v, %v", byName, err)
		}
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if err := repos.Labels.Create(&models.Label{Name: "Chill", Type: models.LabelMood}); err != nil {
			t.Fatal(err)
		}
		if err := repos.Labels.Create(&models.Label{Name: "Chill", Type: models.LabelMood}); err == nil {
			t.Error("expected unique constraint violation")
		}
	})

	t.Run("Subtree and Children", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		rock := &models.Label{Name: "Rock", Type: models.LabelGenre}
		if err := repos.Labels.Create(rock); err != nil {
			t.Fatal(err)
		}
		indie := &models.Label{Name: "Indie", Type: models.LabelGenre, ParentID: &rock.ID}
		if err := repos.Labels.Create(indie); err != nil {
			t.Fatal(err)
		}
		shoegaze := &models.Label{Name: "Shoegaze", Type: models.LabelGenre, ParentID: &indie.ID}
		if err := repos.Labels.Create(shoegaze); err != nil {
			t.Fatal(err)
		}

		ids, err := repos.Labels.Subtree(rock.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 3 {
			t.Errorf("expected 3 labels in subtree, got %v", ids)
		}

		children, err := repos.Labels.Children(rock.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(children) != 1 || children[0].ID != indie.ID {
			t.Errorf("expected Indie as the only child, got %+v", children)
		}
	})

	t.Run("Delete converts label playlists and cascades", func(t *testing.T) {
		store := setupTestStore(t)
		repos := store.Repos()
		seedTracks(t, repos, "t1")

		rock := &models.Label{Name: "Rock", Type: models.LabelGenre}
		if err := repos.Labels.Create(rock); err != nil {
			t.Fatal(err)
		}
		indie := &models.Label{Name: "Indie", Type: models.LabelGenre, ParentID: &rock.ID}
		if err := repos.Labels.Create(indie); err != nil {
			t.Fatal(err)
		}
		if err := repos.Playlists.Create(&models.Playlist{ID: "p-indie", Type: models.PlaylistLabel, LabelID: &indie.ID}); err != nil {
			t.Fatal(err)
		}
		if _, err := repos.Links.AddLabelTracks(indie.ID, []string{"t1"}); err != nil {
			t.Fatal(err)
		}

		err := store.InTx(context.Background(), func(tx *Repos) error {
			return tx.Labels.Delete(rock.ID)
		})
		if err != nil {
			t.Fatalf("failed to delete label: %v", err)
		}

		if _, err := repos.Labels.Get(indie.ID); !errors.Is(err, shared.ErrLabelNotFound) {
			t.Errorf("expected subgenre to be deleted, got %v", err)
		}
		pl, err := repos.Playlists.Get("p-indie")
		if err != nil {
			t.Fatal(err)
		}
		if pl.Type != models.PlaylistMix || pl.LabelID != nil {
			t.Errorf("expected playlist to become a mix, got %+v", pl)
		}
		tagged, _ := repos.Links.LabelTrackIDs(indie.ID)
		if len(tagged) != 0 {
			t.Errorf("expected tags to cascade, got %v", tagged)
		}
	})

	t.Run("Delete missing", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if err := repos.Labels.Delete(99); !errors.Is(err, shared.ErrLabelNotFound) {
			t.Errorf("expected ErrLabelNotFound, got %v", err)
		}
	})
}

func TestAssociationRepository(t *testing.T) {
	setup := func(t *testing.T) *Repos {
		repos := setupTestStore(t).Repos()
		seedTracks(t, repos, "a", "b", "c", "d")
		if err := repos.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistMix}); err != nil {
			t.Fatal(err)
		}
		return repos
	}

	t.Run("AddPlaylistTracks appends after last position", func(t *testing.T) {
		repos := setup(t)

		n, err := repos.Links.AddPlaylistTracks("p1", []string{"b", "a"})
		if err != nil || n != 2 {
			t.Fatalf("AddPlaylistTracks() = %d, %v", n, err)
		}
		n, err = repos.Links.AddPlaylistTracks("p1", []string{"a", "c", "c"})
		if err != nil || n != 1 {
			t.Fatalf("expected one new link, got %d, %v", n, err)
		}

		ids, _ := repos.Links.PlaylistTrackIDs("p1")
		if !reflect.DeepEqual(ids, []string{"b", "a", "c"}) {
			t.Errorf("expected [b a c], got %v", ids)
		}
	})

	t.Run("SetPlaylistTracks mirrors order", func(t *testing.T) {
		repos := setup(t)
		if _, err := repos.Links.AddPlaylistTracks("p1", []string{"a", "b", "c"}); err != nil {
			t.Fatal(err)
		}

		if err := repos.Links.SetPlaylistTracks("p1", []string{"d", "b", "d"}); err != nil {
			t.Fatal(err)
		}
		ids, _ := repos.Links.PlaylistTrackIDs("p1")
		if !reflect.DeepEqual(ids, []string{"d", "b"}) {
			t.Errorf("expected [d b], got %v", ids)
		}

		tracks, err := repos.Tracks.ForPlaylist("p1")
		if err != nil {
			t.Fatal(err)
		}
		if len(tracks) != 2 || tracks[0].ID != "d" {
			t.Errorf("ForPlaylist() should follow positions, got %+v", tracks)
		}
	})

	t.Run("RemovePlaylistTracks", func(t *testing.T) {
		repos := setup(t)
		if _, err := repos.Links.AddPlaylistTracks("p1", []string{"a", "b", "c"}); err != nil {
			t.Fatal(err)
		}
		n, err := repos.Links.RemovePlaylistTracks("p1", []string{"a", "z"})
		if err != nil || n != 1 {
			t.Fatalf("RemovePlaylistTracks() = %d, %v", n, err)
		}
		count, _ := repos.Links.CountPlaylistTracks("p1")
		if count != 2 {
			t.Errorf("expected 2 links left, got %d", count)
		}

		if err := repos.Links.ClearPlaylist("p1"); err != nil {
			t.Fatal(err)
		}
		count, _ = repos.Links.CountPlaylistTracks("p1")
		if count != 0 {
			t.Errorf("expected empty playlist, got %d", count)
		}
	})

	t.Run("Label tags", func(t *testing.T) {
		repos := setup(t)
		label := &models.Label{Name: "Chill", Type: models.LabelMood}
		if err := repos.Labels.Create(label); err != nil {
			t.Fatal(err)
		}

		n, err := repos.Links.AddLabelTracks(label.ID, []string{"a", "b", "a"})
		if err != nil || n != 2 {
			t.Fatalf("AddLabelTracks() = %d, %v", n, err)
		}
		n, _ = repos.Links.AddLabelTracks(label.ID, []string{"b"})
		if n != 0 {
			t.Errorf("expected existing tag to be ignored, got %d", n)
		}

		n, err = repos.Links.RemoveLabelTracks(label.ID, []string{"a"})
		if err != nil || n != 1 {
			t.Fatalf("RemoveLabelTracks() = %d, %v", n, err)
		}
		tracks, _ := repos.Tracks.ForLabel(label.ID)
		if len(tracks) != 1 || tracks[0].ID != "b" {
			t.Errorf("expected only b to stay tagged, got %+v", tracks)
		}
	})

	t.Run("links require existing tracks", func(t *testing.T) {
		repos := setup(t)
		if _, err := repos.Links.AddPlaylistTracks("p1", []string{"ghost"}); err == nil {
			t.Error("expected foreign key violation for unknown track")
		}
	})
}

func TestUserRepository(t *testing.T) {
	t.Run("Save and Current", func(t *testing.T) {
		repos := setupTestStore(t).Repos()

		u := &models.User{ID: "me", DisplayName: "Me"}
		u.SetToken(&oauth2.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)})
		if err := repos.Users.Save(u); err != nil {
			t.Fatalf("failed to save user: %v", err)
		}

		u.SetToken(&oauth2.Token{AccessToken: "a2", TokenType: "Bearer"})
		if err := repos.Users.Save(u); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		current, err := repos.Users.Current()
		if err != nil {
			t.Fatal(err)
		}
		if current.AccessToken != "a2" {
			t.Errorf("expected refreshed access token, got %q", current.AccessToken)
		}
		if current.RefreshToken != "r1" {
			t.Errorf("expected refresh token to be kept, got %q", current.RefreshToken)
		}
	})

	t.Run("Current without users", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if _, err := repos.Users.Current(); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("MarkSynced", func(t *testing.T) {
		repos := setupTestStore(t).Repos()
		if err := repos.Users.Save(&models.User{ID: "me"}); err != nil {
			t.Fatal(err)
		}
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if err := repos.Users.MarkSynced("me", at); err != nil {
			t.Fatal(err)
		}
		u, _ := repos.Users.Get("me")
		if u.SyncedAt == nil || !u.SyncedAt.Equal(at) {
			t.Errorf("expected synced_at %v, got %v", at, u.SyncedAt)
		}
	})
}

func TestStoreInTx(t *testing.T) {
	t.Run("rolls back on error", func(t *testing.T) {
		store := setupTestStore(t)
		boom := errors.New("boom")

		err := store.InTx(context.Background(), func(tx *Repos) error {
			if err := tx.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistMix}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := store.Repos().Playlists.Get("p1"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected rollback, got %v", err)
		}
	})

	t.Run("commits when cancelled", func(t *testing.T) {
		store := setupTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.InTx(ctx, func(tx *Repos) error {
			return tx.Playlists.Create(&models.Playlist{ID: "p1", Type: models.PlaylistMix})
		})
		if err != nil {
			t.Fatalf("expected commit despite cancelled context, got %v", err)
		}
		if _, err := store.Repos().Playlists.Get("p1"); err != nil {
			t.Errorf("expected committed playlist, got %v", err)
		}
	})
}

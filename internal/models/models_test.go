package models

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

func ptr[T any](v T) *T { return &v }

func TestPlaylist(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			pl      Playlist
			wantErr error
		}{
			{name: "untracked", pl: Playlist{ID: "p1", Type: PlaylistUntracked}},
			{name: "label with id", pl: Playlist{ID: "p1", Type: PlaylistLabel, LabelID: ptr(int64(7))}},
			{name: "label without id", pl: Playlist{ID: "p1", Type: PlaylistLabel}, wantErr: shared.ErrInvalidLabel},
			{name: "mix with label id", pl: Playlist{ID: "p1", Type: PlaylistMix, LabelID: ptr(int64(7))}, wantErr: shared.ErrInvalidLabel},
			{name: "missing id", pl: Playlist{Type: PlaylistMix}, wantErr: shared.ErrInvalidInput},
			{name: "unknown type", pl: Playlist{ID: "p1", Type: "smart"}, wantErr: shared.ErrInvalidInput},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.pl.Validate()
				if tt.wantErr == nil && err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	})

	t.Run("PlaylistPatch Apply", func(t *testing.T) {
		pl := Playlist{ID: "p1", Name: "old", Description: "keep", Type: PlaylistLabel, LabelID: ptr(int64(3))}

		PlaylistPatch{Name: ptr("  new  ")}.Apply(&pl)
		if pl.Name != "new" || pl.Description != "keep" || pl.LabelID == nil {
			t.Errorf("expected only the name to change, got %+v", pl)
		}

		PlaylistPatch{Type: ptr(PlaylistMix)}.Apply(&pl)
		if pl.Type != PlaylistMix || pl.LabelID != nil {
			t.Errorf("expected label reference to be cleared on leaving label type, got %+v", pl)
		}

		PlaylistPatch{Type: ptr(PlaylistLabel), LabelID: ptr(int64(9))}.Apply(&pl)
		if pl.Type != PlaylistLabel || pl.LabelID == nil || *pl.LabelID != 9 {
			t.Errorf("expected label 9, got %+v", pl)
		}
	})

	t.Run("PlaylistPatch Empty", func(t *testing.T) {
		if !(PlaylistPatch{}).Empty() {
			t.Error("zero patch should be empty")
		}
		if (PlaylistPatch{Description: ptr("")}).Empty() {
			t.Error("patch with description should not be empty")
		}
	})

	t.Run("NewPlaylist Validate", func(t *testing.T) {
		if err := (&NewPlaylist{Type: PlaylistLabel}).Validate(); !errors.Is(err, shared.ErrInvalidLabel) {
			t.Errorf("expected ErrInvalidLabel, got %v", err)
		}
		if err := (&NewPlaylist{Type: PlaylistMix}).Validate(); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for unnamed mix, got %v", err)
		}
		if err := (&NewPlaylist{Type: PlaylistUntracked, Name: "x"}).Validate(); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for untracked, got %v", err)
		}
		if err := (&NewPlaylist{Type: PlaylistMix, Name: "Road trip"}).Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Label playlist naming", func(t *testing.T) {
		l := &Label{Name: "Shoegaze", Type: LabelGenre}
		if got := LabelPlaylistName(l); got != "< Shoegaze >" {
			t.Errorf("LabelPlaylistName() = %q", got)
		}
		want := "Playlist generated by MoodMusic, associated with genre label: < Shoegaze >"
		if got := LabelPlaylistDescription(l); got != want {
			t.Errorf("LabelPlaylistDescription() = %q", got)
		}
	})
}

func TestPlaylistType(t *testing.T) {
	for _, tt := range []struct {
		typ     PlaylistType
		managed bool
	}{
		{PlaylistUntracked, false},
		{PlaylistLabel, true},
		{PlaylistMix, true},
		{PlaylistDeleted, false},
	} {
		if tt.typ.Managed() != tt.managed {
			t.Errorf("%s.Managed() = %v", tt.typ, !tt.managed)
		}
		if !tt.typ.Valid() {
			t.Errorf("%s should be valid", tt.typ)
		}
	}
}

func TestLabel(t *testing.T) {
	t.Run("only genres may have parents", func(t *testing.T) {
		mood := Label{Name: "Chill", Type: LabelMood, ParentID: ptr(int64(1))}
		if err := mood.Validate(); !errors.Is(err, shared.ErrInvalidLabel) {
			t.Errorf("expected ErrInvalidLabel, got %v", err)
		}

		genre := Label{Name: "Dream pop", Type: LabelGenre, ParentID: ptr(int64(1))}
		if err := genre.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("self parent", func(t *testing.T) {
		l := Label{ID: 4, Name: "Loop", Type: LabelGenre, ParentID: ptr(int64(4))}
		if err := l.Validate(); !errors.Is(err, shared.ErrInvalidLabel) {
			t.Errorf("expected ErrInvalidLabel, got %v", err)
		}
	})

	t.Run("name required", func(t *testing.T) {
		l := Label{Name: "  ", Type: LabelMood}
		if err := l.Validate(); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("LabelPatch Apply", func(t *testing.T) {
		l := Label{Name: "Rock", Type: LabelGenre, ParentID: ptr(int64(2))}
		LabelPatch{Color: ptr("#fff"), ClearParent: true}.Apply(&l)
		if l.Color != "#fff" || l.ParentID != nil || l.Name != "Rock" {
			t.Errorf("unexpected label after patch: %+v", l)
		}
	})
}

func TestUserToken(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &User{ID: "me"}
	u.SetToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: exp})

	tok := u.Token()
	if tok.AccessToken != "a" || tok.RefreshToken != "r" || !tok.Expiry.Equal(exp) {
		t.Errorf("token did not round trip: %+v", tok)
	}

	cred := u.Credential()
	if err := cred.Validate(); err != nil {
		t.Errorf("unexpected credential error: %v", err)
	}
	if err := (Credential{UserID: "me"}).Validate(); !errors.Is(err, shared.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestPlaylistChangesMerge(t *testing.T) {
	a := PlaylistChanges{ID: "p", SnapshotID: "s1", TrackCountDelta: -1}
	b := PlaylistChanges{SnapshotID: "s2", TrackCountDelta: 3}
	got := a.Merge(b)
	if got.SnapshotID != "s2" || got.TrackCountDelta != 2 || got.ID != "p" {
		t.Errorf("Merge() = %+v", got)
	}
	if kept := got.Merge(PlaylistChanges{}); kept.SnapshotID != "s2" {
		t.Errorf("empty snapshot should not override, got %q", kept.SnapshotID)
	}
}

package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
)

func TestOAuthHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantToken  bool
		wantErr    error
	}{
		{"successful exchange", "?state=s1&code=good", http.StatusOK, true, nil},
		{"state mismatch", "?state=other&code=good", http.StatusBadRequest, false, shared.ErrAuthFailed},
		{"provider denied", "?state=s1&error=access_denied", http.StatusBadRequest, false, shared.ErrAuthFailed},
		{"exchange failure", "?state=s1&code=bad", http.StatusInternalServerError, false, shared.ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(&stubAuth{}, "s1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			select {
			case res := <-h.Result():
				if tt.wantToken && (res.Token == nil || res.Token.AccessToken == "") {
					t.Error("expected a token")
				}
				if tt.wantErr != nil && !errors.Is(res.Error(), tt.wantErr) {
					t.Errorf("error = %v, want %v", res.Error(), tt.wantErr)
				}
				if tt.wantErr == nil && res.Error() != nil {
					t.Errorf("unexpected error: %v", res.Error())
				}
			case <-time.After(time.Second):
				t.Fatal("no result delivered")
			}
		})
	}
}

func TestOAuthHandler_SingleUse(t *testing.T) {
	h := NewOAuthHandler(&stubAuth{}, "s1")
	r := NewRouter(shared.NewLogger(io.Discard), 0)
	Mount(r, h)
	srv := httptest.NewServer(r)
	defer srv.Close()

	first, err := http.Get(srv.URL + "/callback?state=s1&code=good")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(first.Body)
	first.Body.Close()
	if first.StatusCode != http.StatusOK || !strings.Contains(string(body), "Logged in") {
		t.Errorf("first callback: status %d body %q", first.StatusCode, body)
	}

	second, err := http.Get(srv.URL + "/callback?state=s1&code=good")
	if err != nil {
		t.Fatal(err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusBadRequest {
		t.Errorf("second callback status = %d, want 400", second.StatusCode)
	}

	res, ok := <-h.Result()
	if !ok || res.Token == nil {
		t.Fatal("expected the first callback's token")
	}
	if _, ok := <-h.Result(); ok {
		t.Error("result channel should be closed after one result")
	}
}

func TestStateStore(t *testing.T) {
	s := newStateStore(time.Minute)
	state := s.issue()
	if state == "" {
		t.Fatal("expected a state token")
	}
	if !s.consume(state) {
		t.Error("issued state should be accepted")
	}
	if s.consume(state) {
		t.Error("state should only be accepted once")
	}

	expired := newStateStore(-time.Second)
	if expired.consume(expired.issue()) {
		t.Error("expired state should be rejected")
	}
}

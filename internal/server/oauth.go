package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/desertthunder/moodmusic/internal/shared"
	"golang.org/x/oauth2"
)

// OAuthResult is the outcome of one authorization redirect.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler accepts the redirect for a single command-line login.
//
// Only the state passed to [NewOAuthHandler] is accepted, and only once. The first
// redirect, good or bad, is reported on [OAuthHandler.Result].
type OAuthHandler struct {
	exchanger Exchanger
	states    *stateStore
	results   chan OAuthResult
	once      sync.Once
}

// NewOAuthHandler creates a handler expecting state.
func NewOAuthHandler(exchanger Exchanger, state string) *OAuthHandler {
	states := newStateStore(loginStateTTL)
	states.register(state)
	return &OAuthHandler{
		exchanger: exchanger,
		states:    states,
		results:   make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code, err := callbackCode(h.states, r.URL.Query())
	if err != nil {
		h.Send(OAuthResult{err: err})
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tok, err := h.exchanger.Exchange(context.WithoutCancel(r.Context()), code)
	if err != nil {
		h.Send(OAuthResult{err: err})
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	h.Send(OAuthResult{Token: tok})
	writeLoginPage(w)
}

// Send delivers result if none was delivered yet, then closes the channel.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result yields exactly one [OAuthResult].
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

// callbackCode checks an authorization redirect against the issued states and returns its code.
func callbackCode(states *stateStore, q url.Values) (string, error) {
	if !states.consume(q.Get("state")) {
		return "", fmt.Errorf("%w: unknown or expired state", shared.ErrAuthFailed)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
	}
	return code, nil
}

const loginPage = `<!DOCTYPE html>
<html>
<head><title>moodmusic</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
  <h1 style="color: #1DB954">Logged in</h1>
  <p>moodmusic can now mirror your library. You can close this window.</p>
</body>
</html>
`

func writeLoginPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, loginPage)
}

// stateStore remembers OAuth2 state tokens until they are used or expire.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, issued: make(map[string]time.Time)}
}

// issue generates and registers a new state.
func (s *stateStore) issue() string {
	state := shared.GenerateID()
	s.register(state)
	return state
}

func (s *stateStore) register(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, at := range s.issued {
		if now.Sub(at) > s.ttl {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now
}

// consume reports whether state was issued and unexpired, and forgets it.
func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return time.Since(at) <= s.ttl
}

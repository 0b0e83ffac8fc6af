package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/rs/zerolog"
)

func mustSignedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

type fakeTokenStore struct {
	token   string
	present bool
	cleared int
}

func (f *fakeTokenStore) GetToken() (string, bool, error) { return f.token, f.present, nil }
func (f *fakeTokenStore) ClearSession() error              { f.cleared++; return nil }

func newTestClient(url string, tokens TokenStore, events EventPublisher) *Client {
	return New(url, 2*time.Second, tokens, events, zerolog.Nop())
}

func TestClient_InjectsBearerToken(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokenStore{token: "abc123", present: true}
	client := newTestClient(server.URL, tokens, eventbus.New())

	resp, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if captured != "Bearer abc123" {
		t.Errorf("expected bearer header, got %q", captured)
	}
}

func TestClient_NoTokenMeansNoAuthHeader(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokenStore{present: false}
	client := newTestClient(server.URL, tokens, eventbus.New())

	resp, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if captured != "" {
		t.Errorf("expected no Authorization header, got %q", captured)
	}
}

func TestClient_401WithTokenClearsSessionAndPublishes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokenStore{token: "expired", present: true}
	bus := eventbus.New()
	var published eventbus.AuthChangedEvent
	var gotEvent bool
	bus.Subscribe(eventbus.TopicAuthChanged, func(e any) {
		published = e.(eventbus.AuthChangedEvent)
		gotEvent = true
	})

	client := newTestClient(server.URL, tokens, bus)
	_, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)

	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected HTTPError{401}, got %v", err)
	}
	if tokens.cleared != 1 {
		t.Errorf("expected ClearSession to be called once, got %d", tokens.cleared)
	}
	if !gotEvent || published.LoggedIn {
		t.Errorf("expected auth.changed{LoggedIn:false}, got %+v (published=%v)", published, gotEvent)
	}
}

func TestClient_401WithoutTokenDoesNotClearSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &fakeTokenStore{present: false}
	client := newTestClient(server.URL, tokens, eventbus.New())

	_, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)
	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected HTTPError{401}, got %v", err)
	}
	if tokens.cleared != 0 {
		t.Errorf("expected ClearSession not called, got %d calls", tokens.cleared)
	}
}

func TestClient_ExpiredTokenSkipsRoundTripAndClearsSession(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &fakeTokenStore{token: mustSignedToken(t, time.Now().Add(-time.Hour)), present: true}
	bus := eventbus.New()
	var gotEvent bool
	bus.Subscribe(eventbus.TopicAuthChanged, func(e any) { gotEvent = true })

	client := newTestClient(server.URL, tokens, bus)
	_, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)

	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected HTTPError{401}, got %v", err)
	}
	if called {
		t.Error("expected no HTTP round-trip for a token already past its exp claim")
	}
	if tokens.cleared != 1 {
		t.Errorf("expected ClearSession to be called once, got %d", tokens.cleared)
	}
	if !gotEvent {
		t.Error("expected auth.changed event published")
	}
}

func TestClient_ProjectsNetworkError(t *testing.T) {
	tokens := &fakeTokenStore{}
	client := newTestClient("http://127.0.0.1:1", tokens, eventbus.New())

	_, err := client.Do(context.Background(), http.MethodGet, "/notes", nil, nil)
	var netErr NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v (%T)", err, err)
	}
}

func TestClient_ProjectsHTTPErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"validation"}`))
	}))
	defer server.Close()

	tokens := &fakeTokenStore{}
	client := newTestClient(server.URL, tokens, eventbus.New())

	_, err := client.Do(context.Background(), http.MethodPost, "/notes", nil, nil)
	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected HTTPError{422}, got %v", err)
	}
	if string(httpErr.Body) != `{"error":"validation"}` {
		t.Errorf("unexpected body: %s", httpErr.Body)
	}
}

func TestExpiresProactively(t *testing.T) {
	// A malformed token (not a JWT at all) should not be treated as
	// expired — it should fail to parse and report false.
	if ExpiresProactively("not-a-jwt") {
		t.Error("expected false for unparseable token")
	}
}

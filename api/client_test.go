package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/aranyahq/aranya-go/api"
	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/notify/notifyfakes"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	store    *credentials.MemoryStore
	notifier *notifyfakes.FakeNotifier
	server   *httptest.Server
	client   *api.Client
}

func newTestFixture(t *testing.T, handler http.Handler) *testFixture {
	t.Helper()

	store := credentials.NewMemoryStore()
	notifier := notifyfakes.NewFakeNotifier()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := api.New(server.URL, store, api.WithNotifier(notifier))
	require.NoError(t, err)

	return &testFixture{store: store, notifier: notifier, server: server, client: client}
}

// seedSession stores the session used throughout: access token "A", refresh
// token "R", user jane.
func (f *testFixture) seedSession(t *testing.T) {
	t.Helper()
	require.NoError(t, credentials.SaveSession(f.store, credentials.Session{
		AccessToken:  "A",
		RefreshToken: "R",
		User:         `{"username":"jane"}`,
	}))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestAttachesStoredBearerToken(t *testing.T) {
	var gotAuth string
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]int{"id": 1})
	}))
	fixture.seedSession(t)

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, fixture.client.Get(context.Background(), "/journal/", &out))
	require.Equal(t, "Bearer A", gotAuth)
	require.Equal(t, 1, out.ID)
}

func TestSendsUnauthenticatedWhenNoTokenStored(t *testing.T) {
	var gotAuth string
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]string{})
	}))

	require.NoError(t, fixture.client.Get(context.Background(), "/knowledge-hub/", nil))
	require.Empty(t, gotAuth)
}

func TestRefreshAndRetryIsTransparentToCaller(t *testing.T) {
	var protectedCalls, refreshCalls int32
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token/refresh/":
			atomic.AddInt32(&refreshCalls, 1)
			var body struct {
				Refresh string `json:"refresh"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "R", body.Refresh)
			writeJSON(w, http.StatusOK, map[string]string{"access": "B"})
		case "/protected":
			atomic.AddInt32(&protectedCalls, 1)
			if r.Header.Get("Authorization") == "Bearer B" {
				writeJSON(w, http.StatusOK, map[string]int{"id": 1})
				return
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
		default:
			http.NotFound(w, r)
		}
	}))
	fixture.seedSession(t)

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, fixture.client.Get(context.Background(), "/protected", &out))

	require.Equal(t, 1, out.ID)
	require.EqualValues(t, 2, protectedCalls)
	require.EqualValues(t, 1, refreshCalls)

	token, ok := fixture.store.Get(credentials.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, "B", token)

	// The refresh rewrites only the access token.
	refresh, ok := fixture.store.Get(credentials.KeyRefreshToken)
	require.True(t, ok)
	require.Equal(t, "R", refresh)

	require.Equal(t, []string{"Session refreshed"}, fixture.notifier.Titles())
}

func TestSecond401SurfacesWithoutAnotherRefresh(t *testing.T) {
	var refreshCalls int32
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			atomic.AddInt32(&refreshCalls, 1)
			writeJSON(w, http.StatusOK, map[string]string{"access": "B"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "still not welcome"})
	}))
	fixture.seedSession(t)

	err := fixture.client.Get(context.Background(), "/protected", nil)
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.NotErrorIs(t, err, api.ErrSessionExpired)
	require.EqualValues(t, 1, refreshCalls)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, nil)
	}))
	fixture.seedSession(t)

	var expired bool
	fixture.client.OnSessionExpired(func() { expired = true })

	err := fixture.client.Get(context.Background(), "/protected", nil)
	require.ErrorIs(t, err, api.ErrSessionExpired)
	require.True(t, expired)

	// All three keys are gone, never a partial clear.
	for _, key := range credentials.SessionKeys() {
		_, ok := fixture.store.Get(key)
		require.False(t, ok, "key %q should be absent", key)
	}

	require.Equal(t, []string{"Session expired"}, fixture.notifier.Titles())
}

func TestMissingRefreshTokenExpiresSession(t *testing.T) {
	var refreshCalls int32
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			atomic.AddInt32(&refreshCalls, 1)
		}
		writeJSON(w, http.StatusUnauthorized, nil)
	}))
	require.NoError(t, fixture.store.Set(credentials.KeyAccessToken, "A"))

	err := fixture.client.Get(context.Background(), "/protected", nil)
	require.ErrorIs(t, err, api.ErrSessionExpired)
	require.EqualValues(t, 0, refreshCalls)
}

func TestWithoutRefreshSurfaces401Directly(t *testing.T) {
	var refreshCalls int32
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/token/refresh/" {
			atomic.AddInt32(&refreshCalls, 1)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid token"})
	}))
	fixture.seedSession(t)

	err := fixture.client.Get(context.Background(), "/auth/user", nil, api.WithoutRefresh())
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.EqualValues(t, 0, refreshCalls)

	// The session stays intact: only a refresh failure tears it down.
	_, ok := fixture.store.Get(credentials.KeyRefreshToken)
	require.True(t, ok)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		wantErr   error
		wantTitle string
	}{
		{"forbidden", http.StatusForbidden, map[string]string{"message": "not yours"}, api.ErrForbidden, "Access denied"},
		{"not found", http.StatusNotFound, nil, api.ErrNotFound, "Not found"},
		{"server error", http.StatusInternalServerError, nil, api.ErrServer, "Server error"},
		{"bad gateway", http.StatusBadGateway, nil, api.ErrServer, "Server error"},
		{"validation", http.StatusBadRequest, map[string]string{"message": "username taken"}, api.ErrValidation, "Error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))

			err := fixture.client.Get(context.Background(), "/resource", nil)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, []string{tc.wantTitle}, fixture.notifier.Titles())
		})
	}
}

func TestValidationErrorCarriesBackendMessage(t *testing.T) {
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "username taken"})
	}))

	err := fixture.client.Post(context.Background(), "/auth/register/", map[string]string{}, nil)
	require.ErrorIs(t, err, api.ErrValidation)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "username taken", apiErr.Message)
}

func TestNetworkFailureClassifiesAsNetworkError(t *testing.T) {
	store := credentials.NewMemoryStore()
	notifier := notifyfakes.NewFakeNotifier()
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := api.New(server.URL, store, api.WithNotifier(notifier))
	require.NoError(t, err)

	err = client.Get(context.Background(), "/resource", nil)
	require.ErrorIs(t, err, api.ErrNetwork)
	require.Equal(t, []string{"Network error"}, notifier.Titles())
}

func TestWithoutNotificationSuppressesReporting(t *testing.T) {
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, nil)
	}))

	err := fixture.client.Get(context.Background(), "/resource", nil, api.WithoutNotification())
	require.ErrorIs(t, err, api.ErrNotFound)
	require.Empty(t, fixture.notifier.Notifications())
}

func TestQueryParametersAreEncoded(t *testing.T) {
	var gotQuery url.Values
	fixture := newTestFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, []any{})
	}))

	query := url.Values{}
	query.Set("search", "2024-06-01")
	require.NoError(t, fixture.client.Get(context.Background(), "/journal/", nil, api.WithQuery(query)))
	require.Equal(t, "2024-06-01", gotQuery.Get("search"))
}

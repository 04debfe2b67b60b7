package devserver_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aranyahq/aranya-go/api"
	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/internal/config"
	"github.com/aranyahq/aranya-go/internal/devserver"
	"github.com/aranyahq/aranya-go/notify/notifyfakes"
	"github.com/aranyahq/aranya-go/resources"
	"github.com/aranyahq/aranya-go/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testFixture runs the full stack: sqlite store, dev server, and a real
// client and manager talking to it over HTTP.
type testFixture struct {
	server   *httptest.Server
	store    *devserver.Store
	creds    *credentials.MemoryStore
	notifier *notifyfakes.FakeNotifier
	client   *api.Client
	manager  *session.Manager
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	store, err := devserver.OpenStore(filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.DevServer{
		JWTSecret:      "test-secret",
		AccessTokenTTL: 15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		AllowedOrigins: []string{"*"},
	}
	server := httptest.NewServer(devserver.New(cfg, store, zerolog.Nop()).Handler())
	t.Cleanup(server.Close)

	creds := credentials.NewMemoryStore()
	notifier := notifyfakes.NewFakeNotifier()
	client, err := api.New(server.URL, creds, api.WithNotifier(notifier))
	require.NoError(t, err)

	manager, err := session.NewManager(client, creds, session.WithNotifier(notifier))
	require.NoError(t, err)

	return &testFixture{
		server:   server,
		store:    store,
		creds:    creds,
		notifier: notifier,
		client:   client,
		manager:  manager,
	}
}

func (f *testFixture) register(t *testing.T) {
	t.Helper()
	_, err := f.manager.Register(context.Background(), session.RegisterParams{
		Username:        "jane",
		Email:           "jane@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		FirstName:       "Jane",
		LastName:        "Doe",
	})
	require.NoError(t, err)
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.manager.Login(context.Background(), "jane", "hunter22")
	require.NoError(t, err)
}

func TestRegisterLoginAndJournalFlow(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.register(t)
	require.False(t, f.manager.IsAuthenticated(), "registration must not establish a session")

	profile, err := f.manager.Login(ctx, "jane", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "jane", profile.Username)
	require.Equal(t, "Jane Doe", profile.DisplayName)
	require.True(t, f.manager.IsAuthenticated())

	journal := resources.NewJournal(f.client)

	created, err := journal.Create(ctx, "calm", "slept well, long walk")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	entries, err := journal.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "slept well, long walk", entries[0].Content)

	updated, err := journal.Update(ctx, created.ID, "happy", "slept well, long walk, good coffee")
	require.NoError(t, err)
	require.Equal(t, "happy", updated.Mood)

	require.NoError(t, journal.Delete(ctx, created.ID))

	entries, err = journal.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLoginWithEmail(t *testing.T) {
	f := newTestFixture(t)

	f.register(t)
	profile, err := f.manager.Login(context.Background(), "jane@example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, "jane", profile.Username)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newTestFixture(t)

	f.register(t)
	_, err := f.manager.Login(context.Background(), "jane", "wrong")
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.False(t, f.manager.IsAuthenticated())
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	f := newTestFixture(t)

	f.register(t)
	_, err := f.manager.Register(context.Background(), session.RegisterParams{
		Username:        "jane",
		Email:           "other@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	require.ErrorIs(t, err, api.ErrValidation)
	require.Contains(t, api.Message(err, ""), "username")
}

func TestStaleAccessTokenRefreshesTransparently(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.register(t)
	f.login(t)

	refreshBefore, _ := f.creds.Get(credentials.KeyRefreshToken)
	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "stale"))
	f.notifier.Reset()

	entries, err := resources.NewJournal(f.client).List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, entries)

	accessAfter, ok := f.creds.Get(credentials.KeyAccessToken)
	require.True(t, ok)
	require.NotEqual(t, "stale", accessAfter)

	refreshAfter, _ := f.creds.Get(credentials.KeyRefreshToken)
	require.Equal(t, refreshBefore, refreshAfter, "refresh token must survive a refresh")
	require.Equal(t, []string{"Session refreshed"}, f.notifier.Titles())
}

func TestInvalidTokensExpireSession(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.register(t)
	f.login(t)

	require.NoError(t, f.creds.Set(credentials.KeyAccessToken, "stale"))
	require.NoError(t, f.creds.Set(credentials.KeyRefreshToken, "also-stale"))
	f.notifier.Reset()

	_, err := resources.NewJournal(f.client).List(ctx, "")
	require.ErrorIs(t, err, api.ErrSessionExpired)

	for _, key := range credentials.SessionKeys() {
		_, ok := f.creds.Get(key)
		require.False(t, ok, "key %q should be cleared", key)
	}
	require.False(t, f.manager.IsAuthenticated())
}

func TestInitializeVerifiesStoredSession(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	f.register(t)
	f.login(t)

	// A second manager sharing the store models an app restart.
	restarted, err := session.NewManager(f.client, f.creds, session.WithNotifier(f.notifier))
	require.NoError(t, err)
	require.NoError(t, restarted.Initialize(ctx))
	require.True(t, restarted.IsAuthenticated())
	require.Equal(t, "jane", restarted.Current().User.Username)
}

func TestSeededContentIsServed(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	knowledge := resources.NewKnowledge(f.client)

	hubs, err := knowledge.Hubs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, hubs)

	articles, err := knowledge.Articles(ctx, resources.ArticleFilter{HubID: hubs[0].ID})
	require.NoError(t, err)
	for _, article := range articles {
		require.Equal(t, hubs[0].ID, article.HubID)
	}

	questions, err := resources.NewDiscovery(f.client).Questions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, questions)
	require.NotEmpty(t, questions[0].Options)
}

func TestSubmitResponsesRequiresSession(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	discovery := resources.NewDiscovery(f.client)

	responses := []resources.QuestionResponse{{QuestionID: 1, SelectedOption: 0}}

	err := discovery.SubmitResponses(ctx, responses)
	require.ErrorIs(t, err, api.ErrSessionExpired, "no stored session to refresh from")

	f.register(t)
	f.login(t)
	require.NoError(t, discovery.SubmitResponses(ctx, responses))
}

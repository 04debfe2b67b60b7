package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aranyahq/aranya-go/api"
	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/notify"
	"github.com/rs/zerolog"
)

// LoginRoute is the navigation target whenever the session ends, whether by
// logout, refresh failure, or a rejected startup verification.
const LoginRoute = "/auth/login"

// Manager is the process-wide view of the current user. It keeps its
// in-memory state consistent with the credential store and publishes every
// change to subscribers. All methods are safe for concurrent use.
type Manager struct {
	client   *api.Client
	creds    credentials.Store
	notifier notify.Notifier
	log      zerolog.Logger
	navigate func(route string)

	mu          sync.RWMutex
	user        *UserProfile
	loading     bool
	initialized bool
	subscribers []func(State)
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets the sink for user-facing notifications.
func WithNotifier(notifier notify.Notifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithLogger sets the manager logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithNavigator sets the function invoked when the manager needs the consumer
// to move to a different route, such as the login screen after a logout. The
// default does nothing.
func WithNavigator(navigate func(route string)) Option {
	return func(m *Manager) {
		m.navigate = navigate
	}
}

// NewManager creates a session manager on top of the dispatcher and the
// credential store. It registers itself as the client's session-expiry
// handler, so a failed refresh anywhere in the process drops the current
// user and triggers the login redirect.
func NewManager(client *api.Client, creds credentials.Store, options ...Option) (*Manager, error) {
	if client == nil {
		return nil, errors.New("[NewManager] api client is required")
	}
	if creds == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}

	m := &Manager{
		client:   client,
		creds:    creds,
		notifier: notify.Nop(),
		log:      zerolog.Nop(),
		navigate: func(string) {},
		loading:  true,
	}

	for _, opt := range options {
		opt(m)
	}

	client.OnSessionExpired(m.sessionExpired)
	return m, nil
}

// Current returns a snapshot of the session state.
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{User: m.user, Loading: m.loading}
}

// IsAuthenticated reports whether a user is currently signed in.
func (m *Manager) IsAuthenticated() bool {
	return m.Current().IsAuthenticated()
}

// Subscribe registers fn to observe every state change. It is called
// immediately with the current state, then once per change.
func (m *Manager) Subscribe(fn func(State)) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	state := State{User: m.user, Loading: m.loading}
	m.mu.Unlock()

	fn(state)
}

// Initialize performs the one-time startup read of the credential store. A
// stored session sets the user optimistically, then the access token is
// verified against the backend; a rejected token triggers the full logout
// path, including the login redirect. Loading resolves when Initialize
// returns, in every path. Calling it again is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	sess, ok := credentials.LoadSession(m.creds)
	if !ok || sess.User == "" {
		m.setState(nil, false)
		return nil
	}

	var profile UserProfile
	if err := json.Unmarshal([]byte(sess.User), &profile); err != nil {
		m.log.Warn().Err(err).Msg("stored profile is corrupt, discarding session")
		if err := credentials.ClearSession(m.creds); err != nil {
			m.log.Error().Err(err).Msg("clearing corrupt session failed")
		}
		m.setState(nil, false)
		return nil
	}

	// Optimistic: show the cached user while the token is verified.
	m.setState(&profile, true)

	err := m.client.Do(ctx, &api.Request{
		Method:    http.MethodGet,
		Path:      "/auth/user",
		NoRefresh: true,
		Silent:    true,
	}, nil)
	if err != nil {
		m.log.Warn().Err(err).Msg("stored access token failed verification")
		m.notifier.Notify(notify.Notification{
			Title:       "Session expired",
			Description: "Your session has expired. Please log in again.",
			Variant:     notify.VariantDestructive,
		})
		if err := m.Logout(ctx); err != nil {
			m.log.Error().Err(err).Msg("logout after failed verification errored")
		}
		m.setState(nil, false)
		return nil
	}

	m.setState(&profile, false)
	return nil
}

// Login exchanges credentials for a session. On success all three credential
// keys are written together and the in-memory user is replaced; on failure
// the prior state is left untouched and the backend's rejection reason comes
// back wrapped in the error.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*UserProfile, error) {
	var out struct {
		Token   string      `json:"token"`
		Refresh string      `json:"refresh"`
		User    UserProfile `json:"user"`
	}

	err := m.client.Do(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   "/auth/login/",
		Body:   map[string]string{"username": identifier, "password": password},
		NoAuth: true,
		Silent: true,
	}, &out)
	if err != nil {
		m.notifier.Notify(notify.Notification{
			Title:       "Login failed",
			Description: api.Message(err, "Invalid credentials. Please try again."),
			Variant:     notify.VariantDestructive,
		})
		return nil, fmt.Errorf("login: %w", err)
	}

	raw, err := json.Marshal(out.User)
	if err != nil {
		return nil, fmt.Errorf("login: encode profile: %w", err)
	}
	if err := credentials.SaveSession(m.creds, credentials.Session{
		AccessToken:  out.Token,
		RefreshToken: out.Refresh,
		User:         string(raw),
	}); err != nil {
		return nil, fmt.Errorf("login: persist session: %w", err)
	}

	m.setState(&out.User, false)
	m.notifier.Notify(notify.Notification{
		Title:       "Welcome back!",
		Description: fmt.Sprintf("You've successfully signed in as %s", out.User.Label()),
		Variant:     notify.VariantDefault,
	})
	m.log.Info().Str("username", out.User.Username).Msg("signed in")
	return &out.User, nil
}

// Register creates an account. It validates the payload before any network
// call, never establishes a session, and returns the backend's message;
// callers log in separately afterwards.
func (m *Manager) Register(ctx context.Context, params RegisterParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("register: %w", err)
	}

	var out struct {
		Message string `json:"message"`
	}
	err := m.client.Do(ctx, &api.Request{
		Method: http.MethodPost,
		Path:   "/auth/register/",
		Body:   params,
		NoAuth: true,
		Silent: true,
	}, &out)
	if err != nil {
		m.notifier.Notify(notify.Notification{
			Title:       "Registration failed",
			Description: api.Message(err, "Registration failed. Please try again."),
			Variant:     notify.VariantDestructive,
		})
		return "", fmt.Errorf("register: %w", err)
	}

	m.notifier.Notify(notify.Notification{
		Title:       "Registration successful",
		Description: "Your account has been created. You can now log in.",
		Variant:     notify.VariantDefault,
	})

	message := out.Message
	if message == "" {
		message = "Registration successful! You can now log in."
	}
	return message, nil
}

// Logout clears the credential store, drops the in-memory user, and signals
// navigation to the login route. Logging out twice is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	if err := credentials.ClearSession(m.creds); err != nil {
		m.notifier.Notify(notify.Notification{
			Title:       "Logout failed",
			Description: "There was an issue logging you out. Please try again.",
			Variant:     notify.VariantDestructive,
		})
		return fmt.Errorf("logout: %w", err)
	}

	m.setState(nil, false)
	m.notifier.Notify(notify.Notification{
		Title:       "Logged out",
		Description: "You have been successfully logged out.",
		Variant:     notify.VariantDefault,
	})
	m.navigate(LoginRoute)
	return nil
}

// sessionExpired runs after the dispatcher has torn down the session on a
// failed refresh. The store is already cleared; only the in-memory view and
// the redirect remain.
func (m *Manager) sessionExpired() {
	m.setState(nil, false)
	m.navigate(LoginRoute)
}

// setState replaces the in-memory state and publishes it to subscribers.
func (m *Manager) setState(user *UserProfile, loading bool) {
	m.mu.Lock()
	m.user = user
	m.loading = loading
	state := State{User: user, Loading: loading}
	subscribers := make([]func(State), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
}

// Package credentials persists the client's session state: the access token,
// the refresh token, and the serialized user profile. Absence of all three
// keys is the logged-out state and is not an error.
package credentials

// The key names mirror the storage layout the backend's web frontend uses, so
// a store file can be inspected with the same vocabulary.
const (
	// KeyAccessToken holds the short-lived bearer credential.
	KeyAccessToken = "token"
	// KeyRefreshToken holds the longer-lived credential used only to obtain
	// a new access token.
	KeyRefreshToken = "refreshToken"
	// KeyUser holds the JSON-serialized profile of the signed-in user.
	KeyUser = "user"
)

// SessionKeys returns the key group that makes up one session. The three keys
// are always written and cleared together.
func SessionKeys() []string {
	return []string{KeyAccessToken, KeyRefreshToken, KeyUser}
}

// Store is durable key-value storage for session credentials.
//
// Get never errors: a missing key is a normal state. Set and SetMany must be
// durable before they return. SetMany replaces its key group atomically so a
// new login can overwrite a prior session without a partially-written state
// ever being observable. Clear of absent keys is a no-op.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	SetMany(values map[string]string) error
	Clear(keys ...string) error
}

// Session is the credential triple held by a Store. User carries the profile
// as opaque JSON; the session package owns its shape.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         string
}

// SaveSession writes all three session keys as a single atomic update.
func SaveSession(s Store, sess Session) error {
	return s.SetMany(map[string]string{
		KeyAccessToken:  sess.AccessToken,
		KeyRefreshToken: sess.RefreshToken,
		KeyUser:         sess.User,
	})
}

// LoadSession reads the stored session. It reports false when no access token
// is stored, which is the logged-out state.
func LoadSession(s Store) (Session, bool) {
	access, ok := s.Get(KeyAccessToken)
	if !ok || access == "" {
		return Session{}, false
	}
	refresh, _ := s.Get(KeyRefreshToken)
	user, _ := s.Get(KeyUser)
	return Session{AccessToken: access, RefreshToken: refresh, User: user}, true
}

// ClearSession removes the whole key group. Clearing an already-empty store
// succeeds.
func ClearSession(s Store) error {
	return s.Clear(SessionKeys()...)
}

// Package session owns the client's authenticated identity: the current user,
// the login, registration, and logout operations, and the startup
// verification of a stored session.
package session

// UserProfile is the signed-in user as returned by the backend's login
// response. The client treats it as read-only; it changes only by re-fetch.
type UserProfile struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Label returns the name to greet the user with.
func (p UserProfile) Label() string {
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

// State is a snapshot of the session as observed by consumers. Loading is
// true until the one-time initialization has resolved; consumers must not
// gate content on User before Loading is false, or logged-out users would
// flash authenticated content.
type State struct {
	User    *UserProfile
	Loading bool
}

// IsAuthenticated reports whether a user is signed in.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/notify"
)

// refreshState tracks the coordinator through one refresh cycle.
type refreshState int

const (
	refreshIdle refreshState = iota
	refreshRefreshing
	refreshSucceeded
	refreshFailed
)

func (s refreshState) String() string {
	switch s {
	case refreshIdle:
		return "idle"
	case refreshRefreshing:
		return "refreshing"
	case refreshSucceeded:
		return "succeeded"
	case refreshFailed:
		return "failed"
	}
	return "unknown"
}

// refreshFlight is one in-progress exchange. Concurrent callers wait on done
// and share the outcome instead of replaying the same refresh token.
type refreshFlight struct {
	done  chan struct{}
	token string
	err   error
}

type coordinator struct {
	mu     sync.Mutex
	state  refreshState
	flight *refreshFlight
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token. Only one exchange runs at a time; callers arriving while one is in
// flight wait for its outcome. The per-request once-only rule is enforced by
// the caller through Request.retried, independent of this guard.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	c.coord.mu.Lock()
	if flight := c.coord.flight; flight != nil {
		c.coord.mu.Unlock()
		select {
		case <-flight.done:
			return flight.token, flight.err
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for session refresh: %w", ctx.Err())
		}
	}
	flight := &refreshFlight{done: make(chan struct{})}
	c.coord.flight = flight
	c.coord.state = refreshRefreshing
	c.coord.mu.Unlock()

	c.log.Debug().
		Str("refresh_state", refreshRefreshing.String()).
		Msg("access token rejected, exchanging refresh token")

	token, err := c.exchangeRefreshToken(ctx)

	newState := refreshSucceeded
	if err != nil {
		newState = refreshFailed
	}

	c.coord.mu.Lock()
	c.coord.state = newState
	flight.token, flight.err = token, err
	c.coord.flight = nil
	c.coord.mu.Unlock()
	close(flight.done)

	c.log.Debug().Str("refresh_state", newState.String()).Msg("refresh cycle finished")
	return token, err
}

// exchangeRefreshToken performs the actual exchange. It deliberately goes
// around Do: the exchange must never recurse into another refresh, and any
// failure reports as a session expiry rather than a classified request error.
func (c *Client) exchangeRefreshToken(ctx context.Context) (string, error) {
	refresh, ok := c.creds.Get(credentials.KeyRefreshToken)
	if !ok || refresh == "" {
		return "", c.expireSession("no refresh token available")
	}

	status, body, err := c.roundTrip(ctx, &Request{
		Method: http.MethodPost,
		Path:   "/auth/token/refresh/",
		Body:   map[string]string{"refresh": refresh},
		NoAuth: true,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("refresh exchange did not reach the backend")
		return "", c.expireSession("refresh exchange failed")
	}
	if status < 200 || status >= 300 {
		return "", c.expireSession(fmt.Sprintf("refresh token rejected (status %d)", status))
	}

	var parsed struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Access == "" {
		return "", c.expireSession("refresh response missing access token")
	}

	if err := c.creds.Set(credentials.KeyAccessToken, parsed.Access); err != nil {
		return "", c.expireSession("unable to store refreshed access token")
	}

	c.notifier.Notify(notify.Notification{
		Title:       "Session refreshed",
		Description: "Your session has been refreshed.",
		Variant:     notify.VariantDefault,
	})
	return parsed.Access, nil
}

// expireSession tears the session down after a failed refresh. All stored
// credentials are cleared before the expiry becomes observable to the hook or
// to callers.
func (c *Client) expireSession(reason string) error {
	if err := credentials.ClearSession(c.creds); err != nil {
		c.log.Error().Err(err).Msg("clearing credentials on session expiry failed")
	}
	c.log.Warn().Str("reason", reason).Msg("session expired")
	c.notifier.Notify(notify.Notification{
		Title:       "Session expired",
		Description: "Your session has expired. Please log in again.",
		Variant:     notify.VariantDestructive,
	})
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	return &Error{Kind: ErrSessionExpired, Message: reason}
}

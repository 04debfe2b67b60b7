// Package api is the single choke point for calls to the Aranya backend. It
// attaches the stored access token to outgoing requests, classifies every
// response into a small error taxonomy, and drives the refresh-and-retry
// cycle when an access token is rejected.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aranyahq/aranya-go/credentials"
	"github.com/aranyahq/aranya-go/notify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTimeout = 15 * time.Second

// Client dispatches requests to the backend. All methods are safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      credentials.Store
	notifier   notify.Notifier
	log        zerolog.Logger
	coord      coordinator

	onSessionExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, including its timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNotifier sets the sink for user-facing notifications. The default
// discards them.
func WithNotifier(notifier notify.Notifier) Option {
	return func(c *Client) {
		c.notifier = notifier
	}
}

// WithLogger sets the client logger. The default is a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
// Requests that exceed it surface as ErrNetwork.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a Client for the backend at baseURL, reading and writing
// credentials through creds.
func New(baseURL string, creds credentials.Store, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[api.New] baseURL is required")
	}
	if creds == nil {
		return nil, errors.New("[api.New] credential store is required")
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		creds:      creds,
		notifier:   notify.Nop(),
		log:        zerolog.Nop(),
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

// OnSessionExpired registers fn to run after a failed refresh has torn the
// session down. Register before issuing requests; the hook is invoked from
// whichever goroutine discovered the expiry.
func (c *Client) OnSessionExpired(fn func()) {
	c.onSessionExpired = fn
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded when non-nil.
	Body  any
	Query url.Values

	// NoAuth sends the request without a bearer token even when one is
	// stored. Used by the login, registration, and refresh endpoints.
	NoAuth bool
	// NoRefresh surfaces a 401 directly instead of delegating to the
	// refresh coordinator. Used by the startup token verification.
	NoRefresh bool
	// Silent suppresses the terminal notification for this request. The
	// classified error is returned either way.
	Silent bool

	// retried marks a request that has already been replayed once after a
	// refresh. A second 401 must surface, never trigger another refresh.
	retried bool
}

// RequestOption tweaks a single request.
type RequestOption func(*Request)

// WithQuery sets the request's query parameters.
func WithQuery(query url.Values) RequestOption {
	return func(r *Request) {
		r.Query = query
	}
}

// WithoutAuth sends the request unauthenticated.
func WithoutAuth() RequestOption {
	return func(r *Request) {
		r.NoAuth = true
	}
}

// WithoutRefresh disables the refresh-and-retry cycle for the request.
func WithoutRefresh() RequestOption {
	return func(r *Request) {
		r.NoRefresh = true
	}
}

// WithoutNotification suppresses the terminal notification for the request.
func WithoutNotification() RequestOption {
	return func(r *Request) {
		r.Silent = true
	}
}

// Get issues a GET and decodes a 2xx response body into out.
func (c *Client) Get(ctx context.Context, path string, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, options)
}

// Post issues a POST with a JSON body and decodes a 2xx response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, options)
}

// Put issues a PUT with a JSON body and decodes a 2xx response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.do(ctx, http.MethodPut, path, body, out, options)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, options ...RequestOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, options)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, options []RequestOption) error {
	req := &Request{Method: method, Path: path, Body: body}
	for _, opt := range options {
		opt(req)
	}
	return c.Do(ctx, req, out)
}

// Do dispatches req and decodes a 2xx response body into out (which may be
// nil). A 401 on a first attempt delegates to the refresh coordinator and
// replays the request exactly once; every other non-2xx outcome is classified
// and returned as an *Error.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	requestID := uuid.NewString()

	status, body, err := c.roundTrip(ctx, req)
	if err != nil {
		c.log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("no response received")
		terr := &Error{Kind: ErrNetwork, Message: "unable to connect to the server"}
		c.report(req, terr)
		return terr
	}

	c.log.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", status).
		Bool("retried", req.retried).
		Msg("request completed")

	if status >= 200 && status < 300 {
		return decodeBody(body, out)
	}

	// A 401 on an unauthenticated request (login, registration) is a plain
	// rejection; refreshing could not change the outcome.
	if status == http.StatusUnauthorized && !req.retried && !req.NoRefresh && !req.NoAuth {
		req.retried = true
		if _, err := c.refreshAccessToken(ctx); err != nil {
			// The session is already torn down and reported.
			return err
		}
		return c.Do(ctx, req, out)
	}

	terr := c.classify(status, body)
	c.report(req, terr)
	return terr
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (int, []byte, error) {
	endpoint := c.baseURL + req.Path
	if len(req.Query) > 0 {
		endpoint += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	// The token is read at send time, so a replay after a refresh picks up
	// the newly stored token.
	if !req.NoAuth {
		if token, ok := c.creds.Get(credentials.KeyAccessToken); ok && token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) classify(status int, body []byte) *Error {
	message := serverMessage(body)

	switch {
	case status == http.StatusUnauthorized:
		if message == "" {
			message = "Your credentials were rejected."
		}
		return &Error{Kind: ErrUnauthorized, Status: status, Message: message}
	case status == http.StatusForbidden:
		if message == "" {
			message = "You don't have permission to perform this action."
		}
		return &Error{Kind: ErrForbidden, Status: status, Message: message}
	case status == http.StatusNotFound:
		if message == "" {
			message = "The requested resource was not found."
		}
		return &Error{Kind: ErrNotFound, Status: status, Message: message}
	case status >= 500:
		if message == "" {
			message = "An internal server error occurred. Please try again later."
		}
		return &Error{Kind: ErrServer, Status: status, Message: message}
	default:
		// Remaining 4xx responses carry the backend's rejection message.
		if message == "" {
			message = "An error occurred"
		}
		return &Error{Kind: ErrValidation, Status: status, Message: message}
	}
}

// report emits the user-facing notification for a terminal failure. It never
// alters or blocks the returned error.
func (c *Client) report(req *Request, terr *Error) {
	if req.Silent {
		return
	}
	c.notifier.Notify(notificationFor(terr))
}

func notificationFor(terr *Error) notify.Notification {
	switch {
	case errors.Is(terr, ErrForbidden):
		return notify.Notification{
			Title:       "Access denied",
			Description: "You don't have permission to perform this action.",
			Variant:     notify.VariantDestructive,
		}
	case errors.Is(terr, ErrNotFound):
		return notify.Notification{
			Title:       "Not found",
			Description: "The requested resource was not found.",
			Variant:     notify.VariantDestructive,
		}
	case errors.Is(terr, ErrServer):
		return notify.Notification{
			Title:       "Server error",
			Description: "An internal server error occurred. Please try again later.",
			Variant:     notify.VariantDestructive,
		}
	case errors.Is(terr, ErrNetwork):
		return notify.Notification{
			Title:       "Network error",
			Description: "Unable to connect to the server. Please check your internet connection.",
			Variant:     notify.VariantDestructive,
		}
	default:
		return notify.Notification{
			Title:       "Error",
			Description: terr.Message,
			Variant:     notify.VariantDestructive,
		}
	}
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

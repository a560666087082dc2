// Package api is the authenticated request gateway for the CampusLink REST
// API. Every remote call in the client goes through Client.Dispatch, which
// attaches the session's access credential, normalizes response envelopes,
// and funnels credential expiry through a single refresh-and-retry path.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	requestIDHeader = "X-Request-ID"
)

// CredentialSource supplies bearer credentials for authenticated dispatches.
// Implemented by the session manager; it is the only component allowed to
// mutate session state, so the gateway only ever reads through this
// interface or asks for a refresh.
type CredentialSource interface {
	// AccessCredential returns the current access credential, refreshing it
	// first if it is known to be expired. Returns ErrNoCredential when the
	// session holds none.
	AccessCredential(ctx context.Context) (string, error)

	// Refresh obtains a new access credential. Concurrent callers coalesce
	// onto one in-flight refresh and share its outcome.
	Refresh(ctx context.Context) error

	// Invalidate discards the session locally. Called when a refreshed
	// credential is still rejected, which means the session is beyond
	// recovery.
	Invalidate(ctx context.Context)
}

// Client dispatches requests against one CampusLink API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests
// and for callers that need custom transport settings).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithTimeout bounds every dispatched request. A request that exceeds it is
// surfaced as a network error, which triggers the same rollback path as an
// explicit failure response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCredentials binds the session manager as the client's credential
// source. The manager needs the client for its own auth calls, so the two
// are wired in this order: construct the client, construct the manager,
// bind.
func (c *Client) SetCredentials(src CredentialSource) {
	c.creds = src
}

type requestOptions struct {
	public      bool
	bearer      string
	query       url.Values
	rawBody     []byte
	contentType string
}

// RequestOption adjusts a single dispatch.
type RequestOption func(*requestOptions) error

// Public marks the request as requiring no credential (login and other
// allow-listed endpoints).
func Public() RequestOption {
	return func(o *requestOptions) error {
		o.public = true
		return nil
	}
}

// WithBearer overrides the Authorization value for this request. Used by
// the session manager to authenticate the refresh call with the refresh
// credential; it also disables the 401 refresh-and-retry path, since a
// refresh that fails must not recurse into another refresh.
func WithBearer(credential string) RequestOption {
	return func(o *requestOptions) error {
		o.bearer = credential
		return nil
	}
}

// WithQuery appends query parameters to the request URL.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) error {
		o.query = q
		return nil
	}
}

// RawBody sends r verbatim with the given content type, bypassing JSON
// encoding. The reader is drained up front so the request stays replayable
// across the single 401 retry.
func RawBody(contentType string, r io.Reader) RequestOption {
	return func(o *requestOptions) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrap(err, "[RawBody] read payload")
		}
		o.rawBody = data
		o.contentType = contentType
		return nil
	}
}

// Dispatch issues one request and returns its normalized envelope.
//
// Authenticated requests with no available credential fail immediately with
// an auth error and no network round-trip. A 401 on an authenticated
// request triggers exactly one shared refresh and one retry; a second 401
// after a successful refresh invalidates the session and is surfaced as a
// fatal auth error. All other non-2xx responses map onto the error taxonomy
// without any automatic retry.
func (c *Client) Dispatch(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Envelope, error) {
	var o requestOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	payload, contentType, err := encodeBody(body, &o)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	logger := c.log.With().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Logger()

	env, status, err := c.attempt(ctx, logger, method, path, payload, contentType, requestID, &o)
	if err != nil || status != http.StatusUnauthorized {
		return env, err
	}

	// 401 from an override-credential or public call is final.
	if o.public || o.bearer != "" || c.creds == nil {
		return nil, authError(status, envelopeMessage(env, "unauthorized"), ErrSessionExpired)
	}

	logger.Debug().Msg("credential rejected, refreshing")
	if err := c.creds.Refresh(ctx); err != nil {
		return nil, authError(status, "credential refresh failed", err)
	}

	env, status, err = c.attempt(ctx, logger, method, path, payload, contentType, requestID, &o)
	if err != nil {
		return env, err
	}
	if status == http.StatusUnauthorized {
		logger.Warn().Msg("refreshed credential still rejected, invalidating session")
		c.creds.Invalidate(ctx)
		return nil, authError(status, envelopeMessage(env, "session no longer valid"), ErrSessionExpired)
	}
	return env, nil
}

// attempt performs a single round-trip. A 401 status is returned to the
// caller alongside a nil error so Dispatch can run the refresh path; every
// other failure comes back as a typed error.
func (c *Client) attempt(ctx context.Context, logger zerolog.Logger, method, path string, payload []byte, contentType, requestID string, o *requestOptions) (*Envelope, int, error) {
	req, err := c.newRequest(ctx, method, path, payload, contentType, requestID, o)
	if err != nil {
		return nil, 0, err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("transport failure")
		return nil, 0, networkError("request failed", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, networkError("reading response body", err)
	}

	logger.Debug().Int("status", res.StatusCode).Msg("dispatched")

	env := decodeEnvelope(raw)
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return env, res.StatusCode, nil
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return env, res.StatusCode, nil
	default:
		return nil, res.StatusCode, classifyStatus(res.StatusCode, envelopeMessage(env, ""))
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte, contentType, requestID string, o *requestOptions) (*http.Request, error) {
	target := c.baseURL + path
	if len(o.query) > 0 {
		target += "?" + o.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newRequest] build request")
	}

	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	switch {
	case o.bearer != "":
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	case !o.public:
		if c.creds == nil {
			return nil, authError(0, "no credential source bound", ErrNoCredential)
		}
		credential, err := c.creds.AccessCredential(ctx)
		if err != nil {
			return nil, authError(0, "no usable access credential", err)
		}
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	return req, nil
}

func encodeBody(body any, o *requestOptions) ([]byte, string, error) {
	if o.rawBody != nil {
		return o.rawBody, o.contentType, nil
	}
	if body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Client.Dispatch] encode body")
	}
	return data, contentTypeJSON, nil
}

// decodeEnvelope tolerates empty and non-envelope bodies: a 204 or blank
// body becomes a canonical success envelope, and undecodable bodies fall
// back to an empty envelope so status-code classification still carries the
// failure.
func decodeEnvelope(raw []byte) *Envelope {
	if len(bytes.TrimSpace(raw)) == 0 {
		return successEnvelope()
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Envelope{}
	}
	return &env
}

func envelopeMessage(env *Envelope, fallback string) string {
	if env != nil && env.Message != "" {
		return env.Message
	}
	return fallback
}

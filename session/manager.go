// Package session owns the credential lifecycle of the CampusLink client:
// login, logout, bootstrap from persisted credentials, and silent refresh.
// The Manager is the single writer of session state; every other component
// reads it through the api.CredentialSource interface.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/session/credstore"
	"github.com/campuslink/go-campus-client/users"
)

var (
	ErrAuthInProgress      = errors.New("authentication already in progress")
	ErrNoRefreshCredential = errors.New("no refresh credential")
	ErrIncompleteGrant     = errors.New("server returned an incomplete credential grant")
)

// defaultExpirySkew refreshes slightly ahead of the recorded expiry so a
// credential never goes stale mid-flight.
const defaultExpirySkew = 30 * time.Second

var _ api.CredentialSource = (*Manager)(nil)

// Manager holds the one live session of the client process.
type Manager struct {
	client  *api.Client
	store   credstore.Store
	log     zerolog.Logger
	nowTime func() time.Time
	skew    time.Duration

	mu      sync.RWMutex
	state   State
	access  string
	refresh string
	expiry  time.Time
	user    *users.User

	flight singleflight.Group
}

// Option modifies a Manager.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithLogger sets the logger for lifecycle transitions.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithExpirySkew sets how far ahead of credential expiry a proactive
// refresh is triggered.
func WithExpirySkew(skew time.Duration) Option {
	return func(m *Manager) {
		m.skew = skew
	}
}

// NewManager creates a Manager dispatching through client and persisting
// credentials in store.
func NewManager(client *api.Client, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		store:   store,
		log:     zerolog.Nop(),
		nowTime: time.Now,
		skew:    defaultExpirySkew,
		state:   StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type credentialGrant struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	User         users.User `json:"user"`
}

// Bootstrap restores the session from persisted credentials on process
// start. With no persisted pair the session simply stays unauthenticated.
// A stored credential that turns out to be invalid gets one refresh attempt
// (via the gateway's 401 path) before the session is cleared. Transport
// failures leave the persisted pair in place so the next start can retry.
func (m *Manager) Bootstrap(ctx context.Context) error {
	creds, err := m.store.Load()
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil
		}
		return pkgerrors.Wrap(err, "[Manager.Bootstrap] load credentials")
	}

	m.mu.Lock()
	m.state = StateAuthenticating
	m.access = creds.Access
	m.refresh = creds.Refresh
	m.expiry = credentialExpiry(creds.Access)
	m.mu.Unlock()

	if err := m.loadUser(ctx); err != nil {
		if api.IsAuthError(err) {
			// Refresh already failed or the refreshed credential was
			// rejected; the session is not recoverable.
			m.log.Warn().Err(err).Msg("persisted session rejected, starting unauthenticated")
			m.Invalidate(ctx)
			return nil
		}
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.access = ""
		m.refresh = ""
		m.expiry = time.Time{}
		m.mu.Unlock()
		return pkgerrors.Wrap(err, "[Manager.Bootstrap] load user")
	}

	m.log.Info().Msg("session restored from persisted credentials")
	return nil
}

// Login authenticates with the student login endpoint and establishes the
// session. It is rejected while another auth transition is in flight.
func (m *Manager) Login(ctx context.Context, email, password string) (*users.User, error) {
	m.mu.Lock()
	if m.state.busy() {
		m.mu.Unlock()
		return nil, ErrAuthInProgress
	}
	m.state = StateAuthenticating
	m.mu.Unlock()

	body := map[string]string{"email": email, "password": password}
	env, err := m.client.Dispatch(ctx, "POST", "/auth/login/student", body, api.Public())
	if err != nil {
		m.clear(false)
		return nil, pkgerrors.Wrap(err, "[Manager.Login] login request")
	}

	var grant credentialGrant
	if err := env.Decode(&grant); err != nil {
		m.clear(false)
		return nil, pkgerrors.Wrap(err, "[Manager.Login] decode grant")
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		m.clear(false)
		return nil, ErrIncompleteGrant
	}

	m.mu.Lock()
	m.access = grant.AccessToken
	m.refresh = grant.RefreshToken
	m.expiry = credentialExpiry(grant.AccessToken)
	user := grant.User
	m.user = &user
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.Save(credstore.Credentials{Access: grant.AccessToken, Refresh: grant.RefreshToken}); err != nil {
		// The live session is intact; only survival across restarts is lost.
		m.log.Warn().Err(err).Msg("failed to persist credentials")
	}

	m.log.Info().Str("user_id", user.ID).Msg("logged in")
	return m.User(), nil
}

// Logout tells the server the session ended and clears all local state.
// The server call is best-effort: its failure is logged and swallowed,
// local state is cleared regardless.
func (m *Manager) Logout(ctx context.Context) error {
	if _, err := m.client.Dispatch(ctx, "POST", "/auth/logout", nil); err != nil {
		m.log.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
	}

	m.clear(true)
	m.log.Info().Msg("logged out")
	return nil
}

// Refresh exchanges the refresh credential for a new access credential.
// Concurrent callers coalesce onto one in-flight exchange and share its
// outcome, so N requests hitting 401 at once consume the refresh
// credential exactly once. On any failure the session is cleared.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.flight.Do("refresh", func() (any, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	refresh := m.refresh
	if refresh == "" {
		m.mu.Unlock()
		return ErrNoRefreshCredential
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	env, err := m.client.Dispatch(ctx, "POST", "/auth/refresh-token", nil, api.WithBearer(refresh))
	if err != nil {
		m.clear(true)
		m.log.Warn().Err(err).Msg("refresh failed, session cleared")
		return pkgerrors.Wrap(err, "[Manager.doRefresh] refresh request")
	}

	var grant credentialGrant
	if err := env.Decode(&grant); err != nil {
		m.clear(true)
		return pkgerrors.Wrap(err, "[Manager.doRefresh] decode grant")
	}
	if grant.AccessToken == "" {
		m.clear(true)
		return ErrIncompleteGrant
	}

	m.mu.Lock()
	m.access = grant.AccessToken
	m.expiry = credentialExpiry(grant.AccessToken)
	if grant.RefreshToken != "" { // server rotated the refresh credential
		m.refresh = grant.RefreshToken
	}
	refresh = m.refresh
	m.state = StateAuthenticated
	m.mu.Unlock()

	if err := m.store.Save(credstore.Credentials{Access: grant.AccessToken, Refresh: refresh}); err != nil {
		m.log.Warn().Err(err).Msg("failed to persist refreshed credentials")
	}

	m.log.Info().Msg("access credential refreshed")
	return nil
}

// AccessCredential implements api.CredentialSource. A credential past its
// recorded expiry is refreshed before it is handed out, saving the
// guaranteed 401 round-trip; opaque credentials with no readable expiry
// fall back to the gateway's 401 path.
func (m *Manager) AccessCredential(ctx context.Context) (string, error) {
	m.mu.RLock()
	access := m.access
	expiry := m.expiry
	m.mu.RUnlock()

	if access == "" {
		return "", api.ErrNoCredential
	}

	if !expiry.IsZero() && m.nowTime().Add(m.skew).After(expiry) {
		m.log.Debug().Msg("access credential expired, refreshing proactively")
		if err := m.Refresh(ctx); err != nil {
			return "", err
		}
		m.mu.RLock()
		access = m.access
		m.mu.RUnlock()
	}
	return access, nil
}

// Invalidate implements api.CredentialSource: the session is beyond
// recovery, drop it locally without a server round-trip.
func (m *Manager) Invalidate(_ context.Context) {
	m.clear(true)
}

// IsAuthenticated is derived, never stored: credentials alone are not
// enough, the user snapshot must have loaded as well.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateAuthenticated && m.user != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// User returns a copy of the session's user snapshot, or nil when no user
// is attached.
func (m *Manager) User() *users.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	copied := *m.user
	return &copied
}

// CurrentUserID returns the signed-in user's ID, or an empty string.
// Ownership checks on posts and comments compare against this value.
func (m *Manager) CurrentUserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return ""
	}
	return m.user.ID
}

// ReloadUser re-fetches the profile snapshot on demand.
func (m *Manager) ReloadUser(ctx context.Context) (*users.User, error) {
	if err := m.loadUser(ctx); err != nil {
		return nil, err
	}
	return m.User(), nil
}

func (m *Manager) loadUser(ctx context.Context) error {
	env, err := m.client.Dispatch(ctx, "GET", "/users/me", nil)
	if err != nil {
		return err
	}

	var user users.User
	if err := env.Decode(&user); err != nil {
		return pkgerrors.Wrap(err, "[Manager.loadUser] decode user")
	}

	m.mu.Lock()
	m.user = &user
	m.state = StateAuthenticated
	m.mu.Unlock()
	return nil
}

// clear wipes the in-memory session and, when wipeStore is set, the
// persisted pair as well.
func (m *Manager) clear(wipeStore bool) {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.access = ""
	m.refresh = ""
	m.expiry = time.Time{}
	m.user = nil
	m.mu.Unlock()

	if wipeStore {
		if err := m.store.Clear(); err != nil {
			m.log.Warn().Err(err).Msg("failed to clear persisted credentials")
		}
	}
}

// credentialExpiry reads the exp claim from a JWT access credential without
// verifying the signature; the client has no signing key and only needs the
// timestamp. Opaque credentials yield a zero time.
func credentialExpiry(credential string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

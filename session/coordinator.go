package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/revisely/go-study-client/credentials"
	"github.com/revisely/go-study-client/gateway"
	"github.com/revisely/go-study-client/internal/metrics"
)

const (
	registerPath = "/api/auth/register"
	loginPath    = "/api/auth/login"
	refreshPath  = "/api/auth/refresh"
	profilePath  = "/api/auth/me"
)

// Coordinator owns the credential lifecycle: sign-in, registration,
// sign-out, the bootstrap profile check, and single-flight token refresh.
// It is the only component that mutates credentials; the in-memory pair is
// a lazily-populated write-through shadow of the credential store, which
// remains the durable source of truth.
//
// Auth endpoints are called directly over the HTTP client, never through
// the gateway, so a refresh can never trigger the gateway's own
// refresh-and-retry protocol.
type Coordinator struct {
	baseURL string
	store   credentials.Store
	http    *http.Client
	log     zerolog.Logger
	nowTime func() time.Time

	// opMu serializes credential-mutating operations (sign-in, sign-up,
	// sign-out, refresh resolution). mu guards field access only and is
	// never held across I/O.
	opMu sync.Mutex
	mu   sync.Mutex

	access       string
	refresh      string
	tokensLoaded bool
	profile      *Profile
	loading      bool
	bootstrapped bool

	refreshGroup singleflight.Group
}

type Option func(*Coordinator)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Coordinator) {
		c.http = httpClient
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

func New(baseURL string, store credentials.Store, options ...Option) (*Coordinator, error) {
	if baseURL == "" {
		return nil, errors.New("[session.New] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	c := &Coordinator{
		baseURL: baseURL,
		store:   store,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zerolog.Nop(),
		nowTime: time.Now,
		loading: true,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// State returns the current session view.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{User: c.profile, Loading: c.loading}
}

// Bootstrap runs the startup session restore: at most once per process, it
// attempts a profile fetch with whatever access credential is stored. Any
// failure, including an absent credential, leaves the session
// unauthenticated with credentials untouched; a refresh is deliberately
// not attempted here. Loading becomes false unconditionally on completion.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return nil
	}
	c.bootstrapped = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	token, err := c.AccessToken(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("bootstrap could not read stored credentials")
		return nil
	}
	if token == "" {
		return nil
	}

	var resp profileResponse
	if err := c.doJSON(ctx, http.MethodGet, profilePath, token, nil, &resp); err != nil {
		var reqErr *gateway.RequestError
		if errors.As(err, &reqErr) {
			c.log.Debug().Int("status", reqErr.Status).Msg("bootstrap profile check rejected")
			return nil
		}
		return errors.Wrap(err, "[Coordinator.Bootstrap] profile fetch")
	}
	if resp.User == nil {
		return nil
	}

	c.mu.Lock()
	c.profile = resp.User
	c.mu.Unlock()
	c.log.Debug().Str("user", resp.User.ID).Msg("session restored")
	return nil
}

// SignIn exchanges credentials for a token pair and profile. Backend
// rejections pass through as *gateway.RequestError so the UI can render the
// exact server-provided messages.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) (*Profile, error) {
	return c.exchange(ctx, loginPath, credentialsRequest{Email: email, Password: password})
}

// SignUp registers a new account; same contract as SignIn.
func (c *Coordinator) SignUp(ctx context.Context, name, email, password string) (*Profile, error) {
	return c.exchange(ctx, registerPath, credentialsRequest{Name: name, Email: email, Password: password})
}

func (c *Coordinator) exchange(ctx context.Context, path string, req credentialsRequest) (*Profile, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, path, "", req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, errors.Errorf("[Coordinator.exchange] malformed auth response from %s", path)
	}

	if err := c.setTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		// The session is valid in memory; only restore-on-next-launch is at risk.
		c.log.Warn().Err(err).Msg("could not persist credentials")
	}

	c.mu.Lock()
	c.profile = resp.User
	c.mu.Unlock()
	return resp.User, nil
}

// SignOut clears the profile and both credentials. It is unconditional and
// idempotent: a failure to delete from persistent storage never prevents
// the in-memory state from being cleared.
func (c *Coordinator) SignOut(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.tokensLoaded = true
	c.profile = nil
	c.mu.Unlock()

	if err := c.store.Delete(ctx, credentials.KeyAccessToken); err != nil {
		c.log.Warn().Err(err).Msg("could not delete stored access token")
	}
	if err := c.store.Delete(ctx, credentials.KeyRefreshToken); err != nil {
		c.log.Warn().Err(err).Msg("could not delete stored refresh token")
	}
}

// AccessToken returns the current access credential, or the empty string
// when there is none. It never triggers a refresh.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	if err := c.loadTokens(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, nil
}

// RefreshAccessToken exchanges the stored refresh credential for a new
// access credential. Concurrent callers are collapsed into a single backend
// call and all receive its outcome; once that outcome is delivered a new
// refresh cycle can start immediately. On failure both credentials are
// cleared and an authorization failure propagates to every waiter.
func (c *Coordinator) RefreshAccessToken(ctx context.Context) (string, error) {
	// The flight outlives any single caller; one impatient caller must not
	// cancel the refresh the others are waiting on.
	flightCtx := context.WithoutCancel(ctx)
	token, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.doRefresh(flightCtx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.loadTokens(ctx); err != nil {
		return "", errors.Wrap(err, "[Coordinator.doRefresh] load credentials")
	}

	c.mu.Lock()
	refreshToken := c.refresh
	c.mu.Unlock()

	if refreshToken == "" {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		c.clearCredentials(ctx)
		return "", errors.Wrap(gateway.ErrUnauthorized, "[Coordinator.doRefresh] no refresh credential")
	}

	var resp refreshResponse
	err := c.doJSON(ctx, http.MethodPost, refreshPath, "", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil || resp.AccessToken == "" {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		c.clearCredentials(ctx)
		c.log.Warn().Err(err).Msg("token refresh failed, session ended")
		return "", errors.Wrap(gateway.ErrUnauthorized, "[Coordinator.doRefresh] refresh rejected")
	}

	// The backend may rotate the refresh credential; otherwise it is reused.
	newRefresh := refreshToken
	if resp.RefreshToken != "" {
		newRefresh = resp.RefreshToken
	}
	if err := c.setTokens(ctx, resp.AccessToken, newRefresh); err != nil {
		c.log.Warn().Err(err).Msg("could not persist refreshed credentials")
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	c.log.Debug().Msg("access token refreshed")
	return resp.AccessToken, nil
}

// TokenClaims returns the registered claims of the current access token
// without verifying its signature. For display purposes only (e.g. showing
// expiry); it must never gate a request, the 401 protocol does that.
func (c *Coordinator) TokenClaims(ctx context.Context) (*jwt.RegisteredClaims, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, "[Coordinator.TokenClaims] parse access token")
	}
	return claims, nil
}

// TokenExpiresWithin reports whether the access token's exp claim falls
// within d of now. UI layers use it to hint at upcoming re-authentication;
// requests themselves rely on the 401 protocol, not on this.
func (c *Coordinator) TokenExpiresWithin(ctx context.Context, d time.Duration) (bool, error) {
	claims, err := c.TokenClaims(ctx)
	if err != nil {
		return false, err
	}
	if claims.ExpiresAt == nil {
		return false, nil
	}
	return claims.ExpiresAt.Time.Before(c.nowTime().Add(d)), nil
}

// loadTokens populates the in-memory shadow from the store on first use.
func (c *Coordinator) loadTokens(ctx context.Context) error {
	c.mu.Lock()
	if c.tokensLoaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	access, _, err := c.store.Get(ctx, credentials.KeyAccessToken)
	if err != nil {
		return errors.Wrap(err, "[Coordinator.loadTokens] read access token")
	}
	refresh, _, err := c.store.Get(ctx, credentials.KeyRefreshToken)
	if err != nil {
		return errors.Wrap(err, "[Coordinator.loadTokens] read refresh token")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokensLoaded {
		c.access = access
		c.refresh = refresh
		c.tokensLoaded = true
	}
	return nil
}

// setTokens updates both credentials together, shadow first so the session
// stays coherent even when persistence fails.
func (c *Coordinator) setTokens(ctx context.Context, access, refresh string) error {
	c.mu.Lock()
	c.access = access
	c.refresh = refresh
	c.tokensLoaded = true
	c.mu.Unlock()

	if err := c.store.Set(ctx, credentials.KeyAccessToken, access); err != nil {
		return errors.Wrap(err, "[Coordinator.setTokens] persist access token")
	}
	if err := c.store.Set(ctx, credentials.KeyRefreshToken, refresh); err != nil {
		return errors.Wrap(err, "[Coordinator.setTokens] persist refresh token")
	}
	return nil
}

func (c *Coordinator) clearCredentials(ctx context.Context) {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.tokensLoaded = true
	c.mu.Unlock()

	if err := c.store.Delete(ctx, credentials.KeyAccessToken); err != nil {
		c.log.Warn().Err(err).Msg("could not delete stored access token")
	}
	if err := c.store.Delete(ctx, credentials.KeyRefreshToken); err != nil {
		c.log.Warn().Err(err).Msg("could not delete stored refresh token")
	}
}

// doJSON performs one auth-endpoint call. Non-2xx responses come back as
// *gateway.RequestError with the backend payload attached unmodified.
func (c *Coordinator) doJSON(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Coordinator.doJSON] marshal body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "[Coordinator.doJSON] build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[Coordinator.doJSON] %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[Coordinator.doJSON] read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &gateway.RequestError{
			Status:  resp.StatusCode,
			Payload: gateway.ParseErrorPayload(data),
			Body:    data,
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "[Coordinator.doJSON] decode response")
		}
	}
	return nil
}

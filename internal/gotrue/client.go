// Package gotrue is a client for a Supabase-compatible identity backend. It
// implements session.Backend for one browser session: the client holds that
// session's tokens, persists them, refreshes them and reports changes.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

// SessionKey is the store key holding the persisted backend session.
const SessionKey = "backend-session"

const (
	defaultTimeout = 10 * time.Second
	// refreshMargin is how long before expiry the access token is refreshed.
	refreshMargin = 30 * time.Second
)

// Config points the client at a backend.
type Config struct {
	URL     string
	Key     string
	Timeout time.Duration
}

// Client talks to the identity backend on behalf of one browser session.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	store   session.Store
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *storedSession
	timer   *time.Timer

	listenersMu sync.Mutex
	listeners   map[int]func(session.AuthEvent)
	nextID      int
}

type storedSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *storedSession) public() *session.BackendSession {
	return &session.BackendSession{UserID: s.UserID, Email: s.Email, AccessToken: s.AccessToken, ExpiresAt: s.ExpiresAt}
}

// New builds a client. store holds the session between process restarts.
func New(cfg Config, store session.Store, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.Key,
		http:      &http.Client{Timeout: timeout},
		store:     store,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(session.AuthEvent)),
	}
}

var _ session.Backend = (*Client)(nil)

// OnAuthStateChange registers listener for session changes.
func (c *Client) OnAuthStateChange(listener func(session.AuthEvent)) func() {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.listenersMu.Unlock()
	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Client) emit(ev session.AuthEvent) {
	c.listenersMu.Lock()
	fns := make([]func(session.AuthEvent), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Close stops the expiry timer. The persisted session is kept so a later
// client for the same browser session can restore it.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (session.BackendSession, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return session.BackendSession{}, err
	}
	stored, err := c.sessionFromToken(resp)
	if err != nil {
		return session.BackendSession{}, err
	}
	c.install(ctx, stored)
	c.emit(session.AuthEvent{Kind: session.EventSignedIn, Session: stored.public()})
	return *stored.public(), nil
}

// SignUp creates an account. The returned session is nil when the backend
// requires email confirmation before signing in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*session.BackendSession, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, nil
	}
	stored, err := c.sessionFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.install(ctx, stored)
	c.emit(session.AuthEvent{Kind: session.EventSignedIn, Session: stored.public()})
	return stored.public(), nil
}

// SignOut revokes the session remotely and forgets it locally. The local
// session is cleared even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	var remoteErr error
	if cur != nil {
		remoteErr = c.do(ctx, http.MethodPost, "/auth/v1/logout", cur.AccessToken, nil, nil)
	}
	c.clear(ctx)
	c.emit(session.AuthEvent{Kind: session.EventSignedOut})
	return remoteErr
}

// Session returns the current session, restoring it from the store and
// refreshing it when the access token has expired.
func (c *Client) Session(ctx context.Context) (*session.BackendSession, error) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()

	if cur == nil {
		raw, err := c.store.Get(ctx, SessionKey)
		if errors.Is(err, session.ErrNoRecord) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read backend session: %w", err)
		}
		var stored storedSession
		if err := json.Unmarshal(raw, &stored); err != nil || stored.AccessToken == "" {
			_ = c.store.Delete(ctx, SessionKey)
			return nil, nil
		}
		cur = &stored
	}

	if !c.now().Before(cur.ExpiresAt.Add(-refreshMargin)) {
		refreshed, err := c.refresh(ctx, cur.RefreshToken)
		if errors.Is(err, session.ErrBackendCredentials) {
			c.clear(ctx)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("refresh backend session: %w", err)
		}
		cur = refreshed
	}
	c.install(ctx, cur)
	return cur.public(), nil
}

// FetchProfile reads the profile row of userID.
func (c *Client) FetchProfile(ctx context.Context, userID string) (identity.Identity, error) {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	token := ""
	if cur != nil {
		token = cur.AccessToken
	}

	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "*")

	var row profileRow
	if err := c.doWithHeaders(ctx, http.MethodGet, "/rest/v1/users?"+q.Encode(), token, nil, &row,
		map[string]string{"Accept": "application/vnd.pgrst.object+json"}); err != nil {
		return identity.Identity{}, fmt.Errorf("fetch profile: %w", err)
	}
	return row.toIdentity()
}

// ResetPasswordForEmail asks the backend to send a recovery email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the password of the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return session.ErrNoSession
	}
	if err := c.do(ctx, http.MethodPut, "/auth/v1/user", cur.AccessToken, map[string]string{"password": newPassword}, nil); err != nil {
		return err
	}
	c.emit(session.AuthEvent{Kind: session.EventUserUpdated, Session: cur.public()})
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*storedSession, error) {
	if refreshToken == "" {
		return nil, session.ErrBackendCredentials
	}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp); err != nil {
		return nil, err
	}
	return c.sessionFromToken(resp)
}

// install makes stored current, persists it and arms the expiry timer.
func (c *Client) install(ctx context.Context, stored *storedSession) {
	raw, err := json.Marshal(stored)
	if err == nil {
		err = c.store.Put(ctx, SessionKey, raw)
	}
	if err != nil {
		c.logger.Warn("persist backend session", slog.Any("error", err))
	}

	c.mu.Lock()
	c.current = stored
	if c.timer != nil {
		c.timer.Stop()
	}
	wait := stored.ExpiresAt.Sub(c.now()) - refreshMargin
	if wait < 0 {
		wait = 0
	}
	c.timer = time.AfterFunc(wait, func() { c.onExpiry(stored) })
	c.mu.Unlock()
}

func (c *Client) clear(ctx context.Context) {
	c.mu.Lock()
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	if err := c.store.Delete(ctx, SessionKey); err != nil {
		c.logger.Warn("clear backend session", slog.Any("error", err))
	}
}

// onExpiry refreshes an expiring session, or ends it if refresh fails.
func (c *Client) onExpiry(expiring *storedSession) {
	c.mu.Lock()
	stale := c.current != expiring
	c.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()
	refreshed, err := c.refresh(ctx, expiring.RefreshToken)
	if err != nil {
		c.logger.Info("backend session expired", slog.String("user_id", expiring.UserID), slog.Any("error", err))
		c.clear(ctx)
		c.emit(session.AuthEvent{Kind: session.EventTokenExpired})
		return
	}
	c.install(ctx, refreshed)
}

func (c *Client) sessionFromToken(resp tokenResponse) (*storedSession, error) {
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, fmt.Errorf("%w: token response without session", errMalformed)
	}
	stored := &storedSession{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
	}
	switch {
	case resp.ExpiresAt > 0:
		stored.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		stored.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	default:
		exp, err := tokenExpiry(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		stored.ExpiresAt = exp
	}
	return stored, nil
}

// tokenExpiry reads the exp claim of an access token. The signature is the
// backend's concern and is not verified here.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: parse access token: %v", errMalformed, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("%w: access token without exp", errMalformed)
	}
	return exp.UTC(), nil
}

var errMalformed = errors.New("malformed backend response")

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	return c.doWithHeaders(ctx, method, path, bearer, body, out, nil)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path, bearer string, body, out any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

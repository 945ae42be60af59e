package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

const (
	testKey    = "anon-key"
	testUserID = "6f1c3c1e-8d43-4a8e-a1b8-6f4dfb1d9c11"
)

type fakeBackend struct {
	mu        sync.Mutex
	password  string
	expiresIn int64
	refreshOK bool
	logouts   int
	recovered []string
}

func accessToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": testUserID, "exp": exp.Unix()})
	signed, err := tok.SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return signed
}

func newFakeServer(t *testing.T, f *fakeBackend) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	// handle routes "METHOD /path" patterns on toolchains whose ServeMux
	// predates method-qualified patterns.
	handle := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				w.Header().Set("Allow", method)
				http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}

	writeSession := func(w http.ResponseWriter) {
		f.mu.Lock()
		expiresIn := f.expiresIn
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken(t, time.Now().Add(time.Duration(expiresIn)*time.Second)),
			"refresh_token": "refresh-1",
			"expires_in":    expiresIn,
			"user":          map[string]string{"id": testUserID, "email": "client@demo.com"},
		})
	}

	handle("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		password, refreshOK := f.password, f.refreshOK
		f.mu.Unlock()

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != password {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
				return
			}
		case "refresh_token":
			if !refreshOK || body["refresh_token"] != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh token revoked"}`))
				return
			}
		}
		writeSession(w)
	})
	handle("POST /auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body["password"]) < 6 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"msg":"Password should be at least 6 characters"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": testUserID, "email": body["email"]})
	})
	handle("POST /auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	handle("POST /auth/v1/recover", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.recovered = append(f.recovered, body["email"])
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	handle("PUT /auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + testUserID + `"}`))
	})
	handle("GET /rest/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "eq."+testUserID {
			w.WriteHeader(http.StatusNotAcceptable)
			_, _ = w.Write([]byte(`{"message":"JSON object requested, multiple (or no) rows returned"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"` + testUserID + `","email":"client@demo.com","role":"client","balance_eur":5000.5,"kyc_status":"approved","created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z","last_login":null}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeBackend) (*Client, session.Store) {
	t.Helper()
	srv := newFakeServer(t, f)
	store := session.NewMemoryStore()
	return New(Config{URL: srv.URL + "/", Key: testKey, Timeout: time.Second}, store, nil), store
}

func TestSignInPersistsSessionAndEmits(t *testing.T) {
	c, store := newTestClient(t, &fakeBackend{password: "demo123", expiresIn: 3600})
	ctx := context.Background()

	var events []session.EventKind
	var mu sync.Mutex
	unsubscribe := c.OnAuthStateChange(func(ev session.AuthEvent) {
		mu.Lock()
		events = append(events, ev.Kind)
		mu.Unlock()
	})
	defer unsubscribe()

	sess, err := c.SignInWithPassword(ctx, "client@demo.com", "demo123")
	require.NoError(t, err)
	assert.Equal(t, testUserID, sess.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	raw, err := store.Get(ctx, SessionKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "refresh-1")

	mu.Lock()
	assert.Equal(t, []session.EventKind{session.EventSignedIn}, events)
	mu.Unlock()
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	c, store := newTestClient(t, &fakeBackend{password: "demo123", expiresIn: 3600})

	_, err := c.SignInWithPassword(context.Background(), "client@demo.com", "wrong")
	require.ErrorIs(t, err, session.ErrBackendCredentials)
	_, err = store.Get(context.Background(), SessionKey)
	assert.ErrorIs(t, err, session.ErrNoRecord)
}

func TestSessionRestoresFromStore(t *testing.T) {
	f := &fakeBackend{password: "demo123", expiresIn: 3600}
	srv := newFakeServer(t, f)
	store := session.NewMemoryStore()
	ctx := context.Background()

	first := New(Config{URL: srv.URL, Key: testKey}, store, nil)
	_, err := first.SignInWithPassword(ctx, "client@demo.com", "demo123")
	require.NoError(t, err)

	second := New(Config{URL: srv.URL, Key: testKey}, store, nil)
	sess, err := second.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "client@demo.com", sess.Email)
}

func TestSessionRefreshesExpiredToken(t *testing.T) {
	f := &fakeBackend{password: "demo123", expiresIn: 3600, refreshOK: true}
	c, store := newTestClient(t, f)
	ctx := context.Background()

	stale, _ := json.Marshal(storedSession{
		AccessToken:  accessToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "refresh-1",
		UserID:       testUserID,
		Email:        "client@demo.com",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	require.NoError(t, store.Put(ctx, SessionKey, stale))

	sess, err := c.Session(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
}

func TestSessionDropsUnrefreshableToken(t *testing.T) {
	c, store := newTestClient(t, &fakeBackend{expiresIn: 3600})
	ctx := context.Background()

	stale, _ := json.Marshal(storedSession{
		AccessToken:  "expired",
		RefreshToken: "refresh-1",
		UserID:       testUserID,
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	require.NoError(t, store.Put(ctx, SessionKey, stale))

	sess, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
	_, err = store.Get(ctx, SessionKey)
	assert.ErrorIs(t, err, session.ErrNoRecord)
}

func TestExpiryEmitsTokenExpired(t *testing.T) {
	// expires_in of zero falls back to the token's exp claim, which is
	// already inside the refresh margin.
	c, _ := newTestClient(t, &fakeBackend{password: "demo123", expiresIn: 0})

	expired := make(chan struct{}, 1)
	defer c.OnAuthStateChange(func(ev session.AuthEvent) {
		if ev.Kind == session.EventTokenExpired {
			expired <- struct{}{}
		}
	})()

	_, err := c.SignInWithPassword(context.Background(), "client@demo.com", "demo123")
	require.NoError(t, err)

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected token_expired event")
	}
	sess, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestFetchProfileMapsRow(t *testing.T) {
	c, _ := newTestClient(t, &fakeBackend{password: "demo123", expiresIn: 3600})
	ctx := context.Background()

	id, err := c.FetchProfile(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleClient, id.Role)
	assert.Equal(t, identity.KYCApproved, id.KYCStatus)
	assert.Equal(t, "5000.5", id.Balance.String())
	assert.Nil(t, id.LastLogin)

	_, err = c.FetchProfile(ctx, "missing")
	assert.Error(t, err)
}

func TestSignUpWithConfirmationReturnsNoSession(t *testing.T) {
	c, _ := newTestClient(t, &fakeBackend{expiresIn: 3600})
	ctx := context.Background()

	sess, err := c.SignUp(ctx, "new@demo.com", "s3cret!")
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = c.SignUp(ctx, "new@demo.com", "abc")
	assert.ErrorIs(t, err, session.ErrBackendValidation)
}

func TestSignOutAndPasswordFlows(t *testing.T) {
	f := &fakeBackend{password: "demo123", expiresIn: 3600}
	c, store := newTestClient(t, f)
	ctx := context.Background()

	assert.ErrorIs(t, c.UpdatePassword(ctx, "another"), session.ErrNoSession)

	_, err := c.SignInWithPassword(ctx, "client@demo.com", "demo123")
	require.NoError(t, err)
	require.NoError(t, c.UpdatePassword(ctx, "another"))
	require.NoError(t, c.ResetPasswordForEmail(ctx, "client@demo.com"))

	require.NoError(t, c.SignOut(ctx))
	_, err = store.Get(ctx, SessionKey)
	assert.ErrorIs(t, err, session.ErrNoRecord)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.logouts)
	assert.Equal(t, []string{"client@demo.com"}, f.recovered)
}

func TestManagerOverBackendClient(t *testing.T) {
	f := &fakeBackend{password: "demo123", expiresIn: 3600}
	c, _ := newTestClient(t, f)

	m := session.NewManager(session.Options{Backend: c})
	defer m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := m.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, m.SignIn(ctx, "client@demo.com", "demo123"))
	id, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, identity.RoleClient, id.Role)
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/notification"
)

const defaultResolveTimeout = 5 * time.Second

// Options configures a Manager. Either Backend is set (backend mode) or
// Directory and Store are (standalone mode).
type Options struct {
	Backend        Backend
	Directory      *identity.Directory
	Store          Store
	Notifier       notification.Notifier
	Logger         *slog.Logger
	ResolveTimeout time.Duration
}

// Manager owns the current identity of one browser session.
//
// On construction it resolves a prior session exactly once, asynchronously.
// Until that finishes the state is loading. Afterwards the state moves between
// authenticated and unauthenticated only through sign-in/up/out or backend
// change events.
type Manager struct {
	opts   Options
	logger *slog.Logger

	state atomic.Pointer[State]
	// token is the backend access token the current identity was adopted from.
	token atomic.Pointer[string]
	ready chan struct{}

	writeMu sync.Mutex
	adoptMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	unsubscribeBackend func()
	closeOnce          sync.Once
}

// NewManager builds a manager and starts resolving the prior session.
// Misconfigured options are a wiring defect and panic.
func NewManager(opts Options) *Manager {
	if opts.Backend == nil && (opts.Directory == nil || opts.Store == nil) {
		panic("session: manager needs a backend or a directory and store")
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Manager{
		opts:   opts,
		logger: logger,
		ready:  make(chan struct{}),
		subs:   make(map[int]func(State)),
	}
	m.state.Store(&loadingState)

	go m.resolve()
	return m
}

// Standalone reports whether the manager runs without an identity backend.
func (m *Manager) Standalone() bool { return m.opts.Backend == nil }

// State returns the current session state.
func (m *Manager) State() State { return *m.state.Load() }

// Current returns the current identity, if authenticated.
func (m *Manager) Current() (identity.Identity, bool) {
	s := m.State()
	if !s.Authenticated() {
		return identity.Identity{}, false
	}
	return *s.Identity, true
}

// Ready is closed once the prior session has been resolved.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Wait blocks until resolution completes or ctx is done.
func (m *Manager) Wait(ctx context.Context) (State, error) {
	select {
	case <-m.ready:
		return m.State(), nil
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// Subscribe registers fn for every state change. fn runs on the goroutine that
// made the change and must not block.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// Close detaches the manager from its backend and closes the backend when
// it has a Close method.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		<-m.ready
		m.writeMu.Lock()
		unsub := m.unsubscribeBackend
		m.writeMu.Unlock()
		if unsub != nil {
			unsub()
		}
		if closer, ok := m.opts.Backend.(interface{ Close() }); ok {
			closer.Close()
		}
	})
}

func (m *Manager) setState(s State) {
	m.writeMu.Lock()
	m.state.Store(&s)
	m.writeMu.Unlock()
	m.publish(s)
}

func (m *Manager) publish(s State) {
	m.subMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) resolve() {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ResolveTimeout)
	defer cancel()

	var resolved State
	if m.Standalone() {
		resolved = m.resolveStandalone(ctx)
	} else {
		resolved = m.resolveBackend(ctx)
	}

	m.writeMu.Lock()
	m.state.Store(&resolved)
	if !m.Standalone() {
		m.unsubscribeBackend = m.opts.Backend.OnAuthStateChange(m.onBackendEvent)
	}
	m.writeMu.Unlock()
	close(m.ready)

	m.logger.Debug("session resolved", slog.String("status", string(resolved.Status)))
	m.publish(resolved)
}

func (m *Manager) resolveStandalone(ctx context.Context) State {
	raw, err := m.opts.Store.Get(ctx, IdentityKey)
	if errors.Is(err, ErrNoRecord) {
		return unauthenticatedState
	}
	if err != nil {
		m.logger.Warn("read persisted identity", slog.Any("error", err))
		return unauthenticatedState
	}

	var persisted identity.Identity
	if err := json.Unmarshal(raw, &persisted); err != nil || persisted.ID == "" {
		m.logger.Warn("discard malformed persisted identity", slog.Any("error", err))
		_ = m.opts.Store.Delete(ctx, IdentityKey)
		return unauthenticatedState
	}

	fresh, err := m.opts.Directory.Lookup(ctx, persisted.ID)
	switch {
	case err == nil:
		m.persist(ctx, fresh)
		return authenticatedState(fresh)
	case errors.Is(err, identity.ErrNotFound):
		_ = m.opts.Store.Delete(ctx, IdentityKey)
		return unauthenticatedState
	default:
		m.logger.Warn("refresh persisted identity", slog.Any("error", err))
		return authenticatedState(persisted)
	}
}

func (m *Manager) resolveBackend(ctx context.Context) State {
	sess, err := m.opts.Backend.Session(ctx)
	if err != nil {
		m.logger.Warn("restore backend session", slog.Any("error", err))
		return unauthenticatedState
	}
	if sess == nil {
		return unauthenticatedState
	}
	profile, err := m.opts.Backend.FetchProfile(ctx, sess.UserID)
	if err != nil {
		m.logger.Warn("fetch profile", slog.String("user_id", sess.UserID), slog.Any("error", err))
		return unauthenticatedState
	}
	token := sess.AccessToken
	m.token.Store(&token)
	return authenticatedState(profile)
}

func (m *Manager) onBackendEvent(ev AuthEvent) {
	switch ev.Kind {
	case EventSignedIn, EventUserUpdated:
		if ev.Session == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.ResolveTimeout)
		defer cancel()
		if _, err := m.adopt(ctx, *ev.Session, ev.Kind == EventUserUpdated); err != nil {
			m.logger.Warn("adopt backend session", slog.String("event", string(ev.Kind)), slog.Any("error", err))
		}
	case EventSignedOut, EventTokenExpired:
		m.token.Store(nil)
		if m.State().Status != StatusUnauthenticated {
			m.logger.Info("session ended by backend", slog.String("event", string(ev.Kind)))
			m.setState(unauthenticatedState)
		}
	}
}

// adopt makes the profile behind sess current. A session already adopted is
// not fetched again unless force is set.
func (m *Manager) adopt(ctx context.Context, sess BackendSession, force bool) (identity.Identity, error) {
	m.adoptMu.Lock()
	defer m.adoptMu.Unlock()

	if cur, ok := m.Current(); ok && !force {
		if tok := m.token.Load(); tok != nil && *tok == sess.AccessToken && cur.ID == sess.UserID {
			return cur, nil
		}
	}
	profile, err := m.opts.Backend.FetchProfile(ctx, sess.UserID)
	if err != nil {
		return identity.Identity{}, err
	}
	token := sess.AccessToken
	m.token.Store(&token)
	m.setState(authenticatedState(profile))
	return profile, nil
}

func (m *Manager) persist(ctx context.Context, id identity.Identity) {
	raw, err := json.Marshal(id)
	if err != nil {
		m.logger.Error("encode identity", slog.Any("error", err))
		return
	}
	if err := m.opts.Store.Put(ctx, IdentityKey, raw); err != nil {
		m.logger.Warn("persist identity", slog.String("user_id", id.ID), slog.Any("error", err))
	}
}

func (m *Manager) awaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return backendError(ctx.Err())
	}
}

// SignIn authenticates with email and password and makes the matching
// identity current.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.awaitReady(ctx); err != nil {
		return err
	}

	if m.Standalone() {
		id, err := m.opts.Directory.Authenticate(ctx, email, password)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return credentialsError(err)
		}
		if err != nil {
			return backendError(err)
		}
		m.persist(ctx, id)
		m.setState(authenticatedState(id))
		m.logger.Info("signed in", slog.String("user_id", id.ID), slog.String("role", string(id.Role)))
		return nil
	}

	sess, err := m.opts.Backend.SignInWithPassword(ctx, identity.NormalizeEmail(email), password)
	if err != nil {
		return classifyBackendError(err)
	}
	id, err := m.adopt(ctx, sess, false)
	if err != nil {
		return backendError(err)
	}
	m.logger.Info("signed in", slog.String("user_id", id.ID), slog.String("role", string(id.Role)))
	return nil
}

// SignUp registers a client account and makes it current. It fails with a
// validation error, without any external call, unless the terms are accepted.
func (m *Manager) SignUp(ctx context.Context, email, password string, acceptedTerms bool) error {
	if !acceptedTerms {
		return validationError(msgTermsRequired, nil)
	}
	if err := m.awaitReady(ctx); err != nil {
		return err
	}

	if m.Standalone() {
		id, err := m.opts.Directory.Register(ctx, email, password)
		switch {
		case errors.Is(err, identity.ErrInvalidEmail),
			errors.Is(err, identity.ErrWeakPassword),
			errors.Is(err, identity.ErrPasswordTooLong),
			errors.Is(err, identity.ErrEmailTaken):
			return validationError(err.Error(), err)
		case err != nil:
			return backendError(err)
		}
		m.persist(ctx, id)
		m.setState(authenticatedState(id))
		m.logger.Info("signed up", slog.String("user_id", id.ID))
		if m.opts.Notifier != nil {
			welcome := notification.Message{Kind: notification.KindWelcome, Destination: id.Email, Body: "Welcome aboard. Your KYC review is pending."}
			if err := m.opts.Notifier.Send(ctx, welcome); err != nil {
				m.logger.Warn("send welcome message", slog.Any("error", err))
			}
		}
		return nil
	}

	sess, err := m.opts.Backend.SignUp(ctx, identity.NormalizeEmail(email), password)
	if err != nil {
		return classifyBackendError(err)
	}
	if sess == nil {
		// Confirmation pending; the session stays unauthenticated.
		return nil
	}
	if _, err := m.adopt(ctx, *sess, false); err != nil {
		return backendError(err)
	}
	return nil
}

// SignOut clears the current identity and any persisted session. It always
// succeeds; backend failures are logged.
func (m *Manager) SignOut(ctx context.Context) {
	select {
	case <-m.ready:
	case <-ctx.Done():
	}

	if m.Standalone() {
		if err := m.opts.Store.Delete(ctx, IdentityKey); err != nil {
			m.logger.Warn("clear persisted identity", slog.Any("error", err))
		}
	} else {
		if err := m.opts.Backend.SignOut(ctx); err != nil {
			m.logger.Warn("backend sign out", slog.Any("error", err))
		}
		m.token.Store(nil)
	}
	if id, ok := m.Current(); ok {
		m.logger.Info("signed out", slog.String("user_id", id.ID))
	}
	m.setState(unauthenticatedState)
}

// ResetPassword starts the out-of-band recovery flow. It reports the same
// success whether or not the email is registered.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return validationError("email is required", nil)
	}

	if !m.Standalone() {
		err := m.opts.Backend.ResetPasswordForEmail(ctx, email)
		if err == nil || errors.Is(err, ErrBackendCredentials) {
			return nil
		}
		return classifyBackendError(err)
	}

	exists, err := m.opts.Directory.Exists(ctx, email)
	if err != nil {
		m.logger.Warn("reset lookup", slog.Any("error", err))
		return nil
	}
	if !exists || m.opts.Notifier == nil {
		return nil
	}
	msg := notification.Message{
		Kind:        notification.KindPasswordReset,
		Destination: email,
		Body:        "Use the link in this message to choose a new password.",
	}
	if err := m.opts.Notifier.Send(ctx, msg); err != nil {
		m.logger.Warn("send reset message", slog.Any("error", err))
	}
	return nil
}

// UpdatePassword changes the password of the signed-in identity.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := m.awaitReady(ctx); err != nil {
		return err
	}
	id, ok := m.Current()
	if !ok {
		return unauthenticatedError()
	}

	if m.Standalone() {
		err := m.opts.Directory.ChangePassword(ctx, id.ID, newPassword)
		switch {
		case errors.Is(err, identity.ErrWeakPassword), errors.Is(err, identity.ErrPasswordTooLong):
			return validationError(err.Error(), err)
		case errors.Is(err, identity.ErrNotFound):
			return unauthenticatedError()
		case err != nil:
			return backendError(err)
		}
		return nil
	}

	if err := m.opts.Backend.UpdatePassword(ctx, newPassword); err != nil {
		if errors.Is(err, ErrNoSession) {
			return unauthenticatedError()
		}
		return classifyBackendError(err)
	}
	return nil
}

func classifyBackendError(err error) error {
	switch {
	case errors.Is(err, ErrBackendCredentials):
		return credentialsError(err)
	case errors.Is(err, ErrBackendValidation):
		return validationError(err.Error(), err)
	case errors.Is(err, ErrNoSession):
		return unauthenticatedError()
	default:
		return backendError(err)
	}
}

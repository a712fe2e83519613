package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatlink/internal/auth"
	"chatlink/internal/credstore"
	"chatlink/internal/logging"

	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds the shared refresh exchange. The flight runs on its
// own context so a cancelled caller cannot abort a refresh other callers
// are waiting on.
const refreshTimeout = 15 * time.Second

// Manager is the single owner of the current session State. All mutation is
// serialized through its mutex; token refreshes are coalesced so that any
// number of concurrent callers holding an expired token produce exactly one
// network exchange.
type Manager struct {
	mu    sync.Mutex
	state State

	creds credstore.Store
	authc auth.Client
	log   logging.Logger
	sf    singleflight.Group

	now func() time.Time
}

func NewManager(creds credstore.Store, authc auth.Client, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Manager{
		creds: creds,
		authc: authc,
		log:   log,
		state: Unauthenticated(),
		now:   time.Now,
	}
}

// Current returns the current snapshot.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Login performs the login exchange and installs the resulting state. The
// refresh token is persisted to the credential store; a persistence failure
// is logged but does not fail the login.
func (m *Manager) Login(ctx context.Context, username, password, tenantID string) (State, error) {
	res, err := m.authc.Login(ctx, username, password, tenantID)
	if err != nil {
		return Unauthenticated(), err
	}
	if res.User == nil {
		return Unauthenticated(), ErrIncompleteSession
	}

	st, err := stateFromResult(res, nil)
	if err != nil {
		return Unauthenticated(), err
	}

	m.install(ctx, st)
	return st, nil
}

// Logout resets the state and removes stored credentials. Delete is
// idempotent, so a missing credential file is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.state = Unauthenticated()
	m.mu.Unlock()

	if err := m.creds.Delete(); err != nil {
		m.log.Warn(ctx, "failed to delete stored credentials", "err", err)
		return err
	}
	return nil
}

// Restore attempts to resume a session from stored credentials by running
// a refresh exchange. Returns ErrNotAuthenticated when nothing is stored.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	creds, ok, err := m.creds.Load()
	if err != nil {
		return Unauthenticated(), err
	}
	if !ok || creds.RefreshToken == "" {
		return Unauthenticated(), ErrNotAuthenticated
	}

	res, err := m.authc.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// The stored refresh token is dead; clear it.
			_ = m.creds.Delete()
		}
		return Unauthenticated(), err
	}
	if res.User == nil {
		return Unauthenticated(), ErrIncompleteSession
	}

	st, err := stateFromResult(res, nil)
	if err != nil {
		return Unauthenticated(), err
	}
	m.install(ctx, st)
	return st, nil
}

// AccessToken returns a bearer token that is valid right now, refreshing it
// first if the current one has expired. Concurrent callers share a single
// refresh flight; a caller whose context is cancelled simply stops waiting
// and never mutates shared state.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	st := m.Current()
	if !st.Authenticated {
		return "", ErrNotAuthenticated
	}
	if !st.Expired(m.now()) {
		return st.Token, nil
	}

	// Key the flight by the stale refresh token: a second round of
	// callers after a successful refresh must start a new flight.
	ch := m.sf.DoChan("refresh:"+st.RefreshToken, func() (any, error) {
		return m.refresh(st.RefreshToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// refresh runs the shared refresh exchange. It re-checks the state under
// the assumption that another flight may have already replaced it.
func (m *Manager) refresh(staleRefreshToken string) (string, error) {
	cur := m.Current()
	if !cur.Authenticated {
		return "", ErrNotAuthenticated
	}
	if !cur.Expired(m.now()) {
		return cur.Token, nil
	}
	if cur.RefreshToken != staleRefreshToken {
		// Replaced while we were queued; the new token is current.
		return cur.Token, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	res, err := m.authc.Refresh(ctx, staleRefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// The refresh token was rejected: the session is gone.
			m.mu.Lock()
			m.state = Unauthenticated()
			m.mu.Unlock()
			_ = m.creds.Delete()
			m.log.Warn(ctx, "refresh token rejected, session reset")
		}
		return "", err
	}

	st, err := stateFromResult(res, cur.User)
	if err != nil {
		return "", err
	}
	m.install(ctx, st)
	return st.Token, nil
}

func (m *Manager) install(ctx context.Context, st State) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	err := m.creds.Save(credstore.Credentials{
		Token:        st.Token,
		RefreshToken: st.RefreshToken,
	})
	if err != nil {
		m.log.Warn(ctx, "failed to persist credentials", "err", err)
	}
}

// stateFromResult converts an auth exchange result into a State. The
// refresh endpoint may omit the user record; priorUser is carried over in
// that case. When expiresAt is missing, the JWT exp claim is the fallback.
func stateFromResult(res auth.Result, priorUser *User) (State, error) {
	user := priorUser
	if res.User != nil {
		user = &User{
			ID:        res.User.ID,
			Username:  res.User.Username,
			Email:     res.User.Email,
			FirstName: res.User.FirstName,
			LastName:  res.User.LastName,
			TenantID:  res.User.TenantID,
		}
	}
	if user == nil {
		return State{}, ErrIncompleteSession
	}

	expiresAt := res.ExpiresAt
	if expiresAt.IsZero() {
		exp, ok := expiryFromToken(res.Token)
		if !ok {
			return State{}, ErrIncompleteSession
		}
		expiresAt = exp
	}

	return Authenticated(res.Token, res.RefreshToken, expiresAt, *user)
}

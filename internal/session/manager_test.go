package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatlink/internal/auth"
	"chatlink/internal/credstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake auth client ----

type fakeAuthClient struct {
	mu sync.Mutex

	LoginRes auth.Result
	LoginErr error

	RefreshRes   auth.Result
	RefreshErr   error
	RefreshDelay time.Duration

	LoginCalls   atomic.Int32
	RefreshCalls atomic.Int32

	LastRefreshToken string
}

func (f *fakeAuthClient) Login(ctx context.Context, username, password, tenantID string) (auth.Result, error) {
	f.LoginCalls.Add(1)
	return f.LoginRes, f.LoginErr
}

func (f *fakeAuthClient) Refresh(ctx context.Context, refreshToken string) (auth.Result, error) {
	f.RefreshCalls.Add(1)
	f.mu.Lock()
	f.LastRefreshToken = refreshToken
	f.mu.Unlock()
	if f.RefreshDelay > 0 {
		select {
		case <-time.After(f.RefreshDelay):
		case <-ctx.Done():
			return auth.Result{}, ctx.Err()
		}
	}
	return f.RefreshRes, f.RefreshErr
}

func validResult(token string, expiresAt time.Time) auth.Result {
	return auth.Result{
		Token:        token,
		RefreshToken: "ref-" + token,
		ExpiresAt:    expiresAt,
		User:         &auth.User{ID: "u1", Username: "alice", TenantID: "tenant-1"},
	}
}

func TestLoginInstallsStateAndPersistsCredentials(t *testing.T) {
	creds := credstore.NewMemoryStore()
	fc := &fakeAuthClient{LoginRes: validResult("tok1", time.Now().Add(time.Hour))}
	m := NewManager(creds, fc, nil)

	st, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Equal(t, st, m.Current())

	saved, ok, err := creds.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok1", saved.Token)
	assert.Equal(t, "ref-tok1", saved.RefreshToken)
}

func TestLoginFailureLeavesStateUnchanged(t *testing.T) {
	fc := &fakeAuthClient{LoginErr: auth.ErrInvalidCredentials}
	m := NewManager(credstore.NewMemoryStore(), fc, nil)

	_, err := m.Login(context.Background(), "alice", "bad", "tenant-1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.False(t, m.Current().Authenticated)
}

func TestAccessTokenWithoutSession(t *testing.T) {
	m := NewManager(credstore.NewMemoryStore(), &fakeAuthClient{}, nil)

	_, err := m.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAccessTokenFreshTokenNoRefresh(t *testing.T) {
	fc := &fakeAuthClient{LoginRes: validResult("tok1", time.Now().Add(time.Hour))}
	m := NewManager(credstore.NewMemoryStore(), fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, int32(0), fc.RefreshCalls.Load())
}

func TestRefreshCoalescing(t *testing.T) {
	fc := &fakeAuthClient{
		LoginRes:     validResult("stale", time.Now().Add(-time.Minute)),
		RefreshRes:   validResult("fresh", time.Now().Add(time.Hour)),
		RefreshDelay: 50 * time.Millisecond,
	}
	m := NewManager(credstore.NewMemoryStore(), fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh", tokens[i])
	}
	assert.Equal(t, int32(1), fc.RefreshCalls.Load(), "concurrent callers must share one refresh")
	assert.Equal(t, "ref-stale", fc.LastRefreshToken)
}

func TestRefreshRejectionResetsSession(t *testing.T) {
	creds := credstore.NewMemoryStore()
	fc := &fakeAuthClient{
		LoginRes:   validResult("stale", time.Now().Add(-time.Minute)),
		RefreshErr: auth.ErrInvalidCredentials,
	}
	m := NewManager(creds, fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	_, err = m.AccessToken(context.Background())
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	assert.False(t, m.Current().Authenticated)
	_, ok, _ := creds.Load()
	assert.False(t, ok, "credentials must be wiped after a rejected refresh")
}

func TestRefreshCarriesUserOver(t *testing.T) {
	refreshRes := validResult("fresh", time.Now().Add(time.Hour))
	refreshRes.User = nil // refresh responses may omit the user record

	fc := &fakeAuthClient{
		LoginRes:   validResult("stale", time.Now().Add(-time.Minute)),
		RefreshRes: refreshRes,
	}
	m := NewManager(credstore.NewMemoryStore(), fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	_, err = m.AccessToken(context.Background())
	require.NoError(t, err)

	st := m.Current()
	require.NotNil(t, st.User)
	assert.Equal(t, "alice", st.User.Username)
}

func TestCancelledCallerStopsWaitingWithoutMutation(t *testing.T) {
	fc := &fakeAuthClient{
		LoginRes:     validResult("stale", time.Now().Add(-time.Minute)),
		RefreshRes:   validResult("fresh", time.Now().Add(time.Hour)),
		RefreshDelay: 200 * time.Millisecond,
	}
	m := NewManager(credstore.NewMemoryStore(), fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.AccessToken(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The shared flight still completes and installs the fresh state.
	require.Eventually(t, func() bool {
		return m.Current().Token == "fresh"
	}, time.Second, 10*time.Millisecond)
}

func TestLogoutClearsStateAndCredentials(t *testing.T) {
	creds := credstore.NewMemoryStore()
	fc := &fakeAuthClient{LoginRes: validResult("tok1", time.Now().Add(time.Hour))}
	m := NewManager(creds, fc, nil)

	_, err := m.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, m.Current().Authenticated)

	_, ok, _ := creds.Load()
	assert.False(t, ok)
}

func TestRestoreFromStoredCredentials(t *testing.T) {
	creds := credstore.NewMemoryStore()
	require.NoError(t, creds.Save(credstore.Credentials{Token: "old", RefreshToken: "old-ref"}))

	fc := &fakeAuthClient{RefreshRes: validResult("fresh", time.Now().Add(time.Hour))}
	m := NewManager(creds, fc, nil)

	st, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Equal(t, "old-ref", fc.LastRefreshToken)
}

func TestRestoreWithoutCredentials(t *testing.T) {
	m := NewManager(credstore.NewMemoryStore(), &fakeAuthClient{}, nil)

	_, err := m.Restore(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

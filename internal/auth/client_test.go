package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSuccess(t *testing.T) {
	var gotBody loginRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/Auth/Login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"token":        "tok",
			"refreshToken": "ref",
			"expiresAt":    "2030-01-02T15:04:05Z",
			"user": map[string]string{
				"id":        "u1",
				"userName":  "alice",
				"companyId": "tenant-1",
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	res, err := c.Login(context.Background(), "alice", "pw", "tenant-1")
	require.NoError(t, err)

	assert.Equal(t, loginRequest{UserName: "alice", Password: "pw", CompanyID: "tenant-1"}, gotBody)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "ref", res.RefreshToken)
	assert.Equal(t, time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC), res.ExpiresAt)
	require.NotNil(t, res.User)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "tenant-1", res.User.TenantID)
}

func TestLoginRejected(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewHTTPClient(srv.URL, nil, nil)
		_, err := c.Login(context.Background(), "alice", "bad", "tenant-1")
		require.ErrorIs(t, err, ErrInvalidCredentials, "status %d", status)
		srv.Close()
	}
}

func TestLoginServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	_, err := c.Login(context.Background(), "alice", "pw", "tenant-1")

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
}

func TestLoginDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	_, err := c.Login(context.Background(), "alice", "pw", "tenant-1")
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestLoginMissingTokenIsDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"refreshToken": "ref"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	_, err := c.Login(context.Background(), "alice", "pw", "tenant-1")
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestRefreshPostsToken(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/Auth/RefreshToken", r.URL.Path)

		var body refreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "old-refresh", body.RefreshToken)

		json.NewEncoder(w).Encode(map[string]any{
			"token":        "new-tok",
			"refreshToken": "new-ref",
			"expiresAt":    "2030-01-02T15:04:05Z",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil, nil)
	res, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)

	assert.Equal(t, "new-tok", res.Token)
	assert.Nil(t, res.User)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNetworkFailure(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", nil, nil)
	_, err := c.Login(context.Background(), "alice", "pw", "tenant-1")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestCancellationSurfacesContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the body must be drained before blocking, or the server never
		// notices the client going away and Close hangs forever
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := NewHTTPClient(srv.URL, nil, nil)
	_, err := c.Login(ctx, "alice", "pw", "tenant-1")
	require.ErrorIs(t, err, context.Canceled)
}

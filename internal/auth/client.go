// Package auth performs the login and refresh-token exchanges against the
// account endpoints. It maps HTTP outcomes onto a small typed error set and
// leaves every retry decision to the caller.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatlink/internal/logging"
	"chatlink/internal/observability/metrics"
)

// User is the identity record decoded from a login/refresh response.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	TenantID  string
}

// Result is the outcome of a successful exchange. User may be nil on
// refresh responses; ExpiresAt may be zero when the endpoint omits it.
type Result struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// Client defines the authentication operations.
//
// Contract:
//   - Login: exchange username/password/tenant for a token pair.
//   - Refresh: exchange a refresh token for a new token pair. Never call
//     this concurrently for the same stale token; coalescing is the
//     session manager's job.
//
// Both methods must honor context cancellation.
type Client interface {
	Login(ctx context.Context, username, password, tenantID string) (Result, error)
	Refresh(ctx context.Context, refreshToken string) (Result, error)
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
	mtr     *metrics.Metrics
}

func NewHTTPClient(baseURL string, httpClient *http.Client, log logging.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &HTTPClient{baseURL: baseURL, http: httpClient, log: log}
}

// WithMetrics attaches the exchange counters and returns the client.
func (c *HTTPClient) WithMetrics(m *metrics.Metrics) *HTTPClient {
	c.mtr = m
	return c
}

func (c *HTTPClient) count(flow string, err error) {
	if c.mtr == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.mtr.AuthExchangesTotal.WithLabelValues(flow, result).Inc()
}

type loginRequest struct {
	UserName  string `json:"userName"`
	Password  string `json:"password"`
	CompanyID string `json:"companyId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userPayload struct {
	ID        string `json:"id"`
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CompanyID string `json:"companyId"`
}

type authResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    string       `json:"expiresAt"`
	User         *userPayload `json:"user"`
}

func (c *HTTPClient) Login(ctx context.Context, username, password, tenantID string) (Result, error) {
	body := loginRequest{UserName: username, Password: password, CompanyID: tenantID}
	res, err := c.exchange(ctx, "/api/Auth/Login", body)
	c.count("login", err)
	if err != nil {
		return Result{}, err
	}
	c.log.Info(ctx, "login succeeded", "user", username)
	return res, nil
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	res, err := c.exchange(ctx, "/api/Auth/RefreshToken", refreshRequest{RefreshToken: refreshToken})
	c.count("refresh", err)
	if err != nil {
		return Result{}, err
	}
	c.log.Debug(ctx, "token refreshed")
	return res, nil
}

func (c *HTTPClient) exchange(ctx context.Context, path string, payload any) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// decoded below
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return Result{}, ErrInvalidCredentials
	default:
		return Result{}, &ServerError{Status: resp.StatusCode}
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if ar.Token == "" || ar.RefreshToken == "" {
		return Result{}, ErrDecodeFailure
	}

	res := Result{Token: ar.Token, RefreshToken: ar.RefreshToken}
	if ar.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, ar.ExpiresAt)
		if err != nil {
			return Result{}, fmt.Errorf("%w: bad expiresAt: %v", ErrDecodeFailure, err)
		}
		res.ExpiresAt = t
	}
	if ar.User != nil {
		res.User = &User{
			ID:        ar.User.ID,
			Username:  ar.User.UserName,
			Email:     ar.User.Email,
			FirstName: ar.User.FirstName,
			LastName:  ar.User.LastName,
			TenantID:  ar.User.CompanyID,
		}
	}
	return res, nil
}

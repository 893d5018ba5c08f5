package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malipo/malipo-backend/pkg/actor"
)

// NewHTTPRequest builds a test request, JSON-encoding body when given.
func NewHTTPRequest(method, path string, body interface{}) *http.Request {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithBearerToken adds an Authorization header to the request.
func WithBearerToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// TokenOptions configures a test JWT. Zero values get admin defaults.
type TokenOptions struct {
	UserID      string
	Email       string
	Role        string
	TenantID    string
	TenantSlug  string
	Permissions []string
	ExpiresIn   time.Duration
}

// SignTestToken issues an HMAC-signed JWT the auth middleware accepts.
// Pass a negative ExpiresIn to mint an already-expired token.
func SignTestToken(t *testing.T, secret string, opts TokenOptions) string {
	t.Helper()

	if opts.UserID == "" {
		opts.UserID = uuid.New().String()
	}
	if opts.Email == "" {
		opts.Email = "payroll.admin@acme.co.ke"
	}
	if opts.Role == "" {
		opts.Role = "admin"
	}
	if opts.TenantID == "" {
		opts.TenantID = "00000000-0000-0000-0000-000000000001"
	}
	if opts.TenantSlug == "" {
		opts.TenantSlug = "test-tenant"
	}
	if opts.Permissions == nil {
		opts.Permissions = []string{"payroll.*"}
	}
	if opts.ExpiresIn == 0 {
		opts.ExpiresIn = time.Hour
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         opts.UserID,
		"email":       opts.Email,
		"role":        opts.Role,
		"tenant_id":   opts.TenantID,
		"tenant_slug": opts.TenantSlug,
		"permissions": opts.Permissions,
		"iat":         now.Unix(),
		"exp":         now.Add(opts.ExpiresIn).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err, "failed to sign test token")
	return signed
}

// WithTestActor attaches a payroll admin actor to the context, the way
// the auth middleware would after verifying a token.
func WithTestActor(ctx context.Context, tenantID string) context.Context {
	return actor.WithActor(ctx, &actor.Actor{
		ID:          uuid.New().String(),
		Email:       "payroll.admin@acme.co.ke",
		Role:        "admin",
		TenantID:    tenantID,
		Permissions: []string{"payroll.*"},
	})
}

// ExecuteRequest runs the request through the handler and returns the
// recorded response.
func ExecuteRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatus checks the status code, printing the body on mismatch
// since that is where the error detail lives.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status code. Body: %s", rr.Body.String())
}

// ParseJSONBody decodes the recorded response body into target.
func ParseJSONBody(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	err := json.Unmarshal(rr.Body.Bytes(), target)
	require.NoError(t, err, "failed to parse response body: %s", rr.Body.String())
}

// Pointer helpers for optional domain fields. Typed rather than
// generic so untyped constants land on the right width.

func PtrString(s string) *string {
	return &s
}

func PtrInt64(i int64) *int64 {
	return &i
}

func PtrTime(t time.Time) *time.Time {
	return &t
}

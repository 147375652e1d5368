package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject, role, issuer, audience string, expiry time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(expiry).Unix(),
		"iat":  time.Now().Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func protected(t *testing.T, a *Authenticator, roles ...Role) http.Handler {
	t.Helper()
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromContext(r.Context())
		require.NoError(t, err)
		w.Header().Set("X-Subject", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})
	if len(roles) > 0 {
		handler = RequireRole(roles...)(handler)
	}
	return a.Middleware(handler)
}

func doRequest(handler http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestJWTVerification(t *testing.T) {
	const secret = "test-signing-secret"
	a := NewAuthenticator(secret, "marketplace", "gigpay")
	subject := uuid.NewString()
	handler := protected(t, a)

	token := signToken(t, secret, subject, "client", "marketplace", "gigpay", time.Hour)
	rec := doRequest(handler, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, subject, rec.Header().Get("X-Subject"))

	forged := signToken(t, "wrong-secret", subject, "client", "marketplace", "gigpay", time.Hour)
	rec = doRequest(handler, "Bearer "+forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := signToken(t, secret, subject, "client", "marketplace", "gigpay", -2*time.Hour)
	rec = doRequest(handler, "Bearer "+expired)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer := signToken(t, secret, subject, "client", "someone-else", "gigpay", time.Hour)
	rec = doRequest(handler, "Bearer "+wrongIssuer)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	badRole := signToken(t, secret, subject, "superuser", "marketplace", "gigpay", time.Hour)
	rec = doRequest(handler, "Bearer "+badRole)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDevTokenFallback(t *testing.T) {
	a := NewAuthenticator("", "", "")
	handler := protected(t, a)
	subject := uuid.NewString()

	rec := doRequest(handler, "Bearer "+subject+"|admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, subject, rec.Header().Get("X-Subject"))

	rec = doRequest(handler, "Bearer "+subject+"|superuser")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(handler, "Bearer not-a-dev-token")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(handler, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	a := NewAuthenticator("", "", "")
	adminOnly := protected(t, a, RoleAdmin)
	subject := uuid.NewString()

	rec := doRequest(adminOnly, "Bearer "+subject+"|admin")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(adminOnly, "Bearer "+subject+"|client")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

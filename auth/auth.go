package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyClaims contextKey = "payment_claims"

// Role represents an authenticated marketplace persona.
type Role string

// Roles recognised by the payment service.
const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

var allowedRoles = map[Role]struct{}{
	RoleClient:     {},
	RoleFreelancer: {},
	RoleAdmin:      {},
}

// Claims is the identity extracted from the inbound request. Subject is the
// marketplace user id.
type Claims struct {
	Subject string
	Role    Role
}

// Authenticator verifies bearer tokens minted by the marketplace auth
// subsystem. With an empty secret it falls back to the unsigned
// "subject|role" development format used by the test suite.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewAuthenticator constructs an authenticator for HS256 bearer tokens.
func NewAuthenticator(secret, issuer, audience string) *Authenticator {
	return &Authenticator{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		leeway:   time.Minute,
		now:      time.Now,
	}
}

// Middleware authenticates the request and attaches Claims to the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if authz == "" {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "invalid authorization scheme", http.StatusUnauthorized)
			return
		}
		claims, err := a.verify(strings.TrimSpace(parts[1]))
		if err != nil {
			http.Error(w, "invalid authorization token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (a *Authenticator) verify(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	if len(a.secret) == 0 {
		return parseDevToken(token)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claim type")
	}
	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, errors.New("missing subject claim")
	}
	roleRaw, _ := mapClaims["role"].(string)
	role := Role(strings.ToLower(strings.TrimSpace(roleRaw)))
	if _, ok := allowedRoles[role]; !ok {
		return nil, fmt.Errorf("unsupported role %q", roleRaw)
	}
	return &Claims{Subject: subject, Role: role}, nil
}

// parseDevToken handles the "subject|role" credential accepted when no
// signing secret is configured.
func parseDevToken(token string) (*Claims, error) {
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return nil, errors.New("malformed development token")
	}
	subject := strings.TrimSpace(parts[0])
	role := Role(strings.ToLower(strings.TrimSpace(parts[1])))
	if subject == "" {
		return nil, errors.New("missing subject")
	}
	if _, ok := allowedRoles[role]; !ok {
		return nil, fmt.Errorf("unsupported role %q", parts[1])
	}
	return &Claims{Subject: subject, Role: role}, nil
}

// WithClaims attaches claims to the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// FromContext extracts the Claims previously attached by the middleware.
func FromContext(ctx context.Context) (*Claims, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if claims, ok := ctx.Value(contextKeyClaims).(*Claims); ok && claims != nil {
		return claims, nil
	}
	return nil, errors.New("missing identity in context")
}

// RequireRole ensures the authenticated user has one of the allowed roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := FromContext(r.Context())
			if err != nil {
				http.Error(w, "missing identity", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

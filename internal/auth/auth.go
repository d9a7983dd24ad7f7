// Package auth resolves the task owner from a JWT carried by the request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

// CookieName is the cookie the browser client stores its token in.
const CookieName = "token"

type ctxKey struct{}

// Authenticator verifies tokens. HS256 tokens are checked against a shared
// secret; when a JWKS is configured RS256 tokens are accepted as well.
type Authenticator struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithJWKS enables RS256 verification with keys from jwks.
func WithJWKS(jwks *keyfunc.JWKS) Option {
	return func(a *Authenticator) { a.jwks = jwks }
}

func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{secret: []byte(secret)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchJWKS loads and keeps refreshing the key set at url.
func FetchJWKS(url string) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}
	return jwks, nil
}

func (a *Authenticator) validMethods() []string {
	if a.jwks != nil {
		return []string{"HS256", "RS256"}
	}
	return []string{"HS256"}
}

func (a *Authenticator) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return a.secret, nil
	case *jwt.SigningMethodRSA:
		if a.jwks == nil {
			return nil, errors.New("no key set configured")
		}
		return a.jwks.Keyfunc(token)
	default:
		return nil, errors.New("invalid signing method")
	}
}

// Verify parses raw and returns the owner id it carries.
func (a *Authenticator) Verify(raw string) (string, error) {
	if raw == "" {
		return "", model.ErrNoToken
	}

	parser := jwt.NewParser(jwt.WithValidMethods(a.validMethods()))
	token, err := parser.Parse(raw, a.keyFor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", model.ErrInvalidToken
	}
	if id, ok := claims["userId"].(string); ok && id != "" {
		return id, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", model.ErrInvalidToken
}

// TokenFromRequest returns the token from the cookie, falling back to a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// OwnerFromRequest authenticates r.
func (a *Authenticator) OwnerFromRequest(r *http.Request) (string, error) {
	return a.Verify(TokenFromRequest(r))
}

// WithOwner returns a copy of ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerFromContext returns the owner stored by the middleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a valid token and stores the owner in
// the request context. onError writes the rejection.
func (a *Authenticator) Middleware(onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, err := a.OwnerFromRequest(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

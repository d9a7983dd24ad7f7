package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharifulalam-dev/todoserver/internal/model"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestVerify(t *testing.T) {
	a := NewAuthenticator(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	owner, err := a.Verify(sign(t, jwt.MapClaims{"userId": "U1", "exp": exp}, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "U1", owner)

	owner, err = a.Verify(sign(t, jwt.MapClaims{"sub": "U2"}, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "U2", owner, "sub is the fallback claim")

	_, err = a.Verify("")
	assert.ErrorIs(t, err, model.ErrNoToken)

	cases := map[string]string{
		"wrong secret": sign(t, jwt.MapClaims{"userId": "U1"}, "other"),
		"expired":      sign(t, jwt.MapClaims{"userId": "U1", "exp": time.Now().Add(-time.Minute).Unix()}, testSecret),
		"no owner":     sign(t, jwt.MapClaims{"exp": exp}, testSecret),
		"garbage":      "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			assert.ErrorIs(t, err, model.ErrInvalidToken)
			assert.Equal(t, model.ErrInvalidToken.Message, model.PublicMessage(err))
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r), "cookie wins over header")

	r = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator(testSecret)
	var rejected error
	h := a.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := OwnerFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(owner))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.ErrorIs(t, rejected, model.ErrNoToken)

	r := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: sign(t, jwt.MapClaims{"userId": "U1"}, testSecret)})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "U1", rec.Body.String())
}

func jwksServer(t *testing.T, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
	body := fmt.Sprintf(`{"keys":[{"kty":"RSA","kid":"k1","alg":"RS256","use":"sig","n":%q,"e":%q}]}`, n, e)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyRS256WithJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "auth0|u1", "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	_, err = NewAuthenticator(testSecret).Verify(signed)
	assert.ErrorIs(t, err, model.ErrInvalidToken, "RS256 needs a key set")

	jwks, err := FetchJWKS(jwksServer(t, &key.PublicKey).URL)
	require.NoError(t, err)
	defer jwks.EndBackground()

	owner, err := NewAuthenticator(testSecret, WithJWKS(jwks)).Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "auth0|u1", owner)
}

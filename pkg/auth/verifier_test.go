package auth

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

const testAudience = "speech-analytics-front-end"

// verifierTestSignToken creates an RS256-signed JWT with the given claims
// and kid.
func verifierTestSignToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenStr, err := token.SignedString(key)
	require.NoError(t, err, "failed to sign RSA token")
	return tokenStr
}

// verifierTestClaims returns a valid claim set for the test audience,
// expiring in an hour.
func verifierTestClaims(perms ...string) jwt.MapClaims {
	return jwt.MapClaims{
		"aud":         testAudience,
		"exp":         time.Now().Add(time.Hour).Unix(),
		"user_id":     "9f1b2c3d-0000-4000-8000-000000000001",
		"username":    "analyst",
		"permissions": perms,
	}
}

// newTestVerifier builds a Verifier backed by a JWKS server holding the
// given key under kid "key-1".
func newTestVerifier(t *testing.T, priv *rsa.PrivateKey) *Verifier {
	t.Helper()
	doc := keysTestJWKSDocument(t, map[string]*rsa.PublicKey{"key-1": &priv.PublicKey})
	srv := keysTestServeJWKS(t, doc, nil)

	v, err := NewVerifier(VerifierConfig{
		JWKSURL:    srv.URL,
		Audience:   testAudience,
		CacheTTL:   time.Hour,
		ClockSkew:  30 * time.Second,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return v
}

func TestVerifierConfig_Validate_RequiresJWKSURL(t *testing.T) {
	t.Parallel()
	cfg := VerifierConfig{Audience: testAudience}
	assert.Error(t, cfg.Validate())
}

func TestVerifierConfig_Validate_NegativeTTL(t *testing.T) {
	t.Parallel()
	cfg := VerifierConfig{JWKSURL: "https://idp.example.com/jwks", CacheTTL: -time.Second}
	assert.Error(t, cfg.Validate())
}

func TestVerifier_Authenticate_EmptyHeaderIsAnonymous(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	principal, err := v.Authenticate(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, principal.HasPermission(PermissionGetPerson))
	assert.True(t, principal.HasPermission(PermissionGetSpeech))
	assert.False(t, principal.HasPermission(PermissionCreateSpeech))
}

func TestVerifier_Authenticate_ValidToken(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	tokenStr := verifierTestSignToken(t, priv, "key-1",
		verifierTestClaims("CreateSpeech", "GetSpeech"))

	principal, err := v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.NoError(t, err)

	assert.Equal(t, "9f1b2c3d-0000-4000-8000-000000000001", principal.UserID)
	assert.Equal(t, "analyst", principal.Username)
	assert.True(t, principal.HasPermission(PermissionCreateSpeech))
	assert.True(t, principal.HasPermission(PermissionGetSpeech))
	assert.False(t, principal.HasPermission(PermissionDeleteSpeech))
}

func TestVerifier_Authenticate_ValidToken_NoOptionalClaims(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	tokenStr := verifierTestSignToken(t, priv, "key-1", jwt.MapClaims{
		"aud":         testAudience,
		"exp":         time.Now().Add(time.Hour).Unix(),
		"permissions": []string{"GetPerson"},
	})

	principal, err := v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.NoError(t, err)
	assert.Empty(t, principal.UserID)
	assert.Empty(t, principal.Username)
	assert.True(t, principal.HasPermission(PermissionGetPerson))
}

// TestVerifier_Authenticate_RejectionsAreUniform drives every rejection
// path and asserts they all surface the same code and message, so a
// caller cannot learn which check failed.
func TestVerifier_Authenticate_RejectionsAreUniform(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	otherKey := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	expired := verifierTestClaims("GetSpeech")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAudience := verifierTestClaims("GetSpeech")
	wrongAudience["aud"] = "another-service"

	hmacToken := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, verifierTestClaims("GetSpeech"))
		token.Header["kid"] = "key-1"
		s, err := token.SignedString([]byte("shared-secret-shared-secret-1234"))
		require.NoError(t, err)
		return s
	}()

	tests := []struct {
		name   string
		header string
	}{
		{"not a bearer header", "Basic dXNlcjpwYXNz"},
		{"bearer with empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong signing key", "Bearer " + verifierTestSignToken(t, otherKey, "key-1", verifierTestClaims("GetSpeech"))},
		{"unknown kid", "Bearer " + verifierTestSignToken(t, priv, "key-9", verifierTestClaims("GetSpeech"))},
		{"expired token", "Bearer " + verifierTestSignToken(t, priv, "key-1", expired)},
		{"wrong audience", "Bearer " + verifierTestSignToken(t, priv, "key-1", wrongAudience)},
		{"hmac signed token", "Bearer " + hmacToken},
		{"unknown permission", "Bearer " + verifierTestSignToken(t, priv, "key-1", verifierTestClaims("GetSpeech", "Admin"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), tt.header)
			require.Error(t, err)

			gwe, ok := gwerr.AsError(err)
			require.True(t, ok, "rejection must be a structured error")
			assert.Equal(t, gwerr.CodeAuthenticationInvalid, gwe.Code)
			assert.Equal(t, "auth: token is invalid", gwe.Message)
		})
	}
}

func TestVerifier_Authenticate_MissingKidRejected(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, verifierTestClaims("GetSpeech"))
	tokenStr, err := token.SignedString(priv)
	require.NoError(t, err)

	_, err = v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.Error(t, err)
	assert.True(t, gwerr.HasCode(err, gwerr.CodeAuthenticationInvalid))
}

func TestVerifier_Authenticate_JWKSDownWithoutCache(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	v, err := NewVerifier(VerifierConfig{
		JWKSURL:    srv.URL,
		Audience:   testAudience,
		CacheTTL:   time.Hour,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	tokenStr := verifierTestSignToken(t, priv, "key-1", verifierTestClaims("GetSpeech"))
	_, err = v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.Error(t, err)
	assert.True(t, gwerr.IsUnavailable(err),
		"an unreachable identity provider is an availability failure, not a bad token")
}

func TestVerifier_Authenticate_Idempotent(t *testing.T) {
	t.Parallel()
	priv := keysTestGenerateRSAKey(t)
	v := newTestVerifier(t, priv)

	tokenStr := verifierTestSignToken(t, priv, "key-1", verifierTestClaims("GetSpeech"))

	first, err := v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.NoError(t, err)
	second, err := v.Authenticate(context.Background(), "Bearer "+tokenStr)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.HasPermission(PermissionGetSpeech), second.HasPermission(PermissionGetSpeech))
}

package util

import (
	"certify_backend/internal/config"
	"certify_backend/internal/model"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "util-test-jwt-secret"

func testUser() *model.User {
	u := &model.User{Name: "Maria Souza", Email: "maria@example.com", Role: model.Student}
	u.ID = 42
	return u
}

func sign(t *testing.T, method jwt.SigningMethod, claims jwt.Claims, key interface{}) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTRoundTrip(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret, Issuer: "certify-auth"}
	token, err := GenerateJWT(testUser(), cfg, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Student, claims.Role)
	assert.Equal(t, "maria@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseJWTRejects(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret}
	valid, err := GenerateJWT(testUser(), cfg, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT(testUser(), cfg, -time.Minute)
	require.NoError(t, err)
	otherIssuer, err := GenerateJWT(testUser(), config.JWTConfig{Secret: testSecret, Issuer: "elsewhere"}, time.Hour)
	require.NoError(t, err)

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	cases := []struct {
		name  string
		token string
		cfg   config.JWTConfig
		cause error
	}{
		{"wrong secret", valid, config.JWTConfig{Secret: "another-secret"}, jwt.ErrTokenSignatureInvalid},
		{"expired", expired, cfg, jwt.ErrTokenExpired},
		{"issuer mismatch", otherIssuer, config.JWTConfig{Secret: testSecret, Issuer: "certify-auth"}, jwt.ErrTokenInvalidIssuer},
		{"no expiry", sign(t, jwt.SigningMethodHS256, &Claims{UserID: 42}, []byte(testSecret)), cfg, jwt.ErrTokenRequiredClaimMissing},
		{"alg none", sign(t, jwt.SigningMethodNone, &Claims{UserID: 42, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, jwt.UnsafeAllowNoneSignatureType), cfg, jwt.ErrTokenSignatureInvalid},
		{"no user", sign(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, []byte(testSecret)), cfg, nil},
		{"bad subject", sign(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "maria", ExpiresAt: exp}}, []byte(testSecret)), cfg, nil},
		{"garbage", "not.a.jwt", cfg, jwt.ErrTokenMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseJWT(tc.token, tc.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
		})
	}
}

func TestParseJWTLeewayAndSubject(t *testing.T) {
	justExpired := sign(t, jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
	}}, []byte(testSecret))

	_, err := ParseJWT(justExpired, config.JWTConfig{Secret: testSecret})
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	claims, err := ParseJWT(justExpired, config.JWTConfig{Secret: testSecret, Leeway: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
}

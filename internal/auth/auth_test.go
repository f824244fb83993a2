package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/marketing-dashboard/internal/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier("s3cret", "authenticated", "https://auth.example.com/auth/v1")
	require.NoError(t, err)
	v.now = func() time.Time { return now }
	return v
}

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "u1",
		"email": "Ann@Example.com",
		"aud":   "authenticated",
		"iss":   "https://auth.example.com/auth/v1",
		"exp":   now.Add(time.Hour).Unix(),
		"user_metadata": map[string]any{
			"full_name":  "Ann Lee",
			"avatar_url": "https://img",
		},
	}
}

func TestVerifyReadsIdentity(t *testing.T) {
	id, err := newVerifier(t).Verify(context.Background(), sign(t, "s3cret", jwt.SigningMethodHS256, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "ann@example.com", id.Email)
	require.NotNil(t, id.DisplayName)
	assert.Equal(t, "Ann Lee", *id.DisplayName)
	require.NotNil(t, id.AvatarURL)
	assert.Equal(t, "https://img", *id.AvatarURL)
}

func TestVerifyFallsBackToName(t *testing.T) {
	c := validClaims()
	c["user_metadata"] = map[string]any{"name": "ann"}
	id, err := newVerifier(t).Verify(context.Background(), sign(t, "s3cret", jwt.SigningMethodHS256, c))
	require.NoError(t, err)
	require.NotNil(t, id.DisplayName)
	assert.Equal(t, "ann", *id.DisplayName)
	assert.Nil(t, id.AvatarURL)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := newVerifier(t)
	with := func(key string, val any) jwt.MapClaims {
		c := validClaims()
		if val == nil {
			delete(c, key)
		} else {
			c[key] = val
		}
		return c
	}

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-jwt",
		"expired":         sign(t, "s3cret", jwt.SigningMethodHS256, with("exp", now.Add(-time.Hour).Unix())),
		"no expiry":       sign(t, "s3cret", jwt.SigningMethodHS256, with("exp", nil)),
		"wrong secret":    sign(t, "other", jwt.SigningMethodHS256, validClaims()),
		"wrong algorithm": sign(t, "s3cret", jwt.SigningMethodHS512, validClaims()),
		"wrong audience":  sign(t, "s3cret", jwt.SigningMethodHS256, with("aud", "anon")),
		"wrong issuer":    sign(t, "s3cret", jwt.SigningMethodHS256, with("iss", "https://evil.example.com")),
		"no subject":      sign(t, "s3cret", jwt.SigningMethodHS256, with("sub", nil)),
		"no email":        sign(t, "s3cret", jwt.SigningMethodHS256, with("email", nil)),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "authenticated", "")
	assert.Error(t, err)
}

func TestUserContextRoundTrip(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	u := &model.AppUser{ID: "u1"}
	got, err := MustUser(WithUser(context.Background(), u))
	require.NoError(t, err)
	assert.Same(t, u, got)
}

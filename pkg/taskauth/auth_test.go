package taskauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

func signHS256(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestNoneAuthorizer_AlwaysAuthorizes(t *testing.T) {
	a := NewNoneAuthorizer()
	ctx, err := a.Authenticate("")
	require.NoError(t, err)
	assert.True(t, Allow(ctx, taskcast.ScopeTaskCreate, ""))
	assert.True(t, Allow(ctx, taskcast.ScopeEventPublish, "any-task"))
}

func TestTokenAuthorizer_MissingHeader(t *testing.T) {
	a := NewTokenAuthorizer(Config{Algorithm: AlgHS256, Secret: []byte("s")})
	_, err := a.Authenticate("")
	require.Error(t, err)
}

func TestTokenAuthorizer_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Sub:              "user1",
		TaskIDs:          []any{"t1"},
		Scope:            []taskcast.PermissionScope{taskcast.ScopeEventSubscribe},
	}
	token := signHS256(t, "secret", claims)
	a := NewTokenAuthorizer(Config{Algorithm: AlgHS256, Secret: []byte("secret")})

	ctx, err := a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user1", ctx.Subject)
	assert.True(t, Allow(ctx, taskcast.ScopeEventSubscribe, "t1"))
	assert.False(t, Allow(ctx, taskcast.ScopeEventSubscribe, "t2"))
	assert.False(t, Allow(ctx, taskcast.ScopeTaskCreate, "t1"))
}

func TestTokenAuthorizer_WildcardTaskIDsAndScope(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TaskIDs:          "*",
		Scope:            []taskcast.PermissionScope{taskcast.ScopeAll},
	}
	token := signHS256(t, "secret", claims)
	a := NewTokenAuthorizer(Config{Algorithm: AlgHS256, Secret: []byte("secret")})

	ctx, err := a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.True(t, Allow(ctx, taskcast.ScopeTaskCreate, "anything"))
}

func TestTokenAuthorizer_WrongSecretRejected(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token := signHS256(t, "wrong-secret", claims)
	a := NewTokenAuthorizer(Config{Algorithm: AlgHS256, Secret: []byte("secret")})

	_, err := a.Authenticate("Bearer " + token)
	require.Error(t, err)
}

func TestTokenAuthorizer_ExpiredRejected(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}
	token := signHS256(t, "secret", claims)
	a := NewTokenAuthorizer(Config{Algorithm: AlgHS256, Secret: []byte("secret")})

	_, err := a.Authenticate("Bearer " + token)
	require.Error(t, err)
}

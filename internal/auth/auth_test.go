package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "a-test-secret-that-is-long-enough-123"

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(testSecret, 7*24*time.Hour, "glowskin")

	token, expiresAt, err := m.Generate("user-1", "asha@example.com", "customer")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, time.Minute)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "asha@example.com", claims.Email)
	assert.Equal(t, "customer", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour, "glowskin")
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.Generate("user-1", "a@b.c", "customer")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, _, err := NewJWTManager(testSecret, time.Hour, "glowskin").Generate("user-1", "a@b.c", "admin")
	require.NoError(t, err)

	_, err = NewJWTManager("another-secret-of-sufficient-length", time.Hour, "glowskin").Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_WrongIssuer(t *testing.T) {
	token, _, err := NewJWTManager(testSecret, time.Hour, "someone-else").Generate("user-1", "a@b.c", "admin")
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Hour, "glowskin").Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsNoneAlg(t *testing.T) {
	claims := &Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "glowskin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager(testSecret, time.Hour, "glowskin").Validate(token)
	assert.Error(t, err)
}

func TestJWTManager_Validator(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour, "glowskin")
	token, _, err := m.Generate("user-1", "a@b.c", "admin")
	require.NoError(t, err)

	c, err := m.Validator()(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", c.Role)

	_, err = m.Validator()("garbage")
	assert.Error(t, err)
}

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, h.Compare(hash, "s3cret-pass"))
	assert.False(t, h.Compare(hash, "wrong-pass"))
	assert.False(t, h.Compare("not-a-hash", "s3cret-pass"))
}

func TestNewHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(99).cost)
	assert.Equal(t, 12, NewHasher(12).cost)
}

func TestResetToken(t *testing.T) {
	token, hash, err := NewResetToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, hash, HashResetToken(token))

	other, _, err := NewResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

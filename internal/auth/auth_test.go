package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropwing/dropwing-go/errors"
	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func newStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, "session"), filepath.Join(dir, "session.key"))
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	store := newStore(t)
	session := types.Session{UserID: "user-1", Token: "tok-abc"}

	require.NoError(t, store.Save(session))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session, *loaded)
}

func TestFileStore_LoadWithoutSession(t *testing.T) {
	store := newStore(t)
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestFileStore_RejectsIncompleteSession(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.Save(types.Session{UserID: "user-1"}))
	assert.Error(t, store.Save(types.Session{Token: "tok-abc"}))
}

func TestFileStore_EncryptsAtRest(t *testing.T) {
	store := newStore(t)
	session := types.Session{UserID: "user-1", Token: "tok-abc"}
	require.NoError(t, store.Save(session))

	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "tok-abc")
	assert.NotContains(t, string(raw), "user-1")

	info, err := os.Stat(store.keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_ClearIdempotent(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save(types.Session{UserID: "user-1", Token: "tok-abc"}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUserIDFromToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-42"})

	userID, err := UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestUserIDFromToken_Malformed(t *testing.T) {
	_, err := UserIDFromToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.AuthError))
}

func TestUserIDFromToken_MissingSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"role": "driver"})
	_, err := UserIDFromToken(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	expired := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	live := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noExp := signedToken(t, jwt.MapClaims{"sub": "user-42"})

	assert.True(t, TokenExpired(expired))
	assert.False(t, TokenExpired(live))
	assert.False(t, TokenExpired(noExp))
	assert.True(t, TokenExpired("garbage"))
}

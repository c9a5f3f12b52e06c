package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-courier-auth"
)

func TestBcryptHasher(t *testing.T) {
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.HashPassword(testPassword)
	require.NoError(t, err)
	assert.NoError(t, hasher.ComparePasswordAndHash(testPassword, hash))
	assert.ErrorIs(t, hasher.ComparePasswordAndHash("wrong", hash), auth.ErrMismatchedHashAndPassword)

	_, err = hasher.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrNoEmptyString)

	t.Run("over 72 bytes", func(t *testing.T) {
		_, err := hasher.HashPassword(strings.Repeat("x", 80))
		require.ErrorIs(t, err, auth.ErrPasswordTooLong)
		assert.Equal(t, 400, auth.StatusForError(err))
	})
}

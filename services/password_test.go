package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, hasher.Verify("correct horse", hash))
	assert.False(t, hasher.Verify("wrong horse", hash))
	assert.False(t, hasher.Verify("correct horse", "not-a-bcrypt-hash"))
}

func TestNewBcryptHasher_CostBounds(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}

func TestGenerateTemporaryPassword(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	password, hash, err := GenerateTemporaryPassword(hasher, 16)
	require.NoError(t, err)
	assert.Len(t, password, 16)
	for _, r := range password {
		assert.True(t, strings.ContainsRune(temporaryPasswordAlphabet, r))
	}
	assert.True(t, hasher.Verify(password, hash))

	other, _, err := GenerateTemporaryPassword(hasher, 16)
	require.NoError(t, err)
	assert.NotEqual(t, password, other)

	_, _, err = GenerateTemporaryPassword(hasher, 0)
	assert.Error(t, err)
}

func TestTemporaryPasswordAlphabetIsUniform(t *testing.T) {
	seen := map[rune]bool{}
	for _, r := range temporaryPasswordAlphabet {
		assert.False(t, seen[r], "character %q appears more than once", r)
		seen[r] = true
	}
	assert.Len(t, seen, 62)
}

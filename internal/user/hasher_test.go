package user

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("senha123")
	require.NoError(t, err)
	assert.NotEqual(t, "senha123", hash)
	assert.True(t, h.Verify(hash, "senha123"))
	assert.False(t, h.Verify(hash, "senha124"))
	assert.False(t, h.NeedsRehash(hash))

	stronger := BcryptHasher{Cost: bcrypt.MinCost + 1}
	assert.True(t, stronger.NeedsRehash(hash))
	assert.False(t, stronger.NeedsRehash("not-a-bcrypt-hash"))

	// a lower configured cost never downgrades an existing hash
	strong, err := stronger.Hash("senha123")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(strong))
}

func TestBcryptHasher_LongPassword(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	long := strings.Repeat("a", 80)

	hash, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, long))
	// bytes past 72 are not significant
	assert.True(t, h.Verify(hash, strings.Repeat("a", 72)+"different"))
	assert.False(t, h.Verify(hash, strings.Repeat("a", 71)))

	// truncation may split a multibyte rune
	multi := "a" + strings.Repeat("ç", 50)
	hash, err = h.Hash(multi)
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, multi))
}

func TestConstantTimeCompare(t *testing.T) {
	assert.True(t, ConstantTimeCompare("abc", "abc"))
	assert.False(t, ConstantTimeCompare("abc", "abd"))
	assert.False(t, ConstantTimeCompare("abc", "abcd"))
}

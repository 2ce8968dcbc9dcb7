package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchCodeIsExact(t *testing.T) {
	hash := HashCode("LANTERN-42")
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, "LANTERN")

	assert.True(t, MatchCode(hash, "LANTERN-42"))

	variants := []string{"lantern-42", "LANTERN-43", "LANTERN_42", "LANTERN-4", "LANTERN-42 ", ""}
	for _, v := range variants {
		assert.False(t, MatchCode(hash, v), "variant %q must not match", v)
	}
	assert.False(t, MatchCode("", "LANTERN-42"))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))
	assert.NotContains(t, hash, "correct horse")

	assert.True(t, MatchPassword(hash, "correct horse"))
	assert.False(t, MatchPassword(hash, "correct horsE"))
	assert.False(t, MatchPassword(hash, ""))
	assert.False(t, MatchPassword("", "correct horse"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewContentKey()
	require.NoError(t, err)

	sealed, err := Seal(key, "meet me under the clock")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "clock")

	again, err := Seal(key, "meet me under the clock")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ between seals")

	plaintext, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "meet me under the clock", plaintext)
}

func TestOpenFailures(t *testing.T) {
	key, err := NewContentKey()
	require.NoError(t, err)
	other, err := NewContentKey()
	require.NoError(t, err)

	sealed, err := Seal(key, "secret")
	require.NoError(t, err)

	_, err = Open(other, sealed)
	assert.ErrorIs(t, err, ErrSealedContent)

	_, err = Open(key, "not base64!")
	assert.ErrorIs(t, err, ErrSealedContent)

	_, err = Open(key, "c2hvcnQ=")
	assert.ErrorIs(t, err, ErrSealedContent)

	_, err = Open("bad-key", sealed)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

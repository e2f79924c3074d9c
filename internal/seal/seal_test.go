package seal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpen(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	sealed, err := box.Seal("sessionid=abc; uid=42")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "sessionid")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sessionid=abc; uid=42", plain)

	again, err := box.Seal("sessionid=abc; uid=42")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestOpenRejectsTampering(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	other, err := NewBox(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := box.Seal("cookie")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = box.Open("not base64!")
	assert.ErrorIs(t, err, ErrOpen)

	_, err = box.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNewBoxValidatesKey(t *testing.T) {
	_, err := NewBox("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewBox(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullshard/hlspackager/pkg/hlserrors"
)

func TestDeriveIV_42(t *testing.T) {
	iv := DeriveIV(42)
	expected := [IVSize]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x2A}
	assert.Equal(t, expected, iv)
}

func TestAES128CBC_RoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	plaintexts := [][]byte{
		{},
		[]byte("short"),
		bytes.Repeat([]byte{0xAB}, 16),
		bytes.Repeat([]byte{0xCD}, 1000),
	}

	for _, pt := range plaintexts {
		ct, err := EncryptAES128CBC(pt, key, iv)
		require.NoError(t, err)
		got, err := DecryptAES128CBC(ct, key, iv)
		require.NoError(t, err)
		assert.Equal(t, pt, got)
	}
}

func TestAES128CBC_InvalidKeySize(t *testing.T) {
	_, err := EncryptAES128CBC([]byte("x"), make([]byte, 10), make([]byte, IVSize))
	require.Error(t, err)
	var keyErr *hlserrors.InvalidKeySizeError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, 10, keyErr.Size)
}

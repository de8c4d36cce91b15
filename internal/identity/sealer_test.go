package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer("sealer-test-secret")
	require.NoError(t, err)

	sealed, err := sealer.Seal("refresh-token-value")
	require.NoError(t, err)
	require.NotEqual(t, "refresh-token-value", sealed)

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "refresh-token-value", plain)
}

func TestSealerNoncesDiffer(t *testing.T) {
	sealer, err := NewSealer("sealer-test-secret")
	require.NoError(t, err)

	first, err := sealer.Seal("same-token")
	require.NoError(t, err)
	second, err := sealer.Seal("same-token")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestSealerRejectsWrongKey(t *testing.T) {
	sealer, err := NewSealer("original-secret")
	require.NoError(t, err)
	sealed, err := sealer.Seal("token")
	require.NoError(t, err)

	other, err := NewSealer("rotated-secret")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	require.Error(t, err)
}

func TestSealerRejectsGarbage(t *testing.T) {
	sealer, err := NewSealer("secret")
	require.NoError(t, err)

	_, err = sealer.Open("not base64 at all!!")
	require.Error(t, err)

	_, err = sealer.Open("c2hvcnQ")
	require.Error(t, err)
}

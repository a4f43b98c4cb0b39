package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionKeyPairIsMirrored(t *testing.T) {
	a, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)

	sa, err := GenerateSessionKeyPair(a, b.Public)
	require.NoError(t, err)
	sb, err := GenerateSessionKeyPair(b, a.Public)
	require.NoError(t, err)

	assert.Equal(t, sa.Tx, sb.Rx)
	assert.Equal(t, sa.Rx, sb.Tx)
	assert.NotEqual(t, sa.Rx, sa.Tx)
	assert.Equal(t, sb, sa.Reversed())
}

func TestGenerateSessionKeyPairDeterministic(t *testing.T) {
	a, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)
	b, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)

	first, err := GenerateSessionKeyPair(a, b.Public)
	require.NoError(t, err)
	second, err := GenerateSessionKeyPair(a, b.Public)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSessionKeyPairRejectsLowOrderPoint(t *testing.T) {
	a, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)

	_, err = GenerateSessionKeyPair(a, KeyAgreementPublicKey{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyAgreementKeyPairFromSecret(t *testing.T) {
	a, err := GenerateKeyAgreementKeyPair()
	require.NoError(t, err)

	again, err := KeyAgreementKeyPairFromSecret(a.Secret)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

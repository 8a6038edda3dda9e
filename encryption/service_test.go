package encryption

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVoterIDDeterministic(t *testing.T) {
	cs := NewCryptoService("test-salt")
	first := cs.HashVoterID("voter-1")
	second := cs.HashVoterID("voter-1")
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	// Different salt, different digest.
	other := NewCryptoService("other-salt")
	assert.NotEqual(t, first, other.HashVoterID("voter-1"))
	assert.NotEqual(t, first, cs.HashVoterID("voter-2"))
}

func TestGenerateOTACEntropy(t *testing.T) {
	cs := NewCryptoService("test-salt")
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		otac, err := cs.GenerateOTAC()
		require.NoError(t, err)
		assert.False(t, seen[otac], "OTAC repeated")
		seen[otac] = true
		// 32 bytes of entropy, base64 raw url.
		assert.GreaterOrEqual(t, len(otac), 43)
	}
}

func TestHashOTAC(t *testing.T) {
	cs := NewCryptoService("test-salt")
	otac, err := cs.GenerateOTAC()
	require.NoError(t, err)

	digest, err := cs.HashOTAC(otac)
	require.NoError(t, err)
	assert.Len(t, digest, 64)
	assert.NotEqual(t, otac, digest)

	again, err := cs.HashOTAC(otac)
	require.NoError(t, err)
	assert.Equal(t, digest, again)

	_, err = cs.HashOTAC("short")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCommitBallotRoundTrip(t *testing.T) {
	cs := NewCryptoService("test-salt")
	commitment, nonce, err := cs.CommitBallot("candidate-A")
	require.NoError(t, err)
	assert.Len(t, commitment, 64)
	assert.Len(t, nonce, 32)

	raw, err := hex.DecodeString(commitment)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	assert.True(t, cs.VerifyCommitment("candidate-A", nonce, commitment))
	assert.False(t, cs.VerifyCommitment("candidate-B", nonce, commitment))
	assert.False(t, cs.VerifyCommitment("candidate-A", nonce, commitment[:63]+"0"))
}

func TestCommitBallotHidesCandidate(t *testing.T) {
	cs := NewCryptoService("test-salt")
	first, _, err := cs.CommitBallot("candidate-A")
	require.NoError(t, err)
	second, _, err := cs.CommitBallot("candidate-A")
	require.NoError(t, err)
	// Fresh nonce per commitment: identical choices produce unlinkable
	// commitments.
	assert.NotEqual(t, first, second)
}

func TestVerifyCommitmentRejectsMalformedNonce(t *testing.T) {
	cs := NewCryptoService("test-salt")
	commitment, nonce, err := cs.CommitBallot("candidate-A")
	require.NoError(t, err)

	assert.False(t, cs.VerifyCommitment("candidate-A", "", commitment))
	assert.False(t, cs.VerifyCommitment("candidate-A", nonce[:10], commitment))
	notHex := "zz" + nonce[2:]
	assert.False(t, cs.VerifyCommitment("candidate-A", notHex, commitment))
}

func TestReceiptSignVerify(t *testing.T) {
	cs := NewCryptoService("test-salt")
	key, err := cs.GenerateReceiptKey()
	require.NoError(t, err)

	receipt, err := cs.SignReceipt(7, "commitment-hex", "root-hex", key)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), receipt.Seq)
	assert.True(t, cs.VerifyReceipt(receipt, &key.PublicKey))

	// Tampering with any bound field invalidates the receipt.
	tampered := *receipt
	tampered.Seq = 8
	assert.False(t, cs.VerifyReceipt(&tampered, &key.PublicKey))

	tampered = *receipt
	tampered.Commitment = "other-commitment"
	assert.False(t, cs.VerifyReceipt(&tampered, &key.PublicKey))

	tampered = *receipt
	tampered.Root = "other-root"
	assert.False(t, cs.VerifyReceipt(&tampered, &key.PublicKey))

	// A different key does not verify.
	otherKey, err := cs.GenerateReceiptKey()
	require.NoError(t, err)
	assert.False(t, cs.VerifyReceipt(receipt, &otherKey.PublicKey))

	tampered = *receipt
	tampered.Signature = "not-hex"
	assert.False(t, cs.VerifyReceipt(&tampered, &key.PublicKey))
}

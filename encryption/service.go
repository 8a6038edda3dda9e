package encryption

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// OTACs carry 32 bytes of entropy; anything shorter than 16 bytes is
	// rejected outright as malformed.
	otacBytes    = 32
	minOTACBytes = 16

	nonceBytes = 16
)

// ErrMalformedToken rejects undersized credential tokens before hashing.
var ErrMalformedToken = errors.New("malformed credential token")

// CryptoService provides the hashing and credential primitives for the
// ledger: salted identity digests, one-time access codes, and ballot
// commitments. All digests are Keccak-256 rendered as lowercase hex.
type CryptoService struct {
	salt string
}

func NewCryptoService(salt string) *CryptoService {
	return &CryptoService{salt: salt}
}

// HashVoterID returns the salted digest under which a voter identity is
// stored. Deterministic: the same ID and salt always produce the same
// digest.
func (cs *CryptoService) HashVoterID(voterID string) string {
	return hex.EncodeToString(cs.Keccak256([]byte(cs.salt), []byte(voterID)))
}

// GenerateOTAC produces a fresh one-time access code from the system
// entropy source. An error here means the entropy source is unavailable
// and is fatal at every call site.
func (cs *CryptoService) GenerateOTAC() (string, error) {
	buf := make([]byte, otacBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate OTAC: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashOTAC returns the digest under which a credential is persisted. The
// plaintext token is never stored.
func (cs *CryptoService) HashOTAC(otac string) (string, error) {
	if len(otac) < base64.RawURLEncoding.EncodedLen(minOTACBytes) {
		return "", ErrMalformedToken
	}
	return hex.EncodeToString(cs.Keccak256([]byte(otac))), nil
}

// CommitBallot binds a candidate choice to a fresh random nonce under the
// server salt. The commitment reveals nothing about the candidate without
// the nonce, but is reproducible once the nonce is disclosed.
func (cs *CryptoService) CommitBallot(candidateID string) (commitment, nonce string, err error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate ballot nonce: %w", err)
	}
	nonce = hex.EncodeToString(buf)
	commitment = hex.EncodeToString(
		cs.Keccak256([]byte(cs.salt), []byte(candidateID), []byte(nonce)),
	)
	return commitment, nonce, nil
}

// VerifyCommitment recomputes the commitment for the given candidate and
// nonce and compares it in constant time. Undersized or non-hex nonces
// fail before any hashing happens.
func (cs *CryptoService) VerifyCommitment(candidateID, nonce, commitment string) bool {
	if len(nonce) < nonceBytes*2 {
		return false
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return false
	}
	expected := hex.EncodeToString(
		cs.Keccak256([]byte(cs.salt), []byte(candidateID), []byte(nonce)),
	)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(commitment)) == 1
}

// Keccak256 computes a Keccak-256 hash over the concatenated inputs.
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

package encryption

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt is the server's signed acknowledgement of an applied ballot.
// Holders can later prove the server accepted the ballot at a specific
// sequence position under a specific root.
type Receipt struct {
	Seq        uint64 `json:"seq"`
	Commitment string `json:"commitment"`
	Root       string `json:"root"`
	Signature  string `json:"signature"`
}

// GenerateReceiptKey creates the ECDSA key the server signs receipts with.
func (cs *CryptoService) GenerateReceiptKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

func (cs *CryptoService) receiptDigest(seq uint64, commitment, root string) []byte {
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return cs.Keccak256(seqBuf[:], []byte(commitment), []byte(root))
}

// SignReceipt binds (seq, commitment, root) under the server's receipt key.
func (cs *CryptoService) SignReceipt(seq uint64, commitment, root string, key *ecdsa.PrivateKey) (*Receipt, error) {
	sig, err := crypto.Sign(cs.receiptDigest(seq, commitment, root), key)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Seq:        seq,
		Commitment: commitment,
		Root:       root,
		Signature:  hexutil.Encode(sig),
	}, nil
}

// VerifyReceipt checks a receipt signature against the server's public key.
func (cs *CryptoService) VerifyReceipt(r *Receipt, pub *ecdsa.PublicKey) bool {
	sig, err := hexutil.Decode(r.Signature)
	if err != nil {
		return false
	}
	recovered, err := crypto.SigToPub(cs.receiptDigest(r.Seq, r.Commitment, r.Root), sig)
	if err != nil {
		return false
	}
	return recovered.X.Cmp(pub.X) == 0 && recovered.Y.Cmp(pub.Y) == 0
}

// PublicKeyHex serializes a receipt public key for responses.
func (cs *CryptoService) PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.FromECDSAPub(pub))
}

package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/ed25519"
)

//ClaimID uniquely identifies the signed content of a claim
type ClaimID [sha256.Size]byte

// Claim is a client signed assertion that the sender wants to move an amount
// to the recipient. It occupies one sequence number of the sender's account and
// is only applied if that number directly follows the last accepted one.
type Claim struct {
	Sender    PK
	Sequence  uint32
	Recipient PK
	Amount    uint64
	Signature [ed25519.SignatureSize]byte
}

// Encode returns the canonical bytes the signature is computed over:
// sender, sequence (big endian), recipient and amount (big endian).
func (c *Claim) Encode() []byte {
	d := make([]byte, 0, len(c.Sender)+4+len(c.Recipient)+8)
	d = append(d, c.Sender[:]...)
	d = binary.BigEndian.AppendUint32(d, c.Sequence)
	d = append(d, c.Recipient[:]...)
	d = binary.BigEndian.AppendUint64(d, c.Amount)
	return d
}

//Hash the claim's signed content
func (c *Claim) Hash() ClaimID {
	return sha256.Sum256(c.Encode())
}

// VerifySignature checks the signature against the sender's key
func (c *Claim) VerifySignature() bool {
	h := c.Hash()
	return ed25519.Verify(ed25519.PublicKey(c.Sender[:]), h[:], c.Signature[:])
}

// SetSignature copies a raw signature into the claim
func (c *Claim) SetSignature(sig []byte) (err error) {
	if len(sig) != len(c.Signature) {
		return ErrInvalidSignature
	}

	copy(c.Signature[:], sig)
	return
}

func (c *Claim) String() string {
	return fmt.Sprintf("%s#%d->%s:%d", c.Sender, c.Sequence, c.Recipient, c.Amount)
}

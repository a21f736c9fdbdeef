package ledger

import (
	"crypto/rand"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"
)

//Identity is an account owner that can sign claims
type Identity struct {
	pk PK
	sk ed25519.PrivateKey
}

//NewIdentity will start a new identity from the provided identity bytes, if nil
//random bytes are used
func NewIdentity(rndid []byte) (idn *Identity) {
	seed := make([]byte, ed25519.SeedSize)
	if rndid != nil {
		copy(seed, rndid)
	} else if _, err := rand.Read(seed); err != nil {
		panic("failed to read random seed for identity: " + err.Error())
	}

	idn, err := IdentityFromSeed(seed)
	if err != nil {
		panic("failed to create identity: " + err.Error())
	}

	return idn
}

// IdentityFromSeed restores an identity from its private seed
func IdentityFromSeed(seed []byte) (idn *Identity, err error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	idn = &Identity{sk: ed25519.NewKeyFromSeed(seed)}
	copy(idn.pk[:], idn.sk.Public().(ed25519.PublicKey))
	return
}

//PK returns the account this identity owns
func (idn *Identity) PK() PK { return idn.pk }

//Seed returns the private seed the identity can be restored from
func (idn *Identity) Seed() []byte { return idn.sk.Seed() }

// Sign the claim as its sender, the sender field is overwritten
func (idn *Identity) Sign(c *Claim) *Claim {
	c.Sender = idn.pk
	h := c.Hash()
	copy(c.Signature[:], ed25519.Sign(idn.sk, h[:]))
	return c
}

// Transfer creates a signed claim that sends 'amount' to 'to' at sequence 'seq'
func (idn *Identity) Transfer(seq uint32, to PK, amount uint64) *Claim {
	return idn.Sign(&Claim{Sequence: seq, Recipient: to, Amount: amount})
}

//String returns the first bytes of the account in hex
func (idn *Identity) String() string {
	return fmt.Sprintf("%.4x", idn.pk[:])
}

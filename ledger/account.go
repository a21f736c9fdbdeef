package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/crypto/ed25519"
)

//PK identifies an account, it is the ed25519 public key of its owner
type PK [ed25519.PublicKeySize]byte

//Bytes returns the underlying bytes as a slice
func (pk PK) Bytes() []byte { return pk[:] }

//String returns a short human readable form of the key
func (pk PK) String() string { return fmt.Sprintf("%.4x", pk[:]) }

//Hex returns the full key hex encoded
func (pk PK) Hex() string { return hex.EncodeToString(pk[:]) }

// PKFromBytes copies the bytes into a public key, it fails if the length doesn't
// match exactly.
func PKFromBytes(b []byte) (pk PK, err error) {
	if len(b) != len(pk) {
		return pk, ErrInvalidPK
	}

	copy(pk[:], b)
	return
}

// ParsePK decodes a hex encoded public key
func ParsePK(s string) (pk PK, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, ErrInvalidPK
	}

	return PKFromBytes(b)
}

// Account is the state kept for every account id. The zero value is the state
// of an account that never took part in a transfer.
type Account struct {
	Balance      uint64
	LastSequence uint32
}

const accountSize = 8 + 4

func (a Account) encode() (d []byte) {
	d = make([]byte, accountSize)
	binary.BigEndian.PutUint64(d, a.Balance)
	binary.BigEndian.PutUint32(d[8:], a.LastSequence)
	return
}

func decodeAccount(d []byte) (a Account, err error) {
	if len(d) != accountSize {
		return a, ErrInvalidAccountData
	}

	a.Balance = binary.BigEndian.Uint64(d)
	a.LastSequence = binary.BigEndian.Uint32(d[8:])
	return
}

var (
	accountPrefix = []byte{0x01}
	genesisKey    = []byte{0x00, 'g'}
)

func accountKey(id PK) []byte {
	return append(append([]byte{}, accountPrefix...), id[:]...)
}

// transfer is the check-and-apply step every store performs while holding its
// write transaction. It is a pure function of the two account states so all
// store implementations accept and reject exactly the same claims.
func transfer(from, to Account, self bool, seq uint32, amount uint64) (nfrom, nto Account, err error) {
	if from.LastSequence != seq || seq == math.MaxUint32 {
		return from, to, ErrStaleSequence
	}

	if from.Balance < amount {
		return from, to, ErrInsufficientBalance
	}

	if self {
		from.LastSequence = seq + 1
		return from, from, nil //balance stays the same, only the sequence moves
	}

	if to.Balance > math.MaxUint64-amount {
		return from, to, ErrBalanceOverflow
	}

	from.LastSequence = seq + 1
	from.Balance -= amount
	to.Balance += amount
	return from, to, nil
}

package ledger

import "errors"

var (
	ErrZeroAmount          = errors.New("transfer amount is zero")
	ErrBadSignature        = errors.New("invalid claim signature")
	ErrSelfTransfer        = errors.New("sender and recipient are the same account")
	ErrStaleSequence       = errors.New("stale or replayed sequence")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("recipient balance would overflow")
	ErrInvalidPK           = errors.New("invalid account public key")
	ErrInvalidSignature    = errors.New("invalid signature length")
	ErrInvalidAccountData  = errors.New("invalid account data")
	ErrGenesisMismatch     = errors.New("genesis allocations don't match the stored genesis")
	ErrGenesisDuplicate    = errors.New("genesis allocates to the same account twice")
	ErrHalted              = errors.New("ledger halted after a storage failure")
)

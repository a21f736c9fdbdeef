package ledger

// Validator performs the state independent checks on a claim. Whether the
// sequence number and balance allow the claim can only be decided while
// applying it, see Store.CompareAndApply.
type Validator struct {
	allowSelf bool
}

// NewValidator creates a validator with the provided self-transfer policy
func NewValidator(allowSelf bool) *Validator {
	return &Validator{allowSelf: allowSelf}
}

// Validate checks, in order, that the amount is positive, that the signature
// was made by the sender and that the transfer policy allows it. It returns
// the first violation.
func (v *Validator) Validate(c *Claim) (err error) {
	if c.Amount == 0 {
		return ErrZeroAmount
	}

	if !c.VerifySignature() {
		return ErrBadSignature
	}

	if !v.allowSelf && c.Sender == c.Recipient {
		return ErrSelfTransfer
	}

	return nil
}

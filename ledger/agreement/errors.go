package agreement

import "errors"

var (
	//ErrUnavailable is returned when the broadcast failed and claims can no
	//longer be disseminated
	ErrUnavailable = errors.New("agreement is unavailable")

	//ErrNoClaim is returned when submitting a message without a claim
	ErrNoClaim = errors.New("no claim to submit")
)

package exception

import "errors"

var (
	ErrClearingConservation  = errors.New("clearing: fill quantities do not balance")
	ErrClearingOverAllocated = errors.New("clearing: fill exceeds order quantity")
	ErrClearingPoolExceeded  = errors.New("clearing: pool issuance exceeds available shares")
	ErrClearingShortCapacity = errors.New("clearing: short fills exceed borrow capacity")
)

package exception

import "errors"

var (
	ErrSettleLedgerInvariant = errors.New("settle: borrowed shares exceed issued shares")
	ErrSettleNegativeFill    = errors.New("settle: fill quantity must be positive")
	ErrSettleUnknownSide     = errors.New("settle: unsupported fill side")
)

package exception

import "errors"

var (
	ErrAuctionWindowClearing  = errors.New("auction: window already clearing")
	ErrAuctionWindowNotFiring = errors.New("auction: window is not in clearing state")
	ErrAuctionOrderTerminal   = errors.New("auction: order already in terminal state")
)

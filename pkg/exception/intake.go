package exception

import "errors"

var (
	ErrIntakeInvalidOwner         = errors.New("intake: owner is empty")
	ErrIntakeUnknownTopic         = errors.New("intake: unknown topic")
	ErrIntakeInactiveTopic        = errors.New("intake: inactive topic")
	ErrIntakeInvalidQuantity      = errors.New("intake: quantity must be positive")
	ErrIntakeInvalidLimitPrice    = errors.New("intake: limit price must be positive")
	ErrIntakeInsufficientPosition = errors.New("intake: insufficient position for sell")
	ErrIntakeShortCapExceeded     = errors.New("intake: short exposure cap exceeded")
	ErrIntakeUnknownOrder         = errors.New("intake: order not found")
	ErrIntakeNotOrderOwner        = errors.New("intake: order owned by another participant")
)

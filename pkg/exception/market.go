package exception

import "errors"

var (
	ErrMarketUnknownTopic    = errors.New("market: unknown topic")
	ErrMarketUnknownCategory = errors.New("market: unknown category")
	ErrMarketNegativeCount   = errors.New("market: mention count must not be negative")
)
